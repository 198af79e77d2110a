package handler

import (
	"net/http"
	"strconv"

	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type InventoryHandler struct {
	lotService service.LotService
	shops      repository.ShopRepository
}

func NewInventoryHandler(lotService service.LotService, shops repository.ShopRepository) *InventoryHandler {
	return &InventoryHandler{lotService: lotService, shops: shops}
}

func (h *InventoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	inventory := router.Group("/api/shops/:shopId/inventory",
		middleware.RequireAuth(),
		middleware.RequireShopAccess(h.shops),
	)
	{
		inventory.POST("", h.CreateLot)
		inventory.GET("", h.ListLots)
		inventory.GET("/summary", h.Summary)
		inventory.GET("/alerts/low-stock", h.ListLowStock)
		inventory.GET("/alerts/expiring", h.ListExpiring)
		inventory.GET("/alerts/expired", h.ListExpired)
		inventory.PUT("/bulk", h.BulkUpdate)
		inventory.GET("/:id", h.GetLot)
		inventory.GET("/:id/movements", h.ListMovements)
		inventory.POST("/:id/movements", h.RecordMovement)
		inventory.PATCH("/:id/status", h.OverrideStatus)
	}
}

// CreateLot registers a new stock batch for a shop
// @Summary      Create inventory lot
// @Description  Creates a new batch-tracked stock lot for a shop/medicine/batch combination
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        shopId   path      string                    true  "Shop ID"
// @Param        payload  body      service.CreateLotRequest  true  "Create Lot Payload"
// @Success      201      {object}  response.Response{data=model.InventoryLot}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/shops/{shopId}/inventory [post]
func (h *InventoryHandler) CreateLot(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	var req service.CreateLotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	lot, err := h.lotService.CreateLot(c.Request.Context(), shopID, c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, lot))
}

// ListLots returns a shop's paginated inventory
// @Summary      List inventory lots
// @Description  Retrieves a paginated list of a shop's lots with optional name search and status filter
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true   "Shop ID"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Param        search  query     string  false  "Search by medicine name"
// @Param        status  query     string  false  "Filter by lot status"
// @Success      200     {object}  response.Response{data=[]model.InventoryLot,meta=pagination.Meta}
// @Failure      500     {object}  response.Response
// @Router       /api/shops/{shopId}/inventory [get]
func (h *InventoryHandler) ListLots(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	filter := repository.LotFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
		Page:   params.Page,
		Limit:  params.Limit,
	}

	lots, total, err := h.lotService.ListLots(c.Request.Context(), shopID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessPaged(http.StatusOK, lots, params.Meta(total)))
}

// GetLot returns one lot by id
// @Summary      Get inventory lot
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true  "Shop ID"
// @Param        id      path      string  true  "Lot ID"
// @Success      200     {object}  response.Response{data=model.InventoryLot}
// @Failure      404     {object}  response.Response
// @Router       /api/shops/{shopId}/inventory/{id} [get]
func (h *InventoryHandler) GetLot(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}
	lotID, ok := lotIDParam(c)
	if !ok {
		return
	}

	lot, err := h.lotService.GetLot(c.Request.Context(), shopID, lotID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lot))
}

// RecordMovement applies a stock movement to a lot
// @Summary      Record stock movement
// @Description  Applies an in/out/adjustment/return movement and returns the updated lot
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        shopId   path      string                   true  "Shop ID"
// @Param        id       path      string                   true  "Lot ID"
// @Param        payload  body      service.MovementRequest  true  "Movement Payload"
// @Success      200      {object}  response.Response{data=model.InventoryLot}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/shops/{shopId}/inventory/{id}/movements [post]
func (h *InventoryHandler) RecordMovement(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}
	lotID, ok := lotIDParam(c)
	if !ok {
		return
	}

	var req service.MovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	lot, err := h.lotService.RecordMovement(c.Request.Context(), shopID, lotID, c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lot))
}

// ListMovements returns the audit trail for a lot
// @Summary      List stock movements
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true   "Shop ID"
// @Param        id      path      string  true   "Lot ID"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=[]model.StockMovement,meta=pagination.Meta}
// @Failure      404     {object}  response.Response
// @Router       /api/shops/{shopId}/inventory/{id}/movements [get]
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}
	lotID, ok := lotIDParam(c)
	if !ok {
		return
	}

	params := pagination.Parse(c)
	movements, total, err := h.lotService.ListMovements(c.Request.Context(), shopID, lotID, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessPaged(http.StatusOK, movements, params.Meta(total)))
}

// OverrideStatus sets an administrative lot status
// @Summary      Override lot status
// @Description  Manually sets damaged/returned, or re-derives the automatic status when set to active
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        shopId   path      string                         true  "Shop ID"
// @Param        id       path      string                         true  "Lot ID"
// @Param        payload  body      service.StatusOverrideRequest  true  "Status Payload"
// @Success      200      {object}  response.Response{data=model.InventoryLot}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/shops/{shopId}/inventory/{id}/status [patch]
func (h *InventoryHandler) OverrideStatus(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}
	lotID, ok := lotIDParam(c)
	if !ok {
		return
	}

	var req service.StatusOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	lot, err := h.lotService.OverrideStatus(c.Request.Context(), shopID, lotID, c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lot))
}

// BulkUpdate applies absolute quantity/pricing updates to many lots
// @Summary      Bulk update lots
// @Description  Applies per-item stock-count corrections; returns per-item success/failure
// @Tags         inventory
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        shopId   path      string                     true  "Shop ID"
// @Param        payload  body      service.BulkUpdateRequest  true  "Bulk Update Payload"
// @Success      200      {object}  response.Response{data=[]service.BulkUpdateResult}
// @Failure      400      {object}  response.Response
// @Router       /api/shops/{shopId}/inventory/bulk [put]
func (h *InventoryHandler) BulkUpdate(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	var req service.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	results := h.lotService.BulkUpdate(c.Request.Context(), shopID, c.GetString("userID"), req)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, results))
}

// ListLowStock returns lots at or below their low-stock threshold
// @Summary      List low-stock lots
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true  "Shop ID"
// @Success      200     {object}  response.Response{data=[]model.InventoryLot}
// @Router       /api/shops/{shopId}/inventory/alerts/low-stock [get]
func (h *InventoryHandler) ListLowStock(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	lots, err := h.lotService.ListLowStock(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lots))
}

// ListExpiring returns lots expiring within N days
// @Summary      List expiring lots
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true   "Shop ID"
// @Param        days    query     int     false  "Window in days (default 30)"
// @Success      200     {object}  response.Response{data=[]model.InventoryLot}
// @Router       /api/shops/{shopId}/inventory/alerts/expiring [get]
func (h *InventoryHandler) ListExpiring(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	lots, err := h.lotService.ListExpiring(c.Request.Context(), shopID, days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lots))
}

// ListExpired returns lots past their expiry date
// @Summary      List expired lots
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true  "Shop ID"
// @Success      200     {object}  response.Response{data=[]model.InventoryLot}
// @Router       /api/shops/{shopId}/inventory/alerts/expired [get]
func (h *InventoryHandler) ListExpired(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	lots, err := h.lotService.ListExpired(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, lots))
}

// Summary returns aggregate stock metrics for a shop
// @Summary      Inventory summary
// @Description  Returns total items, total value (quantity x cost price), low-stock and expired counts
// @Tags         inventory
// @Security     BearerAuth
// @Produce      json
// @Param        shopId  path      string  true  "Shop ID"
// @Success      200     {object}  response.Response{data=model.InventorySummary}
// @Router       /api/shops/{shopId}/inventory/summary [get]
func (h *InventoryHandler) Summary(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	summary, err := h.lotService.Summary(c.Request.Context(), shopID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, summary))
}

// --- Helpers ---

func shopIDParam(c *gin.Context) (uuid.UUID, bool) {
	shopID, err := uuid.Parse(c.Param("shopId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid shop ID"))
		return uuid.Nil, false
	}
	return shopID, true
}

func lotIDParam(c *gin.Context) (uuid.UUID, bool) {
	lotID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid lot ID"))
		return uuid.Nil, false
	}
	return lotID, true
}

func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	c.JSON(status, response.Error(status, err.Error()))
}
