package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backend/internal/alert"
	"backend/internal/events"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type PricingRequest struct {
	CostPrice          float64 `json:"cost_price" binding:"required,gt=0"`
	SellingPrice       float64 `json:"selling_price" binding:"required,gt=0"`
	MRP                float64 `json:"mrp" binding:"required,gt=0"`
	DiscountPercentage float64 `json:"discount_percentage" binding:"gte=0,lte=100"`
	TaxPercentage      float64 `json:"tax_percentage" binding:"gte=0,lte=100"`
}

type AlertConfigRequest struct {
	LowStockThreshold int `json:"low_stock_threshold" binding:"gte=0"`
	ExpiryAlertDays   int `json:"expiry_alert_days" binding:"gte=0"`
}

type CreateLotRequest struct {
	MedicineID        string              `json:"medicine_id" binding:"required,uuid"`
	BatchNumber       string              `json:"batch_number" binding:"required"`
	Quantity          int                 `json:"quantity" binding:"gte=0"`
	Unit              string              `json:"unit"`
	Pricing           PricingRequest      `json:"pricing" binding:"required"`
	ManufacturingDate time.Time           `json:"manufacturing_date" binding:"required"`
	ExpiryDate        time.Time           `json:"expiry_date" binding:"required"`
	Alerts            *AlertConfigRequest `json:"alerts"`
}

type MovementRequest struct {
	Type      string `json:"type" binding:"required,oneof=in out adjustment return"`
	Quantity  int    `json:"quantity" binding:"gte=0"`
	Reason    string `json:"reason" binding:"required"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

type StatusOverrideRequest struct {
	Status string `json:"status" binding:"required,oneof=damaged returned active"`
	Notes  string `json:"notes"`
}

type BulkUpdateItem struct {
	MedicineID  string          `json:"medicine_id" binding:"required,uuid"`
	BatchNumber string          `json:"batch_number" binding:"required"`
	Quantity    int             `json:"quantity" binding:"gte=0"`
	Pricing     *PricingRequest `json:"pricing"`
}

type BulkUpdateRequest struct {
	Items []BulkUpdateItem `json:"items" binding:"required,min=1,dive"`
}

type BulkUpdateResult struct {
	MedicineID  string `json:"medicine_id"`
	BatchNumber string `json:"batch_number"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// --- Interface ---

type LotService interface {
	CreateLot(ctx context.Context, shopID uuid.UUID, userID string, req CreateLotRequest) (*model.InventoryLot, error)
	GetLot(ctx context.Context, shopID, lotID uuid.UUID) (*model.InventoryLot, error)
	ListLots(ctx context.Context, shopID uuid.UUID, filter repository.LotFilter) ([]model.InventoryLot, int64, error)
	RecordMovement(ctx context.Context, shopID, lotID uuid.UUID, userID string, req MovementRequest) (*model.InventoryLot, error)
	OverrideStatus(ctx context.Context, shopID, lotID uuid.UUID, userID string, req StatusOverrideRequest) (*model.InventoryLot, error)
	BulkUpdate(ctx context.Context, shopID uuid.UUID, userID string, req BulkUpdateRequest) []BulkUpdateResult
	ListMovements(ctx context.Context, shopID, lotID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error)
	ListLowStock(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error)
	ListExpiring(ctx context.Context, shopID uuid.UUID, days int) ([]model.InventoryLot, error)
	ListExpired(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error)
	Summary(ctx context.Context, shopID uuid.UUID) (model.InventorySummary, error)
}

type lotService struct {
	lots      repository.LotRepository
	movements repository.MovementRepository
	medicines repository.MedicineRepository
	audits    repository.AuditRepository
	txManager repository.TransactionManager
	publisher events.Publisher
	logger    *zap.Logger
}

func NewLotService(
	lots repository.LotRepository,
	movements repository.MovementRepository,
	medicines repository.MedicineRepository,
	audits repository.AuditRepository,
	txManager repository.TransactionManager,
	publisher events.Publisher,
	logger *zap.Logger,
) LotService {
	return &lotService{
		lots:      lots,
		movements: movements,
		medicines: medicines,
		audits:    audits,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
	}
}

// --- Implementation ---

func (s *lotService) CreateLot(ctx context.Context, shopID uuid.UUID, userID string, req CreateLotRequest) (*model.InventoryLot, error) {
	medicineID, err := uuid.Parse(req.MedicineID)
	if err != nil {
		return nil, apperror.Validationf("invalid medicine_id: %s", req.MedicineID)
	}
	if !req.ExpiryDate.After(req.ManufacturingDate) {
		return nil, apperror.Validationf("expiry date must be after manufacturing date")
	}
	if req.Quantity < 0 {
		return nil, apperror.Validationf("quantity cannot be negative")
	}
	pricing, err := pricingFromRequest(req.Pricing)
	if err != nil {
		return nil, err
	}
	unit := req.Unit
	if unit == "" {
		unit = model.UnitPiece
	}
	if !model.ValidUnit(unit) {
		return nil, apperror.Validationf("unknown unit: %s", unit)
	}

	exists, err := s.medicines.Exists(ctx, medicineID)
	if err != nil {
		return nil, fmt.Errorf("failed to check medicine: %w", err)
	}
	if !exists {
		return nil, apperror.NotFoundf("medicine not found: %s", medicineID)
	}

	alerts := model.AlertConfig{LowStockThreshold: 10, ExpiryAlertDays: 30}
	if req.Alerts != nil {
		alerts.LowStockThreshold = req.Alerts.LowStockThreshold
		alerts.ExpiryAlertDays = req.Alerts.ExpiryAlertDays
	}

	now := time.Now()
	lot := &model.InventoryLot{
		ShopID:            shopID,
		MedicineID:        medicineID,
		BatchNumber:       req.BatchNumber,
		Quantity:          req.Quantity,
		ReservedQuantity:  0,
		Unit:              unit,
		Pricing:           pricing,
		ManufacturingDate: req.ManufacturingDate,
		ExpiryDate:        req.ExpiryDate,
		Alerts:            alerts,
		LastStockUpdate:   now,
	}
	lot.RecomputeAvailable()
	if actor := parseActor(userID); actor != nil {
		lot.CreatedBy = actor
	}

	eval := alert.Evaluate(lot, now)
	lot.Status = eval.Status
	applyAlertTimestamps(lot, eval, now)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		_, findErr := s.lots.FindByBatch(txCtx, shopID, medicineID, req.BatchNumber)
		if findErr == nil {
			return apperror.Conflictf("batch %s already exists for this medicine", req.BatchNumber)
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check batch uniqueness: %w", findErr)
		}

		if createErr := s.lots.Create(txCtx, lot); createErr != nil {
			// Two concurrent creates can both pass the read check; the unique
			// index decides the race and the loser is a conflict, not a 500.
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				return apperror.Conflictf("batch %s already exists for this medicine", req.BatchNumber)
			}
			return fmt.Errorf("failed to create lot: %w", createErr)
		}

		movement := &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementIn,
			Quantity:        req.Quantity,
			QuantityChanged: req.Quantity,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonInitialStock,
			PerformedBy:     lot.CreatedBy,
		}
		if movErr := s.movements.Create(txCtx, movement); movErr != nil {
			return fmt.Errorf("failed to record initial movement: %w", movErr)
		}

		return s.audit(txCtx, lot.CreatedBy, model.ActionCreateLot, lot.ID.String(), req.BatchNumber, map[string]interface{}{
			"medicine_id":  medicineID.String(),
			"batch_number": req.BatchNumber,
			"quantity":     req.Quantity,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewLotEvent(events.EventInventoryAdded, lot, map[string]interface{}{
		"quantity": lot.Quantity,
		"status":   lot.Status,
	}))
	s.emitAlerts(ctx, lot, eval)

	return lot, nil
}

func (s *lotService) GetLot(ctx context.Context, shopID, lotID uuid.UUID) (*model.InventoryLot, error) {
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFoundf("lot not found: %s", lotID)
		}
		return nil, fmt.Errorf("failed to load lot: %w", err)
	}
	if lot.ShopID != shopID {
		return nil, apperror.NotFoundf("lot not found: %s", lotID)
	}
	return lot, nil
}

func (s *lotService) ListLots(ctx context.Context, shopID uuid.UUID, filter repository.LotFilter) ([]model.InventoryLot, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.lots.List(ctx, shopID, filter)
}

func (s *lotService) RecordMovement(ctx context.Context, shopID, lotID uuid.UUID, userID string, req MovementRequest) (*model.InventoryLot, error) {
	actor := parseActor(userID)
	now := time.Now()

	var lot *model.InventoryLot
	var eval alert.Result
	var statusChanged bool
	var changed int

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		found, findErr := s.lots.FindByIDForUpdate(txCtx, lotID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFoundf("lot not found: %s", lotID)
			}
			return fmt.Errorf("failed to lock lot: %w", findErr)
		}
		if found.ShopID != shopID {
			return apperror.NotFoundf("lot not found: %s", lotID)
		}
		lot = found

		var applyErr error
		changed, applyErr = lot.ApplyMovement(req.Type, req.Quantity)
		if applyErr != nil {
			return applyErr
		}

		eval = alert.Evaluate(lot, now)
		statusChanged = applyEvaluationTo(lot, eval, now)
		lot.Version++
		lot.LastStockUpdate = now

		if saveErr := s.lots.Save(txCtx, lot); saveErr != nil {
			return fmt.Errorf("failed to save lot: %w", saveErr)
		}

		movement := &model.StockMovement{
			LotID:           lot.ID,
			Type:            req.Type,
			Quantity:        req.Quantity,
			QuantityChanged: changed,
			QuantityAfter:   lot.Quantity,
			Reason:          req.Reason,
			Reference:       req.Reference,
			PerformedBy:     actor,
			Notes:           req.Notes,
		}
		if movErr := s.movements.Create(txCtx, movement); movErr != nil {
			return fmt.Errorf("failed to record movement: %w", movErr)
		}

		return s.audit(txCtx, actor, model.ActionRecordMovement, lot.ID.String(), lot.BatchNumber, map[string]interface{}{
			"type":     req.Type,
			"quantity": req.Quantity,
			"reason":   req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewLotEvent(events.EventStockMovement, lot, map[string]interface{}{
		"movement_type":    req.Type,
		"quantity":         req.Quantity,
		"quantity_changed": changed,
		"quantity_after":   lot.Quantity,
		"reason":           req.Reason,
	}))
	if statusChanged {
		s.publishUpdated(ctx, lot)
	}
	s.emitAlerts(ctx, lot, eval)

	return lot, nil
}

func (s *lotService) OverrideStatus(ctx context.Context, shopID, lotID uuid.UUID, userID string, req StatusOverrideRequest) (*model.InventoryLot, error) {
	actor := parseActor(userID)
	now := time.Now()

	var lot *model.InventoryLot
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		found, findErr := s.lots.FindByIDForUpdate(txCtx, lotID)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFoundf("lot not found: %s", lotID)
			}
			return fmt.Errorf("failed to lock lot: %w", findErr)
		}
		if found.ShopID != shopID {
			return apperror.NotFoundf("lot not found: %s", lotID)
		}
		lot = found

		previous := lot.Status
		if req.Status == model.LotStatusActive {
			// Administrative correction back to automatic derivation.
			lot.Status = alert.Evaluate(lot, now).Status
		} else {
			lot.Status = req.Status
		}
		lot.Version++

		if saveErr := s.lots.Save(txCtx, lot); saveErr != nil {
			return fmt.Errorf("failed to save lot: %w", saveErr)
		}

		movement := &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementAdjustment,
			Quantity:        lot.Quantity,
			QuantityChanged: 0,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonStatusOverride,
			PerformedBy:     actor,
			Notes:           fmt.Sprintf("status %s -> %s. %s", previous, lot.Status, req.Notes),
		}
		if movErr := s.movements.Create(txCtx, movement); movErr != nil {
			return fmt.Errorf("failed to record movement: %w", movErr)
		}

		return s.audit(txCtx, actor, model.ActionStatusOverride, lot.ID.String(), lot.BatchNumber, map[string]interface{}{
			"from": previous,
			"to":   lot.Status,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, lot)
	return lot, nil
}

func (s *lotService) BulkUpdate(ctx context.Context, shopID uuid.UUID, userID string, req BulkUpdateRequest) []BulkUpdateResult {
	results := make([]BulkUpdateResult, 0, len(req.Items))
	for _, item := range req.Items {
		result := BulkUpdateResult{MedicineID: item.MedicineID, BatchNumber: item.BatchNumber, Success: true}
		if err := s.bulkUpdateItem(ctx, shopID, userID, item); err != nil {
			result.Success = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// bulkUpdateItem applies one bulk item in its own transaction so one bad line
// cannot abort the rest of the batch.
func (s *lotService) bulkUpdateItem(ctx context.Context, shopID uuid.UUID, userID string, item BulkUpdateItem) error {
	medicineID, err := uuid.Parse(item.MedicineID)
	if err != nil {
		return apperror.Validationf("invalid medicine_id: %s", item.MedicineID)
	}

	var pricing *model.Pricing
	if item.Pricing != nil {
		parsed, priceErr := pricingFromRequest(*item.Pricing)
		if priceErr != nil {
			return priceErr
		}
		pricing = &parsed
	}

	actor := parseActor(userID)
	now := time.Now()

	var lot *model.InventoryLot
	var eval alert.Result
	var statusChanged bool
	var changed int

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		found, findErr := s.lots.FindByBatchForUpdate(txCtx, shopID, medicineID, item.BatchNumber)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFoundf("lot not found for batch %s", item.BatchNumber)
			}
			return fmt.Errorf("failed to lock lot: %w", findErr)
		}
		lot = found

		var applyErr error
		changed, applyErr = lot.ApplyMovement(model.MovementAdjustment, item.Quantity)
		if applyErr != nil {
			return applyErr
		}
		if pricing != nil {
			lot.Pricing = *pricing
		}

		eval = alert.Evaluate(lot, now)
		statusChanged = applyEvaluationTo(lot, eval, now)
		lot.Version++
		lot.LastStockUpdate = now

		if saveErr := s.lots.Save(txCtx, lot); saveErr != nil {
			return fmt.Errorf("failed to save lot: %w", saveErr)
		}

		movement := &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementAdjustment,
			Quantity:        item.Quantity,
			QuantityChanged: changed,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonBulkUpdate,
			PerformedBy:     actor,
		}
		if movErr := s.movements.Create(txCtx, movement); movErr != nil {
			return fmt.Errorf("failed to record movement: %w", movErr)
		}

		return s.audit(txCtx, actor, model.ActionBulkUpdate, lot.ID.String(), lot.BatchNumber, map[string]interface{}{
			"quantity":        item.Quantity,
			"pricing_updated": pricing != nil,
		})
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.NewLotEvent(events.EventStockMovement, lot, map[string]interface{}{
		"movement_type":    model.MovementAdjustment,
		"quantity":         item.Quantity,
		"quantity_changed": changed,
		"quantity_after":   lot.Quantity,
		"reason":           model.ReasonBulkUpdate,
	}))
	if statusChanged {
		s.publishUpdated(ctx, lot)
	}
	s.emitAlerts(ctx, lot, eval)
	return nil
}

func (s *lotService) ListMovements(ctx context.Context, shopID, lotID uuid.UUID, page, limit int) ([]model.StockMovement, int64, error) {
	if _, err := s.GetLot(ctx, shopID, lotID); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.movements.ListByLot(ctx, lotID, page, limit)
}

func (s *lotService) ListLowStock(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error) {
	return s.lots.ListLowStock(ctx, shopID)
}

func (s *lotService) ListExpiring(ctx context.Context, shopID uuid.UUID, days int) ([]model.InventoryLot, error) {
	if days <= 0 {
		days = 30
	}
	before := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	return s.lots.ListExpiring(ctx, shopID, before)
}

func (s *lotService) ListExpired(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error) {
	return s.lots.ListExpired(ctx, shopID, time.Now())
}

func (s *lotService) Summary(ctx context.Context, shopID uuid.UUID) (model.InventorySummary, error) {
	return s.lots.Summary(ctx, shopID)
}

// --- Helpers ---

func applyAlertTimestamps(lot *model.InventoryLot, eval alert.Result, now time.Time) {
	if eval.ShouldAlertLowStock {
		t := now
		lot.Alerts.LastLowStockAlert = &t
	}
	if eval.ShouldAlertExpiry {
		t := now
		lot.Alerts.LastExpiryAlert = &t
	}
}

func (s *lotService) emitAlerts(ctx context.Context, lot *model.InventoryLot, eval alert.Result) {
	if eval.ShouldAlertLowStock {
		s.publish(ctx, events.NewLotEvent(events.EventLowStockAlert, lot, map[string]interface{}{
			"available_quantity": lot.AvailableQuantity,
			"threshold":          lot.Alerts.LowStockThreshold,
		}))
	}
	if eval.ShouldAlertExpiry {
		s.publish(ctx, events.NewLotEvent(events.EventExpiryAlert, lot, map[string]interface{}{
			"expiry_date": lot.ExpiryDate,
			"expired":     eval.Expired,
		}))
	}
}

func (s *lotService) publishUpdated(ctx context.Context, lot *model.InventoryLot) {
	s.publish(ctx, events.NewLotEvent(events.EventInventoryUpdated, lot, map[string]interface{}{
		"status":             lot.Status,
		"quantity":           lot.Quantity,
		"available_quantity": lot.AvailableQuantity,
	}))
}

// publish sends an event after the surrounding mutation committed. Failures
// are logged; the mutation stands regardless.
func (s *lotService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish inventory event",
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}

func (s *lotService) audit(ctx context.Context, actor *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     actor,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func pricingFromRequest(req PricingRequest) (model.Pricing, error) {
	pricing := model.Pricing{
		CostPrice:          decimal.NewFromFloat(req.CostPrice),
		SellingPrice:       decimal.NewFromFloat(req.SellingPrice),
		MRP:                decimal.NewFromFloat(req.MRP),
		DiscountPercentage: decimal.NewFromFloat(req.DiscountPercentage),
		TaxPercentage:      decimal.NewFromFloat(req.TaxPercentage),
	}
	if !pricing.CostPrice.IsPositive() || !pricing.SellingPrice.IsPositive() || !pricing.MRP.IsPositive() {
		return model.Pricing{}, apperror.Validationf("prices must be greater than zero")
	}
	if pricing.SellingPrice.GreaterThan(pricing.MRP) {
		return model.Pricing{}, apperror.Validationf("selling price cannot exceed MRP")
	}
	hundred := decimal.NewFromInt(100)
	if pricing.DiscountPercentage.IsNegative() || pricing.DiscountPercentage.GreaterThan(hundred) ||
		pricing.TaxPercentage.IsNegative() || pricing.TaxPercentage.GreaterThan(hundred) {
		return model.Pricing{}, apperror.Validationf("percentages must be between 0 and 100")
	}
	return pricing, nil
}

func parseActor(userID string) *uuid.UUID {
	if parsed, err := uuid.Parse(userID); err == nil {
		return &parsed
	}
	return nil
}
