package repository

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LotFilter narrows shop inventory listings.
type LotFilter struct {
	Search string // matches medicine name
	Status string
	Page   int
	Limit  int
}

type LotRepository interface {
	Create(ctx context.Context, lot *model.InventoryLot) error
	Save(ctx context.Context, lot *model.InventoryLot) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error)
	// FindByIDForUpdate takes a row lock; callers must hold a transaction.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error)
	FindByBatch(ctx context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error)
	FindByBatchForUpdate(ctx context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error)
	List(ctx context.Context, shopID uuid.UUID, filter LotFilter) ([]model.InventoryLot, int64, error)
	ListLowStock(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error)
	ListExpiring(ctx context.Context, shopID uuid.UUID, before time.Time) ([]model.InventoryLot, error)
	ListExpired(ctx context.Context, shopID uuid.UUID, now time.Time) ([]model.InventoryLot, error)
	Summary(ctx context.Context, shopID uuid.UUID) (model.InventorySummary, error)
}

type lotRepository struct {
	db *gorm.DB
}

func NewLotRepository(db *gorm.DB) LotRepository {
	return &lotRepository{db: db}
}

func (r *lotRepository) Create(ctx context.Context, lot *model.InventoryLot) error {
	return GetDB(ctx, r.db).Create(lot).Error
}

func (r *lotRepository) Save(ctx context.Context, lot *model.InventoryLot) error {
	return GetDB(ctx, r.db).Save(lot).Error
}

func (r *lotRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	if err := GetDB(ctx, r.db).First(&lot, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *lotRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *lotRepository) FindByBatch(ctx context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	if err := GetDB(ctx, r.db).
		Where("shop_id = ? AND medicine_id = ? AND batch_number = ?", shopID, medicineID, batchNumber).
		First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *lotRepository) FindByBatchForUpdate(ctx context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop_id = ? AND medicine_id = ? AND batch_number = ?", shopID, medicineID, batchNumber).
		First(&lot).Error; err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *lotRepository) List(ctx context.Context, shopID uuid.UUID, filter LotFilter) ([]model.InventoryLot, int64, error) {
	var lots []model.InventoryLot
	var total int64

	db := GetDB(ctx, r.db).Model(&model.InventoryLot{}).Where("inventory_lots.shop_id = ?", shopID)
	if filter.Search != "" {
		db = db.Joins("JOIN medicines ON medicines.id = inventory_lots.medicine_id").
			Where("medicines.name ILIKE ?", "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		db = db.Where("inventory_lots.status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Order("inventory_lots.created_at desc").Offset(offset).Limit(filter.Limit).Find(&lots).Error; err != nil {
		return nil, 0, err
	}

	return lots, total, nil
}

func (r *lotRepository) ListLowStock(ctx context.Context, shopID uuid.UUID) ([]model.InventoryLot, error) {
	var lots []model.InventoryLot
	err := GetDB(ctx, r.db).
		Where("shop_id = ? AND status IN ?", shopID, []string{model.LotStatusLowStock, model.LotStatusOutOfStock}).
		Order("available_quantity asc").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepository) ListExpiring(ctx context.Context, shopID uuid.UUID, before time.Time) ([]model.InventoryLot, error) {
	var lots []model.InventoryLot
	err := GetDB(ctx, r.db).
		Where("shop_id = ? AND expiry_date > NOW() AND expiry_date <= ?", shopID, before).
		Order("expiry_date asc").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepository) ListExpired(ctx context.Context, shopID uuid.UUID, now time.Time) ([]model.InventoryLot, error) {
	var lots []model.InventoryLot
	err := GetDB(ctx, r.db).
		Where("shop_id = ? AND (status = ? OR expiry_date < ?)", shopID, model.LotStatusExpired, now).
		Order("expiry_date asc").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepository) Summary(ctx context.Context, shopID uuid.UUID) (model.InventorySummary, error) {
	var summary model.InventorySummary
	err := GetDB(ctx, r.db).Model(&model.InventoryLot{}).
		Select(`COUNT(*) as total_items,
			COALESCE(SUM(quantity * price_cost_price), 0) as total_value,
			COUNT(*) FILTER (WHERE status IN ('low-stock', 'out-of-stock')) as low_stock_count,
			COUNT(*) FILTER (WHERE status = 'expired') as expired_count`).
		Where("shop_id = ?", shopID).
		Scan(&summary).Error
	return summary, err
}
