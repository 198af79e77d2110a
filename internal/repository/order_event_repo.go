package repository

import (
	"context"

	"backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderEventRepository interface {
	// Record inserts the idempotency row for one (order, line item, kind)
	// tuple. It returns false when the tuple was already recorded, meaning
	// the event's effect has been applied before and must not be reapplied.
	Record(ctx context.Context, event *model.ProcessedOrderEvent) (bool, error)
}

type orderEventRepository struct {
	db *gorm.DB
}

func NewOrderEventRepository(db *gorm.DB) OrderEventRepository {
	return &orderEventRepository{db: db}
}

func (r *orderEventRepository) Record(ctx context.Context, event *model.ProcessedOrderEvent) (bool, error) {
	result := GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
