package repository

import (
	"context"
	"errors"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShopRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Shop, error)
	// IsOwner reports whether userID owns the given shop.
	IsOwner(ctx context.Context, shopID, userID uuid.UUID) (bool, error)
}

type shopRepository struct {
	db *gorm.DB
}

func NewShopRepository(db *gorm.DB) ShopRepository {
	return &shopRepository{db: db}
}

func (r *shopRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Shop, error) {
	var shop model.Shop
	if err := GetDB(ctx, r.db).First(&shop, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *shopRepository) IsOwner(ctx context.Context, shopID, userID uuid.UUID) (bool, error) {
	var shop model.Shop
	err := GetDB(ctx, r.db).Select("id").Where("id = ? AND owner_id = ?", shopID, userID).First(&shop).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
