package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Medicine is a reference to a catalog entry. Catalog CRUD lives in the
// catalog service; this table exists for existence checks and display names.
type Medicine struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name         string         `gorm:"type:varchar(255);not null;index" json:"name"`
	GenericName  string         `gorm:"type:varchar(255)" json:"generic_name,omitempty"`
	Manufacturer string         `gorm:"type:varchar(255)" json:"manufacturer,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
