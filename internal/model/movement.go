package model

import (
	"time"

	"github.com/google/uuid"
)

// StockMovement is one audited change to a lot. Rows are append-only: they are
// written inside the same transaction that mutated the lot and never updated
// or deleted afterwards. QuantityAfter snapshots on-hand quantity so the
// ledger can be reconciled offline without replaying deltas.
type StockMovement struct {
	ID              uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LotID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"lot_id"`
	Type            string     `gorm:"type:varchar(12);not null" json:"type"` // in, out, adjustment, return
	Quantity        int        `gorm:"type:int;not null" json:"quantity"`
	QuantityChanged int        `gorm:"type:int;not null" json:"quantity_changed"`
	QuantityAfter   int        `gorm:"type:int;not null" json:"quantity_after"`
	Reason          string     `gorm:"type:varchar(100);not null" json:"reason"`
	Reference       string     `gorm:"type:varchar(100);index" json:"reference,omitempty"` // order id, document no, ...
	PerformedBy     *uuid.UUID `gorm:"type:uuid" json:"performed_by,omitempty"`
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
}
