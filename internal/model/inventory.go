package model

import (
	"time"

	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Unit Enum Simulation
const (
	UnitPiece  = "piece"
	UnitStrip  = "strip"
	UnitBottle = "bottle"
	UnitBox    = "box"
	UnitVial   = "vial"
	UnitTube   = "tube"
	UnitSachet = "sachet"
)

// LotStatus constants
const (
	LotStatusActive     = "active"
	LotStatusLowStock   = "low-stock"
	LotStatusOutOfStock = "out-of-stock"
	LotStatusExpired    = "expired"
	LotStatusDamaged    = "damaged"
	LotStatusReturned   = "returned"
)

// MovementType Enum Simulation
const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
	MovementReturn     = "return"
)

// Movement reasons written by the system itself
const (
	ReasonInitialStock     = "initial-stock"
	ReasonOrderReservation = "order_reservation"
	ReasonOrderConfirmed   = "order_confirmed"
	ReasonOrderCancelled   = "order_cancelled"
	ReasonStatusOverride   = "status-override"
	ReasonBulkUpdate       = "bulk-update"
)

// Pricing holds the commercial fields of a lot. SellingPrice must never exceed MRP.
type Pricing struct {
	CostPrice          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cost_price"`
	SellingPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"selling_price"`
	MRP                decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"mrp"`
	DiscountPercentage decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `gorm:"type:decimal(5,2);default:0" json:"tax_percentage"`
}

// AlertConfig holds per-lot alerting thresholds and the timestamps of the last
// emitted alerts, used for re-alert cooldown.
type AlertConfig struct {
	LowStockThreshold int        `gorm:"type:int;not null;default:10" json:"low_stock_threshold"`
	ExpiryAlertDays   int        `gorm:"type:int;not null;default:30" json:"expiry_alert_days"`
	LastLowStockAlert *time.Time `json:"last_low_stock_alert,omitempty"`
	LastExpiryAlert   *time.Time `json:"last_expiry_alert,omitempty"`
}

// InventoryLot is one batch of one medicine at one shop. The (shop, medicine,
// batch_number) triple is unique. AvailableQuantity is derived from Quantity
// and ReservedQuantity; it is stored for query performance but recomputed and
// overwritten on every write path.
type InventoryLot struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ShopID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_lot_batch;index" json:"shop_id"`
	MedicineID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_lot_batch;index" json:"medicine_id"`
	BatchNumber       string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_lot_batch" json:"batch_number"`
	Quantity          int             `gorm:"type:int;not null" json:"quantity"`
	ReservedQuantity  int             `gorm:"type:int;not null;default:0" json:"reserved_quantity"`
	AvailableQuantity int             `gorm:"type:int;not null" json:"available_quantity"`
	Unit              string          `gorm:"type:varchar(20);not null;default:'piece'" json:"unit"`
	Pricing           Pricing         `gorm:"embedded;embeddedPrefix:price_" json:"pricing"`
	ManufacturingDate time.Time       `gorm:"not null" json:"manufacturing_date"`
	ExpiryDate        time.Time       `gorm:"not null;index" json:"expiry_date"`
	Alerts            AlertConfig     `gorm:"embedded;embeddedPrefix:alert_" json:"alerts"`
	Status            string          `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	Version           int64           `gorm:"type:bigint;not null;default:0" json:"version"`
	CreatedBy         *uuid.UUID      `gorm:"type:uuid" json:"created_by,omitempty"`
	LastStockUpdate   time.Time       `json:"last_stock_update"`
	Movements         []StockMovement `gorm:"foreignKey:LotID" json:"movements,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsManualStatus reports whether a status is one of the administratively set
// values that automatic status derivation must not overwrite.
func IsManualStatus(status string) bool {
	return status == LotStatusDamaged || status == LotStatusReturned
}

// ValidUnit reports whether the given unit is a known measure.
func ValidUnit(unit string) bool {
	switch unit {
	case UnitPiece, UnitStrip, UnitBottle, UnitBox, UnitVial, UnitTube, UnitSachet:
		return true
	}
	return false
}

// RecomputeAvailable refreshes the derived AvailableQuantity:
// available = max(0, quantity - reserved).
func (l *InventoryLot) RecomputeAvailable() {
	available := l.Quantity - l.ReservedQuantity
	if available < 0 {
		available = 0
	}
	l.AvailableQuantity = available
}

// ApplyMovement mutates on-hand quantity according to the movement type and
// returns the signed change applied. "adjustment" sets the quantity to an
// absolute value (stock-count correction); the other types are deltas.
func (l *InventoryLot) ApplyMovement(movementType string, quantity int) (int, error) {
	switch movementType {
	case MovementIn, MovementReturn:
		if quantity < 1 {
			return 0, apperror.Validationf("movement quantity must be at least 1")
		}
		l.Quantity += quantity
		l.RecomputeAvailable()
		return quantity, nil
	case MovementOut:
		if quantity < 1 {
			return 0, apperror.Validationf("movement quantity must be at least 1")
		}
		if l.Quantity-quantity < 0 {
			return 0, apperror.InsufficientStockf("cannot remove %d units, only %d on hand", quantity, l.Quantity)
		}
		l.Quantity -= quantity
		l.RecomputeAvailable()
		return -quantity, nil
	case MovementAdjustment:
		if quantity < 0 {
			return 0, apperror.Validationf("adjustment quantity cannot be negative")
		}
		changed := quantity - l.Quantity
		l.Quantity = quantity
		l.RecomputeAvailable()
		return changed, nil
	default:
		return 0, apperror.Validationf("unknown movement type: %s", movementType)
	}
}

// Reserve holds units against an unconfirmed order. Fails if fewer units are
// available than requested; never partially reserves.
func (l *InventoryLot) Reserve(quantity int) error {
	if quantity < 1 {
		return apperror.Validationf("reservation quantity must be at least 1")
	}
	if l.AvailableQuantity < quantity {
		return apperror.InsufficientStockf("requested %d units, only %d available", quantity, l.AvailableQuantity)
	}
	l.ReservedQuantity += quantity
	l.RecomputeAvailable()
	return nil
}

// CommitReservation converts a reservation into an on-hand deduction. Both the
// reservation release and the deduction are clamped so neither counter goes
// negative; the caller compares the returned values against the requested
// quantity to detect a reconciliation gap.
func (l *InventoryLot) CommitReservation(quantity int) (released, deducted int) {
	released = quantity
	if released > l.ReservedQuantity {
		released = l.ReservedQuantity
	}
	deducted = released
	if deducted > l.Quantity {
		deducted = l.Quantity
	}
	l.ReservedQuantity -= released
	l.Quantity -= deducted
	l.RecomputeAvailable()
	return released, deducted
}

// ReleaseReservation returns held units to the available pool, clamped at zero.
func (l *InventoryLot) ReleaseReservation(quantity int) (released int) {
	released = quantity
	if released > l.ReservedQuantity {
		released = l.ReservedQuantity
	}
	l.ReservedQuantity -= released
	l.RecomputeAvailable()
	return released
}
