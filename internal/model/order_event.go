package model

import (
	"time"

	"github.com/google/uuid"
)

// Order lifecycle event kinds consumed from the order service.
const (
	OrderEventPlaced    = "placed"
	OrderEventConfirmed = "confirmed"
	OrderEventCancelled = "cancelled"
	OrderEventDelivered = "delivered"
)

// OrderEvent is the payload published by the order service on its lifecycle
// topics. Field names follow that service's JSON contract.
type OrderEvent struct {
	OrderID uuid.UUID        `json:"orderId"`
	ShopID  uuid.UUID        `json:"shopId"`
	UserID  uuid.UUID        `json:"userId"`
	Items   []OrderEventItem `json:"items"`
}

// OrderEventItem is one line of an order event.
type OrderEventItem struct {
	MedicineID  uuid.UUID `json:"medicineId"`
	BatchNumber string    `json:"batchNumber"`
	Quantity    int       `json:"quantity"`
}

// ProcessedOrderEvent is the idempotency ledger. The order service delivers
// events at least once; a row here means the quantity-affecting effect of
// (order, line item, kind) has already been applied, so replays are no-ops.
// The row is inserted in the same transaction as the lot mutation.
type ProcessedOrderEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_order_event" json:"order_id"`
	MedicineID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_order_event" json:"medicine_id"`
	BatchNumber string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_event" json:"batch_number"`
	EventKind   string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_event" json:"event_kind"`
	ShopID      uuid.UUID `gorm:"type:uuid;not null;index" json:"shop_id"`
	CreatedAt   time.Time `json:"created_at"`
}
