package events

import (
	"context"
	"time"

	"backend/internal/model"

	"github.com/google/uuid"
)

// Inventory event types published to downstream consumers
// (notification and analytics services, dashboard websocket).
const (
	EventInventoryAdded    = "inventory.added"
	EventInventoryUpdated  = "inventory.updated"
	EventStockMovement     = "inventory.stock_movement"
	EventLowStockAlert     = "inventory.low_stock_alert"
	EventExpiryAlert       = "inventory.expiry_alert"
	EventReservationFailed = "inventory.reservation_failed"
)

// Event is one inventory-domain event. Data carries the event-specific fields
// (new quantities, thresholds crossed, failure reasons).
type Event struct {
	Type        string                 `json:"type"`
	ShopID      uuid.UUID              `json:"shop_id"`
	MedicineID  uuid.UUID              `json:"medicine_id"`
	BatchNumber string                 `json:"batch_number"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewLotEvent builds an event scoped to a lot's batch key.
func NewLotEvent(eventType string, lot *model.InventoryLot, data map[string]interface{}) Event {
	return Event{
		Type:        eventType,
		ShopID:      lot.ShopID,
		MedicineID:  lot.MedicineID,
		BatchNumber: lot.BatchNumber,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// Publisher is the outbound event transport. Implementations must respect the
// context deadline; a failed publish is logged by the caller and never undoes
// the committed mutation it describes.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// OrderHandler processes one consumed order lifecycle event. Implemented by
// the reservation service.
type OrderHandler interface {
	HandleOrderEvent(ctx context.Context, kind string, event model.OrderEvent) error
}
