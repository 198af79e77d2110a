package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/alert"
	"backend/internal/events"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/pkg/apperror"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errAlreadyProcessed aborts a line transaction when the idempotency ledger
// shows the event was applied before. Nothing has been mutated at that point,
// so the rollback is a no-op and the line counts as handled.
var errAlreadyProcessed = errors.New("order event already processed")

// ReservationService is the only writer path from order lifecycle events to
// the inventory ledger. Each line item is applied in its own transaction under
// a row lock, with an idempotency row inserted alongside the mutation so that
// at-least-once delivery cannot double-apply a quantity effect.
type ReservationService interface {
	events.OrderHandler
}

type reservationService struct {
	lots      repository.LotRepository
	movements repository.MovementRepository
	ledger    repository.OrderEventRepository
	txManager repository.TransactionManager
	publisher events.Publisher
	logger    *zap.Logger
}

func NewReservationService(
	lots repository.LotRepository,
	movements repository.MovementRepository,
	ledger repository.OrderEventRepository,
	txManager repository.TransactionManager,
	publisher events.Publisher,
	logger *zap.Logger,
) ReservationService {
	return &reservationService{
		lots:      lots,
		movements: movements,
		ledger:    ledger,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleOrderEvent applies one order lifecycle event to every line item.
// Business failures (missing lot, insufficient stock) are isolated per line:
// they are logged and published but do not stop the remaining lines. A
// transient failure is returned so the consumer retries the whole event;
// already-applied lines are protected by the idempotency ledger.
func (s *reservationService) HandleOrderEvent(ctx context.Context, kind string, event model.OrderEvent) error {
	switch kind {
	case model.OrderEventPlaced, model.OrderEventConfirmed, model.OrderEventCancelled, model.OrderEventDelivered:
	default:
		return apperror.Validationf("unknown order event kind: %s", kind)
	}
	if len(event.Items) == 0 {
		return apperror.Validationf("order event %s has no items", event.OrderID)
	}

	var transient error
	for _, item := range event.Items {
		if err := s.processLine(ctx, kind, event, item); err != nil {
			if !apperror.Permanent(err) {
				transient = err
				continue
			}
			s.logger.Warn("order line rejected",
				zap.String("kind", kind),
				zap.String("order_id", event.OrderID.String()),
				zap.String("medicine_id", item.MedicineID.String()),
				zap.String("batch_number", item.BatchNumber),
				zap.Error(err),
			)
			if kind == model.OrderEventPlaced {
				s.publish(ctx, events.Event{
					Type:        events.EventReservationFailed,
					ShopID:      event.ShopID,
					MedicineID:  item.MedicineID,
					BatchNumber: item.BatchNumber,
					Data: map[string]interface{}{
						"order_id": event.OrderID.String(),
						"quantity": item.Quantity,
						"reason":   err.Error(),
					},
					Timestamp: time.Now(),
				})
			}
		}
	}
	return transient
}

func (s *reservationService) processLine(ctx context.Context, kind string, event model.OrderEvent, item model.OrderEventItem) error {
	now := time.Now()

	var lot *model.InventoryLot
	var eval alert.Result
	var statusChanged bool
	var movement *model.StockMovement

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		inserted, ledgerErr := s.ledger.Record(txCtx, &model.ProcessedOrderEvent{
			OrderID:     event.OrderID,
			MedicineID:  item.MedicineID,
			BatchNumber: item.BatchNumber,
			EventKind:   kind,
			ShopID:      event.ShopID,
		})
		if ledgerErr != nil {
			return fmt.Errorf("failed to record idempotency key: %w", ledgerErr)
		}
		if !inserted {
			return errAlreadyProcessed
		}

		found, findErr := s.lots.FindByBatchForUpdate(txCtx, event.ShopID, item.MedicineID, item.BatchNumber)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apperror.NotFoundf("no lot for medicine %s batch %s", item.MedicineID, item.BatchNumber)
			}
			return fmt.Errorf("failed to lock lot: %w", findErr)
		}
		lot = found

		var applyErr error
		movement, applyErr = s.applyOrderEvent(lot, kind, event, item, now)
		if applyErr != nil {
			return applyErr
		}

		eval = alert.Evaluate(lot, now)
		statusChanged = applyEvaluationTo(lot, eval, now)
		lot.Version++

		if saveErr := s.lots.Save(txCtx, lot); saveErr != nil {
			return fmt.Errorf("failed to save lot: %w", saveErr)
		}
		if movement != nil {
			if movErr := s.movements.Create(txCtx, movement); movErr != nil {
				return fmt.Errorf("failed to record movement: %w", movErr)
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.logger.Debug("duplicate order event ignored",
			zap.String("kind", kind),
			zap.String("order_id", event.OrderID.String()),
			zap.String("batch_number", item.BatchNumber),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if movement != nil {
		s.publish(ctx, events.NewLotEvent(events.EventStockMovement, lot, map[string]interface{}{
			"movement_type":    movement.Type,
			"quantity":         movement.Quantity,
			"quantity_changed": movement.QuantityChanged,
			"quantity_after":   movement.QuantityAfter,
			"reason":           movement.Reason,
			"order_id":         event.OrderID.String(),
		}))
	}
	if statusChanged {
		s.publish(ctx, events.NewLotEvent(events.EventInventoryUpdated, lot, map[string]interface{}{
			"status":             lot.Status,
			"quantity":           lot.Quantity,
			"available_quantity": lot.AvailableQuantity,
		}))
	}
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

	return nil
}

// applyOrderEvent mutates the lot for one event kind and builds the audit
// movement. Returns a nil movement for kinds with no ledger effect.
func (s *reservationService) applyOrderEvent(lot *model.InventoryLot, kind string, event model.OrderEvent, item model.OrderEventItem, now time.Time) (*model.StockMovement, error) {
	reference := event.OrderID.String()

	switch kind {
	case model.OrderEventPlaced:
		if err := lot.Reserve(item.Quantity); err != nil {
			return nil, err
		}
		lot.LastStockUpdate = now
		return &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementOut,
			Quantity:        item.Quantity,
			QuantityChanged: 0,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonOrderReservation,
			Reference:       reference,
		}, nil

	case model.OrderEventConfirmed:
		released, deducted := lot.CommitReservation(item.Quantity)
		notes := ""
		if released < item.Quantity || deducted < released {
			// The order service believes more was reserved than the ledger
			// holds. Clamp instead of going negative and flag the gap.
			notes = fmt.Sprintf("reconciliation: requested %d, released %d, deducted %d",
				item.Quantity, released, deducted)
			s.logger.Warn("order confirmation exceeded reservation",
				zap.String("order_id", reference),
				zap.String("batch_number", lot.BatchNumber),
				zap.Int("requested", item.Quantity),
				zap.Int("released", released),
				zap.Int("deducted", deducted),
			)
		}
		lot.LastStockUpdate = now
		return &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementOut,
			Quantity:        item.Quantity,
			QuantityChanged: -deducted,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonOrderConfirmed,
			Reference:       reference,
			Notes:           notes,
		}, nil

	case model.OrderEventCancelled:
		released := lot.ReleaseReservation(item.Quantity)
		lot.LastStockUpdate = now
		return &model.StockMovement{
			LotID:           lot.ID,
			Type:            model.MovementAdjustment,
			Quantity:        item.Quantity,
			QuantityChanged: 0,
			QuantityAfter:   lot.Quantity,
			Reason:          model.ReasonOrderCancelled,
			Reference:       reference,
			Notes:           fmt.Sprintf("released %d of %d requested", released, item.Quantity),
		}, nil

	case model.OrderEventDelivered:
		// No quantity effect; the evaluation after this call surfaces
		// post-fulfillment low-stock and reorder alerts.
		return nil, nil

	default:
		return nil, apperror.Validationf("unknown order event kind: %s", kind)
	}
}

// applyEvaluationTo writes the derived status onto the lot unless it carries
// a manual override, and stamps alert timestamps for due alerts. Returns
// whether the status changed.
func applyEvaluationTo(lot *model.InventoryLot, eval alert.Result, now time.Time) bool {
	applyAlertTimestamps(lot, eval, now)
	if model.IsManualStatus(lot.Status) {
		return false
	}
	if lot.Status == eval.Status {
		return false
	}
	lot.Status = eval.Status
	return true
}

func (s *reservationService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish inventory event",
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}
