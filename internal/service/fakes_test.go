package service

import (
	"context"
	"fmt"
	"time"

	"backend/internal/events"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeStore is the shared in-memory backing for all repository fakes. The fake
// transaction manager snapshots it before running a transaction body and
// restores it on error, so rollback behavior matches the real stack.
type fakeStore struct {
	lots      map[uuid.UUID]model.InventoryLot
	movements []model.StockMovement
	ledger    map[string]bool
	audits    []model.AuditLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lots:   make(map[uuid.UUID]model.InventoryLot),
		ledger: make(map[string]bool),
	}
}

func (s *fakeStore) clone() *fakeStore {
	copied := &fakeStore{
		lots:      make(map[uuid.UUID]model.InventoryLot, len(s.lots)),
		movements: append([]model.StockMovement(nil), s.movements...),
		ledger:    make(map[string]bool, len(s.ledger)),
		audits:    append([]model.AuditLog(nil), s.audits...),
	}
	for id, lot := range s.lots {
		copied.lots[id] = lot
	}
	for key := range s.ledger {
		copied.ledger[key] = true
	}
	return copied
}

func (s *fakeStore) restore(from *fakeStore) {
	s.lots = from.lots
	s.movements = from.movements
	s.ledger = from.ledger
	s.audits = from.audits
}

func (s *fakeStore) addLot(lot model.InventoryLot) model.InventoryLot {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	lot.RecomputeAvailable()
	s.lots[lot.ID] = lot
	return lot
}

func (s *fakeStore) movementsFor(lotID uuid.UUID) []model.StockMovement {
	var out []model.StockMovement
	for _, m := range s.movements {
		if m.LotID == lotID {
			out = append(out, m)
		}
	}
	return out
}

// --- transaction manager ---

type fakeTxManager struct {
	store *fakeStore
}

func (t *fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	snapshot := t.store.clone()
	if err := fn(ctx); err != nil {
		t.store.restore(snapshot)
		return err
	}
	return nil
}

// --- lot repository ---

type fakeLotRepo struct {
	store     *fakeStore
	saveErr   error
	createErr error
}

func (r *fakeLotRepo) Create(_ context.Context, lot *model.InventoryLot) error {
	if r.createErr != nil {
		return r.createErr
	}
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	r.store.lots[lot.ID] = *lot
	return nil
}

func (r *fakeLotRepo) Save(_ context.Context, lot *model.InventoryLot) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.store.lots[lot.ID] = *lot
	return nil
}

func (r *fakeLotRepo) FindByID(_ context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	lot, ok := r.store.lots[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &lot, nil
}

func (r *fakeLotRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeLotRepo) FindByBatch(_ context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error) {
	for _, lot := range r.store.lots {
		if lot.ShopID == shopID && lot.MedicineID == medicineID && lot.BatchNumber == batchNumber {
			found := lot
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeLotRepo) FindByBatchForUpdate(ctx context.Context, shopID, medicineID uuid.UUID, batchNumber string) (*model.InventoryLot, error) {
	return r.FindByBatch(ctx, shopID, medicineID, batchNumber)
}

func (r *fakeLotRepo) List(_ context.Context, shopID uuid.UUID, filter repository.LotFilter) ([]model.InventoryLot, int64, error) {
	var lots []model.InventoryLot
	for _, lot := range r.store.lots {
		if lot.ShopID != shopID {
			continue
		}
		if filter.Status != "" && lot.Status != filter.Status {
			continue
		}
		lots = append(lots, lot)
	}
	return lots, int64(len(lots)), nil
}

func (r *fakeLotRepo) ListLowStock(_ context.Context, shopID uuid.UUID) ([]model.InventoryLot, error) {
	var lots []model.InventoryLot
	for _, lot := range r.store.lots {
		if lot.ShopID == shopID && (lot.Status == model.LotStatusLowStock || lot.Status == model.LotStatusOutOfStock) {
			lots = append(lots, lot)
		}
	}
	return lots, nil
}

func (r *fakeLotRepo) ListExpiring(_ context.Context, shopID uuid.UUID, before time.Time) ([]model.InventoryLot, error) {
	now := time.Now()
	var lots []model.InventoryLot
	for _, lot := range r.store.lots {
		if lot.ShopID == shopID && lot.ExpiryDate.After(now) && !lot.ExpiryDate.After(before) {
			lots = append(lots, lot)
		}
	}
	return lots, nil
}

func (r *fakeLotRepo) ListExpired(_ context.Context, shopID uuid.UUID, now time.Time) ([]model.InventoryLot, error) {
	var lots []model.InventoryLot
	for _, lot := range r.store.lots {
		if lot.ShopID == shopID && (lot.Status == model.LotStatusExpired || lot.ExpiryDate.Before(now)) {
			lots = append(lots, lot)
		}
	}
	return lots, nil
}

func (r *fakeLotRepo) Summary(_ context.Context, shopID uuid.UUID) (model.InventorySummary, error) {
	var summary model.InventorySummary
	for _, lot := range r.store.lots {
		if lot.ShopID != shopID {
			continue
		}
		summary.TotalItems++
		summary.TotalValue = summary.TotalValue.Add(lot.Pricing.CostPrice.Mul(decimal.NewFromInt(int64(lot.Quantity))))
		if lot.Status == model.LotStatusLowStock || lot.Status == model.LotStatusOutOfStock {
			summary.LowStockCount++
		}
		if lot.Status == model.LotStatusExpired {
			summary.ExpiredCount++
		}
	}
	return summary, nil
}

// --- movement repository ---

type fakeMovementRepo struct {
	store *fakeStore
}

func (r *fakeMovementRepo) Create(_ context.Context, movement *model.StockMovement) error {
	if movement.ID == uuid.Nil {
		movement.ID = uuid.New()
	}
	movement.CreatedAt = time.Now()
	r.store.movements = append(r.store.movements, *movement)
	return nil
}

func (r *fakeMovementRepo) ListByLot(_ context.Context, lotID uuid.UUID, _, _ int) ([]model.StockMovement, int64, error) {
	movements := r.store.movementsFor(lotID)
	return movements, int64(len(movements)), nil
}

// --- idempotency ledger ---

type fakeOrderEventRepo struct {
	store *fakeStore
}

func ledgerKey(event *model.ProcessedOrderEvent) string {
	return fmt.Sprintf("%s|%s|%s|%s", event.OrderID, event.MedicineID, event.BatchNumber, event.EventKind)
}

func (r *fakeOrderEventRepo) Record(_ context.Context, event *model.ProcessedOrderEvent) (bool, error) {
	key := ledgerKey(event)
	if r.store.ledger[key] {
		return false, nil
	}
	r.store.ledger[key] = true
	return true, nil
}

// --- medicine repository ---

type fakeMedicineRepo struct {
	missing map[uuid.UUID]bool
}

func (r *fakeMedicineRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Medicine, error) {
	if r.missing[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.Medicine{ID: id, Name: "Paracetamol 500mg"}, nil
}

func (r *fakeMedicineRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return !r.missing[id], nil
}

// --- audit repository ---

type fakeAuditRepo struct {
	store *fakeStore
}

func (r *fakeAuditRepo) Log(_ context.Context, entry *model.AuditLog) error {
	r.store.audits = append(r.store.audits, *entry)
	return nil
}

// --- publisher ---

type fakePublisher struct {
	published []events.Event
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, event events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *fakePublisher) ofType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range p.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- fixture ---

type fixture struct {
	store     *fakeStore
	lots      *fakeLotRepo
	movements *fakeMovementRepo
	ledger    *fakeOrderEventRepo
	medicines *fakeMedicineRepo
	audits    *fakeAuditRepo
	publisher *fakePublisher

	lotService         LotService
	reservationService ReservationService
}

func newFixture() *fixture {
	store := newFakeStore()
	f := &fixture{
		store:     store,
		lots:      &fakeLotRepo{store: store},
		movements: &fakeMovementRepo{store: store},
		ledger:    &fakeOrderEventRepo{store: store},
		medicines: &fakeMedicineRepo{missing: make(map[uuid.UUID]bool)},
		audits:    &fakeAuditRepo{store: store},
		publisher: &fakePublisher{},
	}
	tx := &fakeTxManager{store: store}
	logger := zap.NewNop()
	f.lotService = NewLotService(f.lots, f.movements, f.medicines, f.audits, tx, f.publisher, logger)
	f.reservationService = NewReservationService(f.lots, f.movements, f.ledger, tx, f.publisher, logger)
	return f
}

func (f *fixture) seedLot(quantity, reserved, threshold int) model.InventoryLot {
	lot := model.InventoryLot{
		ID:                uuid.New(),
		ShopID:            uuid.New(),
		MedicineID:        uuid.New(),
		BatchNumber:       "BATCH-001",
		Quantity:          quantity,
		ReservedQuantity:  reserved,
		Unit:              model.UnitStrip,
		Status:            model.LotStatusActive,
		ManufacturingDate: time.Now().Add(-90 * 24 * time.Hour),
		ExpiryDate:        time.Now().Add(365 * 24 * time.Hour),
		Pricing: model.Pricing{
			CostPrice:    decimal.NewFromFloat(8.50),
			SellingPrice: decimal.NewFromFloat(10),
			MRP:          decimal.NewFromFloat(12),
		},
		Alerts: model.AlertConfig{LowStockThreshold: threshold, ExpiryAlertDays: 30},
	}
	return f.store.addLot(lot)
}

func (f *fixture) lot(id uuid.UUID) model.InventoryLot {
	return f.store.lots[id]
}
