// Package alert derives lot status and alert decisions. Evaluate is a pure
// function of the lot and a clock reading, so the same inputs always produce
// the same result regardless of where it is called from.
package alert

import (
	"time"

	"backend/internal/model"
)

// RealertInterval is the minimum gap between two emissions of the same alert
// for the same lot.
const RealertInterval = 24 * time.Hour

// Result is the outcome of evaluating one lot.
type Result struct {
	Status       string
	LowStock     bool
	ExpiringSoon bool
	Expired      bool

	// ShouldAlertLowStock and ShouldAlertExpiry additionally account for the
	// re-alert cooldown; the caller persists the new alert timestamps in the
	// same transaction that mutated the lot.
	ShouldAlertLowStock bool
	ShouldAlertExpiry   bool
}

// Evaluate derives the lot status and alert flags. Precedence is fixed:
// expiry dominates stock level, out-of-stock dominates low-stock.
// ExpiringSoon is independent of status and only drives alert emission.
func Evaluate(lot *model.InventoryLot, now time.Time) Result {
	var r Result

	switch {
	case now.After(lot.ExpiryDate):
		r.Expired = true
		r.Status = model.LotStatusExpired
	case lot.Quantity == 0:
		r.Status = model.LotStatusOutOfStock
	case lot.AvailableQuantity <= lot.Alerts.LowStockThreshold:
		r.LowStock = true
		r.Status = model.LotStatusLowStock
	default:
		r.Status = model.LotStatusActive
	}

	alertWindow := time.Duration(lot.Alerts.ExpiryAlertDays) * 24 * time.Hour
	if !lot.ExpiryDate.After(now.Add(alertWindow)) {
		r.ExpiringSoon = true
	}

	r.ShouldAlertLowStock = (r.LowStock || r.Status == model.LotStatusOutOfStock) &&
		cooldownElapsed(lot.Alerts.LastLowStockAlert, now)
	r.ShouldAlertExpiry = (r.ExpiringSoon || r.Expired) &&
		cooldownElapsed(lot.Alerts.LastExpiryAlert, now)

	return r
}

func cooldownElapsed(last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= RealertInterval
}
