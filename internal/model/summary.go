package model

import "github.com/shopspring/decimal"

// InventorySummary is the aggregate view of a shop's stock.
// TotalValue = sum(quantity * cost_price) over all lots.
type InventorySummary struct {
	TotalItems    int64           `json:"total_items"`
	TotalValue    decimal.Decimal `json:"total_value"`
	LowStockCount int64           `json:"low_stock_count"`
	ExpiredCount  int64           `json:"expired_count"`
}
