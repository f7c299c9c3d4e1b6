package views

import "github.com/shopspring/decimal"

// OrderRequest is the submit-order payload. Amount positivity and item
// length are re-checked in the service so the rules hold for every caller,
// not just the HTTP binding.
type OrderRequest struct {
	UserID int64           `json:"userId" binding:"required,gt=0"`
	Item   string          `json:"item" binding:"required,max=255"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}
