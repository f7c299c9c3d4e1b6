package views

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradeflow/tradeflow-engine/pkg"
)

// OrderView is the point-in-time order projection returned by the API and
// stored in cache snapshots.
type OrderView struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Item      string          `json:"item"`
	Amount    decimal.Decimal `json:"amount"`
	Status    pkg.OrderStatus `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
