package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
)

// Order maps to table `orders`.
type Order struct {
	ID        int64
	UserID    int64
	Item      string
	Amount    decimal.Decimal
	Status    pkg.OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Order) ToView() views.OrderView {
	return views.OrderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Item:      o.Item,
		Amount:    o.Amount,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// ToPlacedEvent builds the event published once for this order's creation.
func (o Order) ToPlacedEvent() views.OrderPlacedEvent {
	return views.OrderPlacedEvent{
		Kind:          pkg.EventKindOrderPlaced,
		SchemaVersion: pkg.OrderEventSchemaVersion,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Item:          o.Item,
		Amount:        o.Amount,
		Status:        o.Status,
		PlacedAt:      o.CreatedAt,
	}
}
