package views

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tradeflow/tradeflow-engine/pkg"
)

// OrderPlacedEvent is the immutable fact published to the event log once per
// created order. The schema is versioned so the settlement worker can evolve
// independently of the intake service.
type OrderPlacedEvent struct {
	SchemaVersion int             `json:"schemaVersion"`
	Kind          string          `json:"kind"`
	OrderID       int64           `json:"orderId"`
	UserID        int64           `json:"userId"`
	Item          string          `json:"item"`
	Amount        decimal.Decimal `json:"amount"`
	Status        pkg.OrderStatus `json:"status"` // status at publish time, always OPEN today
	PlacedAt      time.Time       `json:"placedAt"`
}

// Encode serializes the event for Kafka transport. Kind and schema version
// are stamped here so producers cannot forget them.
func (e OrderPlacedEvent) Encode() ([]byte, error) {
	e.Kind = pkg.EventKindOrderPlaced
	e.SchemaVersion = pkg.OrderEventSchemaVersion
	return json.Marshal(e)
}

// DecodeOrderPlacedEvent parses and validates an event payload. It rejects
// malformed JSON, unknown kinds and unsupported schema versions so the
// consumer can route poison messages to the DLQ instead of retrying forever.
func DecodeOrderPlacedEvent(b []byte) (OrderPlacedEvent, error) {
	var e OrderPlacedEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return OrderPlacedEvent{}, fmt.Errorf("malformed order event payload: %w", err)
	}
	if e.Kind != pkg.EventKindOrderPlaced {
		return OrderPlacedEvent{}, fmt.Errorf("unexpected event kind %q", e.Kind)
	}
	if e.SchemaVersion != pkg.OrderEventSchemaVersion {
		return OrderPlacedEvent{}, fmt.Errorf("unsupported order event schema version %d", e.SchemaVersion)
	}
	if e.OrderID <= 0 {
		return OrderPlacedEvent{}, fmt.Errorf("order event carries invalid order id %d", e.OrderID)
	}
	return e, nil
}
