package views

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeflow/tradeflow-engine/pkg"
)

func sampleEvent() OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:  42,
		UserID:   7,
		Item:     "Widget",
		Amount:   decimal.RequireFromString("9.99"),
		Status:   pkg.OrderStatusOpen,
		PlacedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestOrderPlacedEvent_EncodeStampsKindAndVersion(t *testing.T) {
	b, err := sampleEvent().Encode()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, pkg.EventKindOrderPlaced, raw["kind"])
	assert.Equal(t, float64(pkg.OrderEventSchemaVersion), raw["schemaVersion"])
}

func TestDecodeOrderPlacedEvent_RoundTrip(t *testing.T) {
	b, err := sampleEvent().Encode()
	require.NoError(t, err)

	got, err := DecodeOrderPlacedEvent(b)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, "Widget", got.Item)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, pkg.OrderStatusOpen, got.Status)
}

func TestDecodeOrderPlacedEvent_RejectsMalformedJSON(t *testing.T) {
	_, err := DecodeOrderPlacedEvent([]byte(`{"kind": "ORDER_PLACED"`))
	assert.ErrorContains(t, err, "malformed")
}

func TestDecodeOrderPlacedEvent_RejectsUnknownKind(t *testing.T) {
	e := sampleEvent()
	e.Kind = "ORDER_CANCELLED"
	e.SchemaVersion = pkg.OrderEventSchemaVersion
	b, err := json.Marshal(e)
	require.NoError(t, err)

	_, err = DecodeOrderPlacedEvent(b)
	assert.ErrorContains(t, err, "unexpected event kind")
}

func TestDecodeOrderPlacedEvent_RejectsUnsupportedVersion(t *testing.T) {
	e := sampleEvent()
	e.Kind = pkg.EventKindOrderPlaced
	e.SchemaVersion = 99
	b, err := json.Marshal(e)
	require.NoError(t, err)

	_, err = DecodeOrderPlacedEvent(b)
	assert.ErrorContains(t, err, "unsupported order event schema version")
}

func TestDecodeOrderPlacedEvent_RejectsInvalidOrderID(t *testing.T) {
	e := sampleEvent()
	e.Kind = pkg.EventKindOrderPlaced
	e.SchemaVersion = pkg.OrderEventSchemaVersion
	e.OrderID = 0
	b, err := json.Marshal(e)
	require.NoError(t, err)

	_, err = DecodeOrderPlacedEvent(b)
	assert.ErrorContains(t, err, "invalid order id")
}
