package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.False(t, OrderStatusOpen.IsTerminal())
	assert.True(t, OrderStatusFilled.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusOpen.Valid())
	assert.True(t, OrderStatusFilled.Valid())
	assert.True(t, OrderStatusCancelled.Valid())
	assert.False(t, OrderStatus("PENDING").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestCanTransition_OnlyForwardFromOpen(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusOpen, OrderStatusFilled))
	assert.True(t, CanTransition(OrderStatusOpen, OrderStatusCancelled))

	// No backward moves, no leaving a terminal state, no self-loop on OPEN.
	assert.False(t, CanTransition(OrderStatusFilled, OrderStatusOpen))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusOpen))
	assert.False(t, CanTransition(OrderStatusFilled, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusFilled))
	assert.False(t, CanTransition(OrderStatusOpen, OrderStatusOpen))
}
