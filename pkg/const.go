package pkg

const (
	HeaderTraceId   string = "X-Trace-Id"
	HeaderRequestId string = "X-Request-Id"
)

const (
	TraceId   string = "trace_id"
	RequestId string = "request_id"
	OrderId   string = "order_id"
	UserId    string = "user_id"
)

// EventKindOrderPlaced is the wire kind of the event emitted once per created order.
const EventKindOrderPlaced = "ORDER_PLACED"

// OrderEventSchemaVersion is bumped whenever the event payload shape changes,
// so the settlement worker can evolve independently of the intake service.
const OrderEventSchemaVersion = 1

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusFilled, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether s is a settled state that can never be left.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// CanTransition reports whether from -> to is a legal status move.
// Orders only move forward: OPEN -> FILLED or OPEN -> CANCELLED.
func CanTransition(from, to OrderStatus) bool {
	return from == OrderStatusOpen && to.IsTerminal()
}
