package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/models"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/configs"
	"go.uber.org/zap"
)

type fakeOrderStore struct {
	orders  map[int64]models.Order
	updates []int64
	failure error
}

func newFakeOrderStore(seed ...models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: map[int64]models.Order{}}
	for _, order := range seed {
		s.orders[order.ID] = order
	}
	return s
}

func (f *fakeOrderStore) Create(_ context.Context, _ string, order models.Order) (models.Order, error) {
	f.orders[order.ID] = order
	return order, nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, _ string, id int64) (models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return models.Order{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", nil)
	}
	return order, nil
}

func (f *fakeOrderStore) ListByUser(_ context.Context, _ string, _ int64, _ pkg.OrderStatus) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderStore) ListAll(_ context.Context, _ string) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, _ string, id int64, status pkg.OrderStatus) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, pkg.NewAppError(pkg.ErrSQLUnknownCode, "sql error", err)
	}
	f.updates = append(f.updates, id)
	if f.failure != nil {
		return models.Order{}, f.failure
	}
	order, ok := f.orders[id]
	if !ok {
		return models.Order{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", nil)
	}
	if order.Status == status {
		return order, nil
	}
	if !pkg.CanTransition(order.Status, status) {
		return models.Order{}, pkg.NewAppError(pkg.ErrInvalidTransitionCode, "illegal order status transition", nil)
	}
	order.Status = status
	f.orders[id] = order
	return order, nil
}

type fakeCache struct {
	invalidated []int64
	failure     error
}

func (f *fakeCache) GetUserOrders(_ context.Context, _ int64) ([]views.OrderView, bool, error) {
	return nil, false, nil
}

func (f *fakeCache) SetUserOrders(_ context.Context, _ int64, _ []views.OrderView) error {
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.invalidated = append(f.invalidated, userID)
	return f.failure
}

func newTestSettlement(store *fakeOrderStore, c *fakeCache) SettlementService {
	cnf := &configs.Config{
		SettlementDelay: 5 * time.Millisecond,
		StoreTimeout:    time.Second,
	}
	return NewSettlementService(zap.NewNop(), cnf, store, c)
}

func placedEvent(orderID int64) views.OrderPlacedEvent {
	return views.OrderPlacedEvent{
		SchemaVersion: pkg.OrderEventSchemaVersion,
		Kind:          pkg.EventKindOrderPlaced,
		OrderID:       orderID,
		UserID:        42,
		Item:          "Widget",
		Status:        pkg.OrderStatusOpen,
		PlacedAt:      time.Now(),
	}
}

func TestSettle_FillsOpenOrderAndInvalidatesCache(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	err := svc.Settle(context.Background(), "trace", placedEvent(1))
	require.NoError(t, err)

	assert.Equal(t, pkg.OrderStatusFilled, store.orders[1].Status)
	assert.Equal(t, []int64{42}, c.invalidated)
}

func TestSettle_FinishesInFlightWorkAfterShutdown(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	// Shutdown cancels the consumer context while this event is mid-flight;
	// the fill and the cache invalidation must still go through.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Settle(ctx, "trace", placedEvent(1))
	require.NoError(t, err)
	assert.Equal(t, pkg.OrderStatusFilled, store.orders[1].Status)
	assert.Equal(t, []int64{42}, c.invalidated)
}

func TestSettle_RedeliveryIsIdempotent(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	require.NoError(t, svc.Settle(context.Background(), "trace", placedEvent(1)))
	require.NoError(t, svc.Settle(context.Background(), "trace", placedEvent(1)))

	assert.Equal(t, pkg.OrderStatusFilled, store.orders[1].Status)
	assert.Len(t, store.updates, 2)
}

func TestSettle_UnknownOrderIsAcknowledged(t *testing.T) {
	store := newFakeOrderStore()
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	err := svc.Settle(context.Background(), "trace", placedEvent(99))
	assert.NoError(t, err)
	assert.Empty(t, c.invalidated)
}

func TestSettle_CancelledOrderIsAcknowledgedUnchanged(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusCancelled})
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	err := svc.Settle(context.Background(), "trace", placedEvent(1))
	assert.NoError(t, err)
	assert.Equal(t, pkg.OrderStatusCancelled, store.orders[1].Status)
	assert.Empty(t, c.invalidated)
}

func TestSettle_TransientStoreFailureIsReturned(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	store.failure = pkg.NewAppError(pkg.ErrSQLUnknownCode, "sql error", errors.New("connection reset"))
	c := &fakeCache{}
	svc := newTestSettlement(store, c)

	err := svc.Settle(context.Background(), "trace", placedEvent(1))
	assert.True(t, pkg.HasCode(err, pkg.ErrSQLUnknownCode))
	assert.Empty(t, c.invalidated)
}

func TestSettle_CacheFailureDoesNotBlockAck(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	c := &fakeCache{failure: errors.New("redis timeout")}
	svc := newTestSettlement(store, c)

	err := svc.Settle(context.Background(), "trace", placedEvent(1))
	assert.NoError(t, err)
	assert.Equal(t, pkg.OrderStatusFilled, store.orders[1].Status)
}

func TestSettle_WaitsSettlementDelay(t *testing.T) {
	store := newFakeOrderStore(models.Order{ID: 1, UserID: 42, Status: pkg.OrderStatusOpen})
	svc := newTestSettlement(store, &fakeCache{})

	start := time.Now()
	require.NoError(t, svc.Settle(context.Background(), "trace", placedEvent(1)))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
