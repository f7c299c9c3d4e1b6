package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/models"
	pkgviews "github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/order-api/configs"
	"github.com/tradeflow/tradeflow-engine/services/order-api/internal/views"
	"go.uber.org/zap"
)

// --- fakes -----------------------------------------------------------------

type fakeOrderRepo struct {
	nextID  int64
	orders  map[int64]models.Order
	created []models.Order
	failure error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[int64]models.Order{}}
}

func (f *fakeOrderRepo) Create(_ context.Context, _ string, order models.Order) (models.Order, error) {
	if f.failure != nil {
		return models.Order{}, f.failure
	}
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.orders[order.ID] = order
	f.created = append(f.created, order)
	return order, nil
}

func (f *fakeOrderRepo) GetByID(_ context.Context, _ string, id int64) (models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return models.Order{}, pkg.NewAppError(pkg.ErrRecordNotFoundCode, "no records found", nil)
	}
	return order, nil
}

func (f *fakeOrderRepo) ListByUser(_ context.Context, _ string, userID int64, status pkg.OrderStatus) ([]models.Order, error) {
	if f.failure != nil {
		return nil, f.failure
	}
	var out []models.Order
	for id := int64(1); id <= f.nextID; id++ {
		order, ok := f.orders[id]
		if ok && order.UserID == userID && order.Status == status {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) ListAll(_ context.Context, _ string) ([]models.Order, error) {
	var out []models.Order
	for id := int64(1); id <= f.nextID; id++ {
		if order, ok := f.orders[id]; ok {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, _ string, id int64, status pkg.OrderStatus) (models.Order, error) {
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

type fakePublisher struct {
	events  []pkgviews.OrderPlacedEvent
	failure error
}

func (f *fakePublisher) PublishOrderPlaced(event pkgviews.OrderPlacedEvent) error {
	if f.failure != nil {
		return f.failure
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() {}

type fakeOrderCache struct {
	entries     map[int64][]pkgviews.OrderView
	invalidated []int64
	getFailure  error
	setFailure  error
	delFailure  error
	sets        int
}

func newFakeOrderCache() *fakeOrderCache {
	return &fakeOrderCache{entries: map[int64][]pkgviews.OrderView{}}
}

func (f *fakeOrderCache) GetUserOrders(_ context.Context, userID int64) ([]pkgviews.OrderView, bool, error) {
	if f.getFailure != nil {
		return nil, false, f.getFailure
	}
	snapshot, ok := f.entries[userID]
	return snapshot, ok, nil
}

func (f *fakeOrderCache) SetUserOrders(_ context.Context, userID int64, orders []pkgviews.OrderView) error {
	if f.setFailure != nil {
		return f.setFailure
	}
	f.sets++
	f.entries[userID] = orders
	return nil
}

func (f *fakeOrderCache) Invalidate(_ context.Context, userID int64) error {
	f.invalidated = append(f.invalidated, userID)
	if f.delFailure != nil {
		return f.delFailure
	}
	delete(f.entries, userID)
	return nil
}

func newTestService(repo *fakeOrderRepo, pub *fakePublisher, c *fakeOrderCache) OrderService {
	cnf := &configs.Config{RequestTimeout: time.Second}
	return NewOrderService(zap.NewNop(), cnf, repo, pub, c)
}

func validRequest() views.OrderRequest {
	return views.OrderRequest{
		UserID: 7,
		Item:   "Widget",
		Amount: decimal.RequireFromString("9.99"),
	}
}

// --- SubmitOrder -----------------------------------------------------------

func TestSubmitOrder_Success(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	order, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, pkg.OrderStatusOpen, order.Status)
	assert.True(t, order.Amount.Equal(decimal.RequireFromString("9.99")))

	// Exactly one event, reflecting the created order.
	require.Len(t, pub.events, 1)
	assert.Equal(t, order.ID, pub.events[0].OrderID)
	assert.Equal(t, pkg.OrderStatusOpen, pub.events[0].Status)

	// The owner's cache entry was invalidated.
	assert.Equal(t, []int64{7}, c.invalidated)
}

func TestSubmitOrder_AssignsDistinctIDs(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	first, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)
	second, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.GreaterOrEqual(t, len(c.invalidated), 1)
}

func TestSubmitOrder_RoundsAmountToTwoPlaces(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	req := validRequest()
	req.Amount = decimal.RequireFromString("9.999")
	order, err := svc.SubmitOrder(context.Background(), "trace", req)
	require.NoError(t, err)

	assert.True(t, order.Amount.Equal(decimal.RequireFromString("10.00")),
		"got %s", order.Amount)
}

func TestSubmitOrder_ValidationFailuresHaveNoSideEffects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*views.OrderRequest)
	}{
		{"non-positive user", func(r *views.OrderRequest) { r.UserID = 0 }},
		{"negative user", func(r *views.OrderRequest) { r.UserID = -3 }},
		{"empty item", func(r *views.OrderRequest) { r.Item = "" }},
		{"oversized item", func(r *views.OrderRequest) {
			long := make([]rune, 256)
			for i := range long {
				long[i] = 'x'
			}
			r.Item = string(long)
		}},
		{"zero amount", func(r *views.OrderRequest) { r.Amount = decimal.Zero }},
		{"negative amount", func(r *views.OrderRequest) { r.Amount = decimal.RequireFromString("-1.50") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
			svc := newTestService(repo, pub, c)

			req := validRequest()
			tc.mutate(&req)

			_, err := svc.SubmitOrder(context.Background(), "trace", req)
			assert.True(t, pkg.HasCode(err, pkg.ErrInvalidInputCode), "got %v", err)

			// No store row, no event, no cache mutation.
			assert.Empty(t, repo.created)
			assert.Empty(t, pub.events)
			assert.Empty(t, c.invalidated)
		})
	}
}

func TestSubmitOrder_InsertFailurePublishesNothing(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	repo.failure = pkg.NewAppError(pkg.ErrSQLUnknownCode, "sql error", errors.New("down"))
	svc := newTestService(repo, pub, c)

	_, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	assert.True(t, pkg.HasCode(err, pkg.ErrSQLUnknownCode))
	assert.Empty(t, pub.events)
	assert.Empty(t, c.invalidated)
}

func TestSubmitOrder_PublishFailureKeepsOrderCommitted(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	pub.failure = pkg.NewAppError(pkg.ErrPublishFailedCode, "broker rejected order event", errors.New("broker down"))
	svc := newTestService(repo, pub, c)

	order, err := svc.SubmitOrder(context.Background(), "trace", validRequest())

	// The error surfaces, but the row stays and the cache was still dropped.
	assert.True(t, pkg.HasCode(err, pkg.ErrPublishFailedCode))
	assert.Equal(t, int64(1), order.ID)
	assert.Len(t, repo.created, 1)
	assert.Equal(t, []int64{7}, c.invalidated)
}

func TestSubmitOrder_CacheInvalidationFailureIsSwallowed(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	c.delFailure = errors.New("redis timeout")
	svc := newTestService(repo, pub, c)

	order, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
	require.Len(t, pub.events, 1)
}

// --- GetUserOrders ---------------------------------------------------------

func TestGetUserOrders_CacheHitSkipsStore(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	cached := []pkgviews.OrderView{{ID: 9, UserID: 3, Item: "Gear", Status: pkg.OrderStatusOpen}}
	c.entries[3] = cached
	// A store failure would surface if the service fell through to it.
	repo.failure = errors.New("store must not be hit")
	svc := newTestService(repo, pub, c)

	orders, err := svc.GetUserOrders(context.Background(), "trace", 3)
	require.NoError(t, err)
	assert.Equal(t, cached, orders)
}

func TestGetUserOrders_MissReadsStoreAndRepopulates(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	_, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)

	orders, err := svc.GetUserOrders(context.Background(), "trace", 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, pkg.OrderStatusOpen, orders[0].Status)

	// Snapshot was written back with the store result.
	assert.Equal(t, 1, c.sets)
	assert.Len(t, c.entries[7], 1)
}

func TestGetUserOrders_ExcludesSettledOrders(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	first, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)
	_, err = svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)

	_, err = repo.UpdateStatus(context.Background(), "trace", first.ID, pkg.OrderStatusFilled)
	require.NoError(t, err)

	orders, err := svc.GetUserOrders(context.Background(), "trace", 7)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.NotEqual(t, first.ID, orders[0].ID)
}

func TestGetUserOrders_CacheErrorFallsOpenToStore(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	c.getFailure = errors.New("redis down")
	svc := newTestService(repo, pub, c)

	_, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)

	orders, err := svc.GetUserOrders(context.Background(), "trace", 7)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestGetUserOrders_RejectsNonPositiveUser(t *testing.T) {
	svc := newTestService(newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache())

	_, err := svc.GetUserOrders(context.Background(), "trace", 0)
	assert.True(t, pkg.HasCode(err, pkg.ErrInvalidInputCode))
}

// --- GetOrder / ListOrders -------------------------------------------------

func TestGetOrder_NotFound(t *testing.T) {
	svc := newTestService(newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache())

	_, err := svc.GetOrder(context.Background(), "trace", 12345)
	assert.True(t, pkg.HasCode(err, pkg.ErrRecordNotFoundCode))
}

func TestListOrders_ReturnsAllStatuses(t *testing.T) {
	repo, pub, c := newFakeOrderRepo(), &fakePublisher{}, newFakeOrderCache()
	svc := newTestService(repo, pub, c)

	first, err := svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)
	_, err = svc.SubmitOrder(context.Background(), "trace", validRequest())
	require.NoError(t, err)
	_, err = repo.UpdateStatus(context.Background(), "trace", first.ID, pkg.OrderStatusFilled)
	require.NoError(t, err)

	orders, err := svc.ListOrders(context.Background(), "trace")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}
