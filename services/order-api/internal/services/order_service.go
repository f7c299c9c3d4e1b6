package services

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/cache"
	"github.com/tradeflow/tradeflow-engine/pkg/models"
	"github.com/tradeflow/tradeflow-engine/pkg/repositories"
	pkgviews "github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/order-api/configs"
	"github.com/tradeflow/tradeflow-engine/services/order-api/internal/views"
	"go.uber.org/zap"
)

const maxItemLength = 255

type OrderService interface {
	// SubmitOrder validates and persists a new order, publishes its creation
	// event, and invalidates the owner's cache entry. The order is committed
	// once the insert succeeds; a publish failure is returned alongside the
	// created order so the handler can report both.
	SubmitOrder(ctx context.Context, traceID string, req views.OrderRequest) (pkgviews.OrderView, error)
	// GetUserOrders returns a user's open orders, cache-aside.
	GetUserOrders(ctx context.Context, traceID string, userID int64) ([]pkgviews.OrderView, error)
	// GetOrder returns a single order by id.
	GetOrder(ctx context.Context, traceID string, id int64) (pkgviews.OrderView, error)
	// ListOrders returns every order regardless of status. Administrative.
	ListOrders(ctx context.Context, traceID string) ([]pkgviews.OrderView, error)
}

type OrderServiceImpl struct {
	logger     *zap.Logger
	cnf        *configs.Config
	orderRepo  repositories.OrderRepository
	publisher  KafkaPublisher
	orderCache cache.OrderCache
}

func NewOrderService(logger *zap.Logger, cnf *configs.Config, orderRepo repositories.OrderRepository, publisher KafkaPublisher, orderCache cache.OrderCache) OrderService {
	return &OrderServiceImpl{
		logger:     logger,
		cnf:        cnf,
		orderRepo:  orderRepo,
		publisher:  publisher,
		orderCache: orderCache,
	}
}

func (s *OrderServiceImpl) SubmitOrder(ctx context.Context, traceID string, req views.OrderRequest) (pkgviews.OrderView, error) {
	// Local, synchronous validation; never retried. Nothing may touch the
	// store, log or cache before this passes.
	if err := validateOrderRequest(req); err != nil {
		return pkgviews.OrderView{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cnf.RequestTimeout)
	defer cancel()

	order, err := s.orderRepo.Create(ctx, traceID, models.Order{
		UserID: req.UserID,
		Item:   req.Item,
		Amount: req.Amount.Round(2),
		Status: pkg.OrderStatusOpen,
	})
	if err != nil {
		return pkgviews.OrderView{}, err
	}
	s.logger.Info("order created",
		zap.String(pkg.TraceId, traceID),
		zap.Int64(pkg.OrderId, order.ID),
		zap.Int64(pkg.UserId, order.UserID),
		zap.String("item", order.Item),
		zap.String("amount", order.Amount.String()))

	// The row is durable from here on; publish and invalidation are
	// committed effects that must not undo the insert.
	publishErr := s.publisher.PublishOrderPlaced(order.ToPlacedEvent())
	if publishErr != nil {
		s.logger.Error("order persisted but event publish failed",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.OrderId, order.ID),
			zap.Error(publishErr))
	}

	// Best-effort: TTL expiry bounds staleness if the delete fails.
	if err := s.orderCache.Invalidate(ctx, order.UserID); err != nil {
		s.logger.Warn("cache invalidation failed",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.UserId, order.UserID),
			zap.Error(err))
	}

	return order.ToView(), publishErr
}

func (s *OrderServiceImpl) GetUserOrders(ctx context.Context, traceID string, userID int64) ([]pkgviews.OrderView, error) {
	if userID <= 0 {
		return nil, pkg.NewAppError(pkg.ErrInvalidInputCode, "user id must be positive", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cnf.RequestTimeout)
	defer cancel()

	// Cache lookup; errors degrade to a store read, never fail the request.
	snapshot, hit, err := s.orderCache.GetUserOrders(ctx, userID)
	if err != nil {
		s.logger.Warn("cache read failed; falling back to store",
			zap.String(pkg.TraceId, traceID), zap.Int64(pkg.UserId, userID), zap.Error(err))
	} else if hit {
		return snapshot, nil
	}

	orders, err := s.orderRepo.ListByUser(ctx, traceID, userID, pkg.OrderStatusOpen)
	if err != nil {
		return nil, err
	}
	result := toViews(orders)

	if err := s.orderCache.SetUserOrders(ctx, userID, result); err != nil {
		s.logger.Warn("cache repopulation failed",
			zap.String(pkg.TraceId, traceID), zap.Int64(pkg.UserId, userID), zap.Error(err))
	}
	return result, nil
}

func (s *OrderServiceImpl) GetOrder(ctx context.Context, traceID string, id int64) (pkgviews.OrderView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cnf.RequestTimeout)
	defer cancel()

	order, err := s.orderRepo.GetByID(ctx, traceID, id)
	if err != nil {
		return pkgviews.OrderView{}, err
	}
	return order.ToView(), nil
}

func (s *OrderServiceImpl) ListOrders(ctx context.Context, traceID string) ([]pkgviews.OrderView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cnf.RequestTimeout)
	defer cancel()

	orders, err := s.orderRepo.ListAll(ctx, traceID)
	if err != nil {
		return nil, err
	}
	return toViews(orders), nil
}

func validateOrderRequest(req views.OrderRequest) error {
	if req.UserID <= 0 {
		return pkg.NewAppError(pkg.ErrInvalidInputCode, "user id must be positive", nil)
	}
	if n := utf8.RuneCountInString(req.Item); n == 0 || n > maxItemLength {
		return pkg.NewAppError(pkg.ErrInvalidInputCode,
			fmt.Sprintf("item must be 1..%d characters", maxItemLength), nil)
	}
	if !req.Amount.IsPositive() {
		return pkg.NewAppError(pkg.ErrInvalidInputCode, "amount must be greater than zero", nil)
	}
	return nil
}

func toViews(orders []models.Order) []pkgviews.OrderView {
	result := make([]pkgviews.OrderView, 0, len(orders))
	for _, order := range orders {
		result = append(result, order.ToView())
	}
	return result
}
