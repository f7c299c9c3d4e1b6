package services

import (
	"context"
	"time"

	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/cache"
	"github.com/tradeflow/tradeflow-engine/pkg/repositories"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
	"github.com/tradeflow/tradeflow-engine/services/settlement-worker/configs"
	"go.uber.org/zap"
)

// SettlementService moves a placed order to its terminal FILLED state.
type SettlementService interface {
	// Settle processes one order-placed event. A nil return means the event
	// is fully handled and may be acknowledged; a non-nil return leaves the
	// event unacknowledged so the broker redelivers it.
	Settle(ctx context.Context, traceID string, event views.OrderPlacedEvent) error
}

type SettlementServiceImpl struct {
	logger     *zap.Logger
	cnf        *configs.Config
	orderRepo  repositories.OrderRepository
	orderCache cache.OrderCache
}

func NewSettlementService(logger *zap.Logger, cnf *configs.Config, orderRepo repositories.OrderRepository, orderCache cache.OrderCache) SettlementService {
	return &SettlementServiceImpl{
		logger:     logger,
		cnf:        cnf,
		orderRepo:  orderRepo,
		orderCache: orderCache,
	}
}

func (s *SettlementServiceImpl) Settle(ctx context.Context, traceID string, event views.OrderPlacedEvent) error {
	// Simulated matching latency. Deliberately not cancellable: a half-run
	// settlement delay has no state to unwind, and shutdown waits for
	// in-flight events anyway.
	time.Sleep(s.cnf.SettlementDelay)

	// Shutdown cancels the consumer context to stop the read loop; an event
	// already in flight still has to reach the store and cache. Detach from
	// that cancellation and let the per-call timeouts bound the work.
	ctx = context.WithoutCancel(ctx)

	storeCtx, cancel := context.WithTimeout(ctx, s.cnf.StoreTimeout)
	defer cancel()

	order, err := s.orderRepo.UpdateStatus(storeCtx, traceID, event.OrderID, pkg.OrderStatusFilled)
	switch {
	case err == nil:
		s.logger.Info("order filled",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.OrderId, order.ID),
			zap.Int64(pkg.UserId, order.UserID))
	case pkg.HasCode(err, pkg.ErrRecordNotFoundCode):
		// The order may have been removed out-of-band; redelivery cannot fix
		// this, so acknowledge and move on.
		s.logger.Warn("settlement event for unknown order",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.OrderId, event.OrderID))
		return nil
	case pkg.HasCode(err, pkg.ErrInvalidTransitionCode):
		// Already terminal (e.g. cancelled before settlement). Refiring the
		// event would fail forever; acknowledge.
		s.logger.Warn("order already terminal; acknowledging redelivery",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.OrderId, event.OrderID),
			zap.Error(err))
		return nil
	default:
		// Transient store failure: leave unacknowledged so the broker
		// redelivers the event rather than losing the settlement.
		return err
	}

	// Filling removes the order from the owner's open set; drop the cached
	// snapshot so the next read recomputes. TTL expiry covers failures.
	if err := s.orderCache.Invalidate(ctx, order.UserID); err != nil {
		s.logger.Warn("cache invalidation after fill failed",
			zap.String(pkg.TraceId, traceID),
			zap.Int64(pkg.UserId, order.UserID),
			zap.Error(err))
	}
	return nil
}
