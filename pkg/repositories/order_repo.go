package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tradeflow/tradeflow-engine/pkg"
	"github.com/tradeflow/tradeflow-engine/pkg/database"
	"github.com/tradeflow/tradeflow-engine/pkg/models"
	"go.uber.org/zap"
)

const orderColumns = `id, user_id, item, amount, status, created_at, updated_at`

// OrderRepository is the durable source of truth for orders.
type OrderRepository interface {
	// Create inserts a new OPEN order and returns it with the assigned id.
	Create(ctx context.Context, traceID string, order models.Order) (models.Order, error)
	// GetByID returns a single order or a not-found AppError.
	GetByID(ctx context.Context, traceID string, id int64) (models.Order, error)
	// ListByUser returns a user's orders filtered by status, id ascending.
	ListByUser(ctx context.Context, traceID string, userID int64, status pkg.OrderStatus) ([]models.Order, error)
	// ListAll returns every order, id ascending. Administrative.
	ListAll(ctx context.Context, traceID string) ([]models.Order, error)
	// UpdateStatus atomically moves an order to a terminal status.
	// Re-requesting the status an order already holds is a no-op success;
	// any other transition out of a terminal state is an invalid-transition
	// AppError, and a missing id is a not-found AppError.
	UpdateStatus(ctx context.Context, traceID string, id int64, status pkg.OrderStatus) (models.Order, error)
}

type OrderRepositoryImpl struct {
	db     *database.DB
	logger *zap.Logger
}

func NewOrderRepository(db *database.DB, logger *zap.Logger) OrderRepository {
	return &OrderRepositoryImpl{db: db, logger: logger}
}

func (o *OrderRepositoryImpl) Create(ctx context.Context, traceID string, order models.Order) (models.Order, error) {
	err := o.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
						INSERT INTO orders (user_id, item, amount, status)
						VALUES ($1, $2, $3, $4)
						RETURNING id, created_at, updated_at`,
			order.UserID,
			order.Item,
			order.Amount,
			order.Status,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	})
	if err != nil {
		return models.Order{}, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return order, nil
}

func (o *OrderRepositoryImpl) GetByID(ctx context.Context, traceID string, id int64) (models.Order, error) {
	var order models.Order
	err := scanOrder(o.db.QueryRow(ctx, `
							SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), &order)
	if err != nil {
		return models.Order{}, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return order, nil
}

func (o *OrderRepositoryImpl) ListByUser(ctx context.Context, traceID string, userID int64, status pkg.OrderStatus) ([]models.Order, error) {
	rows, err := o.db.Query(ctx, `
							SELECT `+orderColumns+` FROM orders
							WHERE user_id = $1 AND status = $2
							ORDER BY id ASC`, userID, status)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return o.collectOrders(traceID, rows)
}

func (o *OrderRepositoryImpl) ListAll(ctx context.Context, traceID string) ([]models.Order, error) {
	rows, err := o.db.Query(ctx, `
							SELECT `+orderColumns+` FROM orders ORDER BY id ASC`)
	if err != nil {
		return nil, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return o.collectOrders(traceID, rows)
}

func (o *OrderRepositoryImpl) UpdateStatus(ctx context.Context, traceID string, id int64, status pkg.OrderStatus) (models.Order, error) {
	if !status.IsTerminal() {
		return models.Order{}, pkg.NewAppError(pkg.ErrInvalidTransitionCode,
			fmt.Sprintf("orders cannot move to status %s", status), nil)
	}

	var order models.Order
	err := o.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		// Guarded single-statement update: only OPEN rows may leave their state.
		err := scanOrder(tx.QueryRow(ctx, `
							UPDATE orders SET status = $2, updated_at = now()
							WHERE id = $1 AND status = $3
							RETURNING `+orderColumns, id, status, pkg.OrderStatusOpen), &order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// No OPEN row matched: distinguish missing, idempotent redelivery,
		// and an attempt to leave a terminal state.
		err = scanOrder(tx.QueryRow(ctx, `
							SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), &order)
		if err != nil {
			return err // pgx.ErrNoRows maps to not-found below
		}
		if order.Status == status {
			return nil // already settled to the requested state
		}
		return pkg.NewAppError(pkg.ErrInvalidTransitionCode,
			fmt.Sprintf("order %d is %s and cannot become %s", id, order.Status, status), nil)
	})
	if err != nil {
		var appErr pkg.AppError
		if errors.As(err, &appErr) {
			return models.Order{}, err
		}
		return models.Order{}, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return order, nil
}

func (o *OrderRepositoryImpl) collectOrders(traceID string, rows pgx.Rows) ([]models.Order, error) {
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, pkg.HandleSQLError(traceID, o.logger, err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, pkg.HandleSQLError(traceID, o.logger, err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row, order *models.Order) error {
	return row.Scan(
		&order.ID,
		&order.UserID,
		&order.Item,
		&order.Amount,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
}
