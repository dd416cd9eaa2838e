package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"founding-members/internal/domain"
)

type OrderRepo interface {
	CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.PendingOrder) error
	// FindById returns nil, nil when the order is unknown.
	FindById(ctx context.Context, gatewayOrderID string) (*domain.PendingOrder, error)
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, gatewayOrderID string, status domain.OrderStatus) error
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *domain.PendingOrder) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO pending_orders (gateway_order_id, user_id, tier, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (gateway_order_id) DO NOTHING`,
		order.GatewayOrderID, order.UserID, order.Tier, order.Amount, order.Currency, order.Status, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending order %s: %w", order.GatewayOrderID, err)
	}
	return nil
}

func (r *orderRepo) FindById(ctx context.Context, gatewayOrderID string) (*domain.PendingOrder, error) {
	var o domain.PendingOrder
	err := r.db.QueryRowContext(ctx, `
		SELECT gateway_order_id, user_id, tier, amount, currency, status, created_at
		FROM pending_orders WHERE gateway_order_id = $1`, gatewayOrderID,
	).Scan(&o.GatewayOrderID, &o.UserID, &o.Tier, &o.Amount, &o.Currency, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending order %s: %w", gatewayOrderID, err)
	}
	return &o, nil
}

func (r *orderRepo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, gatewayOrderID string, status domain.OrderStatus) error {
	_, err := conn(r.db, tx).ExecContext(ctx,
		"UPDATE pending_orders SET status = $1 WHERE gateway_order_id = $2", status, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("update pending order %s: %w", gatewayOrderID, err)
	}
	return nil
}
