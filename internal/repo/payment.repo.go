package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"founding-members/internal/domain"
)

// Channel names the path that observed a payment.
type Channel string

const (
	ChannelCallback       Channel = "callback"
	ChannelReconciliation Channel = "reconciliation"
)

// PaymentRepo keeps an audit trail of gateway payments this service has seen
// confirmed. The first channel to record a payment wins.
type PaymentRepo interface {
	RecordPayment(ctx context.Context, tx *sql.Tx, userID string, payment *domain.Payment, channel Channel) error
	// FindById returns nil, nil when the payment was never recorded.
	FindById(ctx context.Context, paymentID string) (*domain.Payment, Channel, error)
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) RecordPayment(ctx context.Context, tx *sql.Tx, userID string, p *domain.Payment, channel Channel) error {
	_, err := conn(r.db, tx).ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, currency, status, method, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.OrderID, userID, p.Amount, p.Currency, p.Status, p.Method, channel, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record payment %s: %w", p.ID, err)
	}
	return nil
}

func (r *paymentRepo) FindById(ctx context.Context, paymentID string) (*domain.Payment, Channel, error) {
	var (
		p       domain.Payment
		channel Channel
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, currency, status, method, channel, created_at
		FROM payments WHERE id = $1`, paymentID,
	).Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &p.Status, &p.Method, &channel, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find payment %s: %w", paymentID, err)
	}
	return &p, channel, nil
}
