package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"founding-members/internal/domain"
)

type SubscriptionRepo interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	// FindById returns nil, nil when the subscription is unknown.
	FindById(ctx context.Context, gatewaySubscriptionID string) (*domain.Subscription, error)
}

type subscriptionRepo struct {
	db *sql.DB
}

func NewSubscriptionRepo(db *sql.DB) SubscriptionRepo {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) CreateSubscription(ctx context.Context, s *domain.Subscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (gateway_subscription_id, user_id, plan_id, status, tier, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (gateway_subscription_id) DO NOTHING`,
		s.GatewaySubscriptionID, s.UserID, s.PlanID, s.Status, s.Tier, s.Amount, s.Currency, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription %s: %w", s.GatewaySubscriptionID, err)
	}
	return nil
}

func (r *subscriptionRepo) FindById(ctx context.Context, id string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := r.db.QueryRowContext(ctx, `
		SELECT gateway_subscription_id, user_id, plan_id, status, tier, amount, currency, created_at
		FROM subscriptions WHERE gateway_subscription_id = $1`, id,
	).Scan(&s.GatewaySubscriptionID, &s.UserID, &s.PlanID, &s.Status, &s.Tier, &s.Amount, &s.Currency, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription %s: %w", id, err)
	}
	return &s, nil
}
