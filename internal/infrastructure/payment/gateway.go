package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"founding-members/internal/domain"
)

// Notes written on every gateway order so the gateway alone can tell who
// bought what.
const (
	NoteUserID = "user_id"
	NoteTier   = "tier"
)

var (
	// ErrGatewayUnavailable covers network failures, timeouts, 5xx and 429.
	// Callers treat it as "unknown, try later".
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrNotFound           = errors.New("not found at payment gateway")
)

// APIError is a non-retryable rejection from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d %s: %s", e.StatusCode, e.Code, e.Description)
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	ListOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, error)
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Order struct {
	ID         string
	Amount     int64
	AmountPaid int64
	Currency   string
	Receipt    string
	Status     domain.OrderStatus
	Notes      map[string]string
	CreatedAt  time.Time
}

type SubscriptionRequest struct {
	PlanID     string
	TotalCount int
	Notes      map[string]string
}

type Subscription struct {
	ID       string
	PlanID   string
	Status   domain.SubscriptionStatus
	ShortURL string
}
