package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"founding-members/internal/domain"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
)

// subscriptionCycles is how many monthly charges a subscription authorizes.
const subscriptionCycles = 120

// Buyer is the authenticated caller. It always comes from the auth context.
type Buyer struct {
	UserID string
	Email  string
	Name   string
}

type CheckoutOrder struct {
	GatewayOrderID string
	Amount         int64
	Currency       string
	UserEmail      string
	UserName       string
}

type CheckoutSubscription struct {
	GatewaySubscriptionID string
	Status                domain.SubscriptionStatus
	DisplayAmount         string
	ShortURL              string
}

type OrderService interface {
	CreateOrder(ctx context.Context, buyer Buyer, tier domain.Tier, country string) (*CheckoutOrder, error)
	CreateSubscription(ctx context.Context, buyer Buyer, tier domain.Tier, country string) (*CheckoutSubscription, error)
}

type orderService struct {
	orderRepo        repo.OrderRepo
	subscriptionRepo repo.SubscriptionRepo
	membershipRepo   repo.MembershipRepo
	profileRepo      repo.ProfileRepo
	paymentGtw       payment.Gateway
	monthlyPlans     map[string]string
	metrics          *metrics.Metrics
	log              *slog.Logger
}

func NewOrderService(
	orderRepo repo.OrderRepo,
	subscriptionRepo repo.SubscriptionRepo,
	membershipRepo repo.MembershipRepo,
	profileRepo repo.ProfileRepo,
	paymentGtw payment.Gateway,
	monthlyPlans map[string]string,
	m *metrics.Metrics,
	log *slog.Logger,
) OrderService {
	return &orderService{
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		membershipRepo:   membershipRepo,
		profileRepo:      profileRepo,
		paymentGtw:       paymentGtw,
		monthlyPlans:     monthlyPlans,
		metrics:          m,
		log:              log.With("component", "orders"),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, buyer Buyer, tier domain.Tier, country string) (*CheckoutOrder, error) {
	if buyer.UserID == "" {
		return nil, ErrUnauthenticated
	}
	price, ok := domain.ResolveOneTime(tier, country)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	existing, err := s.membershipRepo.FindByUserId(ctx, buyer.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMember, existing.MemberNumber)
	}

	order, err := s.paymentGtw.CreateOrder(ctx, payment.OrderRequest{
		Amount:   price.Amount,
		Currency: price.Currency,
		Receipt:  newReceipt(),
		Notes: map[string]string{
			payment.NoteUserID: buyer.UserID,
			payment.NoteTier:   string(tier),
		},
	})
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("create_order").Inc()
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	pending := &domain.PendingOrder{
		GatewayOrderID: order.ID,
		UserID:         buyer.UserID,
		Tier:           tier,
		Amount:         price.Amount,
		Currency:       price.Currency,
		Status:         domain.OrderCreated,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.orderRepo.CreateOrder(ctx, nil, pending); err != nil {
		s.metrics.CollaboratorFailures.WithLabelValues("pending_order").Inc()
		s.log.WarnContext(ctx, "pending order not persisted", "order_id", order.ID, "error", err)
	}

	s.log.InfoContext(ctx, "order created",
		"order_id", order.ID, "user_id", buyer.UserID, "tier", tier,
		"amount", price.Amount, "currency", price.Currency)

	email, name := contactFor(ctx, s.profileRepo, buyer)
	return &CheckoutOrder{
		GatewayOrderID: order.ID,
		Amount:         price.Amount,
		Currency:       price.Currency,
		UserEmail:      email,
		UserName:       name,
	}, nil
}

func (s *orderService) CreateSubscription(ctx context.Context, buyer Buyer, tier domain.Tier, country string) (*CheckoutSubscription, error) {
	if buyer.UserID == "" {
		return nil, ErrUnauthenticated
	}
	price, ok := domain.ResolveMonthly(tier, country)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	planID := s.monthlyPlans[price.Currency]
	if !planProvisioned(planID) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotAvailable, price.Currency)
	}

	sub, err := s.paymentGtw.CreateSubscription(ctx, payment.SubscriptionRequest{
		PlanID:     planID,
		TotalCount: subscriptionCycles,
		Notes: map[string]string{
			payment.NoteUserID: buyer.UserID,
			payment.NoteTier:   string(tier),
		},
	})
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("create_subscription").Inc()
		return nil, fmt.Errorf("create gateway subscription: %w", err)
	}

	record := &domain.Subscription{
		GatewaySubscriptionID: sub.ID,
		UserID:                buyer.UserID,
		PlanID:                planID,
		Status:                sub.Status,
		Tier:                  tier,
		Amount:                price.Amount,
		Currency:              price.Currency,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.subscriptionRepo.CreateSubscription(ctx, record); err != nil {
		s.metrics.CollaboratorFailures.WithLabelValues("subscription").Inc()
		s.log.WarnContext(ctx, "subscription not persisted", "subscription_id", sub.ID, "error", err)
	}

	s.log.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID, "user_id", buyer.UserID, "plan_id", planID)

	return &CheckoutSubscription{
		GatewaySubscriptionID: sub.ID,
		Status:                sub.Status,
		DisplayAmount:         price.Display(),
		ShortURL:              sub.ShortURL,
	}, nil
}

// contactFor prefers the identity claims and falls back to the profile.
func contactFor(ctx context.Context, profiles repo.ProfileRepo, buyer Buyer) (email, name string) {
	email, name = buyer.Email, buyer.Name
	if email != "" && name != "" {
		return email, name
	}
	p, err := profiles.FindByUserId(ctx, buyer.UserID)
	if err != nil || p == nil {
		return email, name
	}
	if email == "" {
		email = p.Email
	}
	if name == "" {
		name = p.DisplayName
	}
	return email, name
}

func planProvisioned(planID string) bool {
	return planID != "" && !strings.Contains(strings.ToUpper(planID), "PLACEHOLDER")
}

// newReceipt returns a gateway receipt id (at most 40 characters).
func newReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
