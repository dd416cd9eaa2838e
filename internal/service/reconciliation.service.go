package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"founding-members/internal/domain"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
)

const (
	StatusPaid = "paid"
	// StatusUnknown means the gateway could not be asked; check again later.
	StatusUnknown = "unknown"
)

type StatusResult struct {
	Status    string
	IsMember  bool
	Member    *domain.FoundingMember
	Recovered bool
}

type ReconciliationService interface {
	CheckStatus(ctx context.Context, buyer Buyer, gatewayOrderID string) (*StatusResult, error)
}

type reconciliationService struct {
	membershipRepo repo.MembershipRepo
	membership     MembershipService
	paymentGtw     payment.Gateway
	metrics        *metrics.Metrics
	log            *slog.Logger
}

func NewReconciliationService(
	membershipRepo repo.MembershipRepo,
	membership MembershipService,
	paymentGtw payment.Gateway,
	m *metrics.Metrics,
	log *slog.Logger,
) ReconciliationService {
	return &reconciliationService{
		membershipRepo: membershipRepo,
		membership:     membership,
		paymentGtw:     paymentGtw,
		metrics:        m,
		log:            log.With("component", "reconciliation"),
	}
}

// CheckStatus asks the gateway whether an order was paid and, if so, makes
// sure the membership exists. Gateway outages are reported as StatusUnknown.
func (s *reconciliationService) CheckStatus(ctx context.Context, buyer Buyer, gatewayOrderID string) (*StatusResult, error) {
	res, err := s.checkStatus(ctx, buyer, gatewayOrderID)
	if err == nil {
		s.metrics.ReconciliationChecks.WithLabelValues(res.Status).Inc()
	}
	return res, err
}

func (s *reconciliationService) checkStatus(ctx context.Context, buyer Buyer, gatewayOrderID string) (*StatusResult, error) {
	userID := buyer.UserID
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	if gatewayOrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}

	// 1. Already a member: nothing to ask the gateway.
	existing, err := s.membershipRepo.FindByUserId(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &StatusResult{Status: StatusPaid, IsMember: true, Member: existing}, nil
	}

	// 2. Ground truth from the gateway.
	order, err := s.paymentGtw.FetchOrder(ctx, gatewayOrderID)
	if errors.Is(err, payment.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return s.unknown(ctx, "fetch_order", gatewayOrderID, err), nil
	}
	if order.Notes[payment.NoteUserID] != userID {
		s.log.WarnContext(ctx, "status check for another user's order", "user_id", userID, "order_id", gatewayOrderID)
		return nil, ErrOrderOwnership
	}

	// 3. Not paid yet is a normal answer, not an error.
	if order.Status != domain.OrderPaid {
		return &StatusResult{Status: string(order.Status)}, nil
	}

	// 4. Paid: rebuild the entitlement from the gateway's own records.
	payments, err := s.paymentGtw.ListOrderPayments(ctx, gatewayOrderID)
	if err != nil {
		return s.unknown(ctx, "list_payments", gatewayOrderID, err), nil
	}
	captured, ok := domain.CapturedPayment(payments)
	if !ok {
		s.log.WarnContext(ctx, "order paid but no captured payment listed yet", "order_id", gatewayOrderID)
		return &StatusResult{Status: StatusUnknown}, nil
	}
	if captured.Amount < order.Amount || captured.Currency != order.Currency {
		s.log.ErrorContext(ctx, "captured payment does not cover the order",
			"order_id", gatewayOrderID, "payment_id", captured.ID,
			"order_amount", order.Amount, "captured_amount", captured.Amount,
			"order_currency", order.Currency, "captured_currency", captured.Currency)
		return nil, ErrAmountMismatch
	}
	if captured.OrderID == "" {
		captured.OrderID = gatewayOrderID
	}

	result, err := s.membership.Confirm(ctx, Confirmation{
		UserID:  userID,
		Tier:    domain.Tier(order.Notes[payment.NoteTier]),
		Payment: captured,
		Channel: repo.ChannelReconciliation,
		Email:   buyer.Email,
		Name:    buyer.Name,
	})
	if err != nil {
		return nil, err
	}
	if result.Created {
		s.log.InfoContext(ctx, "membership recovered from gateway",
			"user_id", userID, "order_id", gatewayOrderID, "member_number", result.Member.MemberNumber)
	}
	return &StatusResult{
		Status:    StatusPaid,
		IsMember:  true,
		Member:    result.Member,
		Recovered: result.Created,
	}, nil
}

func (s *reconciliationService) unknown(ctx context.Context, op, orderID string, err error) *StatusResult {
	s.metrics.GatewayErrors.WithLabelValues(op).Inc()
	s.log.WarnContext(ctx, "gateway check failed, reporting unknown", "operation", op, "order_id", orderID, "error", err)
	return &StatusResult{Status: StatusUnknown}
}
