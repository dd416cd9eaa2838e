package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"founding-members/internal/domain"
	"founding-members/internal/infrastructure/feed"
	"founding-members/internal/infrastructure/notify"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
)

// sideEffectTimeout bounds each best-effort call made after a membership is
// created.
const sideEffectTimeout = 5 * time.Second

// maxNumberAttempts bounds retries when an allocated member number is
// already taken by a row the counter does not know about.
const maxNumberAttempts = 3

type ActivityFeed interface {
	Append(ctx context.Context, a feed.Activity) error
}

type Notifier interface {
	SendWelcome(ctx context.Context, w notify.Welcome) error
}

// Confirmation is a "payment confirmed" event. Both the browser callback and
// reconciliation publish one; entitlement values in it must come from the
// server or the gateway, never from the client.
type Confirmation struct {
	UserID  string
	Tier    domain.Tier
	Payment domain.Payment
	Channel repo.Channel
	// Email and Name come from the buyer's identity claims; the profile
	// fills in whatever is missing.
	Email string
	Name  string
}

// IssueResult is the outcome of a confirmation. Created is true only for the
// call that inserted the membership.
type IssueResult struct {
	Member  *domain.FoundingMember
	Created bool
}

type VerifyPaymentRequest struct {
	UserID          string
	OrderID         string
	PaymentID       string
	Signature       string
	ClaimedTier     domain.Tier
	ClaimedAmount   int64
	ClaimedCurrency string
	Email           string
	Name            string
}

type MembershipService interface {
	IssueMembership(ctx context.Context, userID string, tier domain.Tier, paidAmount int64, currency string) (*domain.FoundingMember, error)
	Confirm(ctx context.Context, c Confirmation) (*IssueResult, error)
	VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*IssueResult, error)
}

type membershipService struct {
	// db is nil when the stores are in memory.
	db             *sql.DB
	membershipRepo repo.MembershipRepo
	orderRepo      repo.OrderRepo
	paymentRepo    repo.PaymentRepo
	profileRepo    repo.ProfileRepo
	paymentGtw     payment.Gateway
	verifier       *payment.SignatureVerifier
	feed           ActivityFeed
	notifier       Notifier
	metrics        *metrics.Metrics
	log            *slog.Logger

	// confirmations coalesces concurrent confirmations per user, so one
	// issuance runs at a time for a user within this process.
	confirmations singleflight.Group
	now           func() time.Time
}

func NewMembershipService(
	db *sql.DB,
	membershipRepo repo.MembershipRepo,
	orderRepo repo.OrderRepo,
	paymentRepo repo.PaymentRepo,
	profileRepo repo.ProfileRepo,
	paymentGtw payment.Gateway,
	verifier *payment.SignatureVerifier,
	activity ActivityFeed,
	notifier Notifier,
	m *metrics.Metrics,
	log *slog.Logger,
) MembershipService {
	return &membershipService{
		db:             db,
		membershipRepo: membershipRepo,
		orderRepo:      orderRepo,
		paymentRepo:    paymentRepo,
		profileRepo:    profileRepo,
		paymentGtw:     paymentGtw,
		verifier:       verifier,
		feed:           activity,
		notifier:       notifier,
		metrics:        m,
		log:            log.With("component", "membership"),
		now:            time.Now,
	}
}

// IssueMembership returns the user's founding membership, creating it if
// needed. Repeated or concurrent calls for the same user all return the one
// stored record.
func (s *membershipService) IssueMembership(ctx context.Context, userID string, tier domain.Tier, paidAmount int64, currency string) (*domain.FoundingMember, error) {
	m, _, err := s.issue(ctx, Buyer{UserID: userID}, tier, paidAmount, currency)
	return m, err
}

func (s *membershipService) issue(ctx context.Context, buyer Buyer, tier domain.Tier, paidAmount int64, currency string) (*domain.FoundingMember, bool, error) {
	userID := buyer.UserID
	if userID == "" || paidAmount <= 0 || currency == "" {
		return nil, false, ErrInvalidRequest
	}
	if !tier.IsOneTime() {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	existing, err := s.membershipRepo.FindByUserId(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	now := s.now().UTC()
	m := &domain.FoundingMember{
		UserID:        userID,
		Tier:          tier,
		PricePaid:     paidAmount,
		Currency:      currency,
		Badge:         domain.BadgeFor(tier),
		PurchasedAt:   now,
		DisplayOnWall: true,
	}

	for attempt := 1; ; attempt++ {
		err = s.membershipRepo.Create(ctx, m, now.Year())
		if !errors.Is(err, repo.ErrMemberNumberTaken) || attempt == maxNumberAttempts {
			break
		}
		s.log.WarnContext(ctx, "member number collision, retrying", "user_id", userID, "attempt", attempt)
	}

	if errors.Is(err, repo.ErrAlreadyMember) {
		// Lost the race to a concurrent confirmation; converge on its row.
		s.metrics.IssueConflicts.Inc()
		winner, findErr := s.membershipRepo.FindByUserId(ctx, userID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, fmt.Errorf("membership for %s rejected as duplicate but not found", userID)
		}
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create membership: %w", err)
	}

	s.log.InfoContext(ctx, "founding membership issued",
		"user_id", userID, "member_number", m.MemberNumber, "tier", tier, "badge", m.Badge)
	s.afterIssue(ctx, m, buyer)
	return m, true, nil
}

// afterIssue runs the best-effort side effects of a new membership. Failures
// are logged and never undo the membership.
func (s *membershipService) afterIssue(ctx context.Context, m *domain.FoundingMember, buyer Buyer) {
	ctx = context.WithoutCancel(ctx)

	profileCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	if err := s.profileRepo.MarkFoundingMember(profileCtx, m.UserID, m.MemberNumber, m.PurchasedAt); err != nil {
		s.sideEffectFailed(ctx, "profile", m, err)
	}

	email, name := contactFor(profileCtx, s.profileRepo, buyer)

	feedCtx, cancelFeed := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancelFeed()
	if err := s.feed.Append(feedCtx, feed.Activity{
		Type:         feed.ActivityFoundingMember,
		UserID:       m.UserID,
		DisplayName:  name,
		MemberNumber: m.MemberNumber,
		Badge:        string(m.Badge),
		At:           m.PurchasedAt,
	}); err != nil {
		s.sideEffectFailed(ctx, "activity_feed", m, err)
	}

	mailCtx, cancelMail := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancelMail()
	if err := s.notifier.SendWelcome(mailCtx, notify.Welcome{
		UserID:       m.UserID,
		Email:        email,
		Name:         name,
		MemberNumber: m.MemberNumber,
		Badge:        string(m.Badge),
	}); err != nil {
		s.sideEffectFailed(ctx, "email", m, err)
	}
}

func (s *membershipService) sideEffectFailed(ctx context.Context, collaborator string, m *domain.FoundingMember, err error) {
	s.metrics.CollaboratorFailures.WithLabelValues(collaborator).Inc()
	s.log.ErrorContext(ctx, "post-issue side effect failed",
		"collaborator", collaborator, "user_id", m.UserID, "member_number", m.MemberNumber, "error", err)
}

// Confirm consumes a payment confirmation from either channel.
func (s *membershipService) Confirm(ctx context.Context, c Confirmation) (*IssueResult, error) {
	// The shared call must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)

	v, err, _ := s.confirmations.Do(c.UserID, func() (any, error) {
		buyer := Buyer{UserID: c.UserID, Email: c.Email, Name: c.Name}
		m, created, err := s.issue(shared, buyer, c.Tier, c.Payment.Amount, c.Payment.Currency)
		if err != nil {
			return nil, err
		}
		if created {
			s.metrics.MembershipsIssued.WithLabelValues(string(c.Channel)).Inc()
		}
		return &IssueResult{Member: m, Created: created}, nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.recordConfirmation(shared, c); err != nil {
		s.log.WarnContext(ctx, "payment audit not recorded",
			"payment_id", c.Payment.ID, "order_id", c.Payment.OrderID, "error", err)
	}

	return v.(*IssueResult), nil
}

// recordConfirmation stores the payment and marks its pending order paid in
// one transaction.
func (s *membershipService) recordConfirmation(ctx context.Context, c Confirmation) error {
	var tx *sql.Tx
	if s.db != nil {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()
	}

	if err := s.paymentRepo.RecordPayment(ctx, tx, c.UserID, &c.Payment, c.Channel); err != nil {
		return err
	}
	if err := s.orderRepo.UpdateOrderStatus(ctx, tx, c.Payment.OrderID, domain.OrderPaid); err != nil {
		return err
	}

	if tx == nil {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// VerifyPayment handles the synchronous checkout callback.
func (s *membershipService) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*IssueResult, error) {
	if req.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if !s.verifier.Verify(req.OrderID, req.PaymentID, req.Signature) {
		s.metrics.SignatureRejects.Inc()
		s.log.WarnContext(ctx, "payment signature mismatch, possible forgery",
			"user_id", req.UserID, "order_id", req.OrderID, "payment_id", req.PaymentID)
		return nil, ErrInvalidSignature
	}

	tier, amount, currency, err := s.entitlement(ctx, req.UserID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if req.ClaimedTier != "" && (req.ClaimedTier != tier || req.ClaimedAmount != amount || req.ClaimedCurrency != currency) {
		s.log.WarnContext(ctx, "client claim differs from order, using order values",
			"order_id", req.OrderID,
			"claimed_tier", req.ClaimedTier, "claimed_amount", req.ClaimedAmount, "claimed_currency", req.ClaimedCurrency,
			"tier", tier, "amount", amount, "currency", currency)
	}

	return s.Confirm(ctx, Confirmation{
		UserID: req.UserID,
		Tier:   tier,
		Payment: domain.Payment{
			ID:        req.PaymentID,
			OrderID:   req.OrderID,
			Amount:    amount,
			Currency:  currency,
			Status:    domain.PaymentCaptured,
			CreatedAt: s.now().UTC(),
		},
		Channel: repo.ChannelCallback,
		Email:   req.Email,
		Name:    req.Name,
	})
}

// entitlement resolves what an order buys from the server-created pending
// order, falling back to the gateway's copy when the local row is missing.
func (s *membershipService) entitlement(ctx context.Context, userID, orderID string) (domain.Tier, int64, string, error) {
	pending, err := s.orderRepo.FindById(ctx, orderID)
	if err != nil {
		s.log.WarnContext(ctx, "pending order lookup failed, asking gateway", "order_id", orderID, "error", err)
	}
	if pending != nil {
		if pending.UserID != userID {
			return "", 0, "", ErrOrderOwnership
		}
		return pending.Tier, pending.Amount, pending.Currency, nil
	}

	order, err := s.paymentGtw.FetchOrder(ctx, orderID)
	if errors.Is(err, payment.ErrNotFound) {
		return "", 0, "", ErrOrderNotFound
	}
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues("fetch_order").Inc()
		return "", 0, "", fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	if order.Notes[payment.NoteUserID] != userID {
		return "", 0, "", ErrOrderOwnership
	}
	return domain.Tier(order.Notes[payment.NoteTier]), order.Amount, order.Currency, nil
}
