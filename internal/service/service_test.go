package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"founding-members/internal/domain"
	"founding-members/internal/infrastructure/feed"
	"founding-members/internal/infrastructure/notify"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
)

const testSecret = "test_key_secret"

type recordingFeed struct {
	mu      sync.Mutex
	entries []feed.Activity
	err     error
}

func (f *recordingFeed) Append(_ context.Context, a feed.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, a)
	return nil
}

func (f *recordingFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type recordingNotifier struct {
	sent atomic.Int32
	err  error

	mu       sync.Mutex
	welcomes []notify.Welcome
}

func (n *recordingNotifier) SendWelcome(_ context.Context, w notify.Welcome) error {
	if n.err != nil {
		return n.err
	}
	n.sent.Add(1)
	n.mu.Lock()
	n.welcomes = append(n.welcomes, w)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) last() notify.Welcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.welcomes) == 0 {
		return notify.Welcome{}
	}
	return n.welcomes[len(n.welcomes)-1]
}

func (f *recordingFeed) last() feed.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.entries) == 0 {
		return feed.Activity{}
	}
	return f.entries[len(f.entries)-1]
}

// countingGateway counts calls that reach the gateway.
type countingGateway struct {
	*payment.MockGateway
	calls atomic.Int32
}

func (g *countingGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	g.calls.Add(1)
	return g.MockGateway.CreateOrder(ctx, req)
}

func (g *countingGateway) CreateSubscription(ctx context.Context, req payment.SubscriptionRequest) (*payment.Subscription, error) {
	g.calls.Add(1)
	return g.MockGateway.CreateSubscription(ctx, req)
}

func (g *countingGateway) FetchOrder(ctx context.Context, id string) (*payment.Order, error) {
	g.calls.Add(1)
	return g.MockGateway.FetchOrder(ctx, id)
}

type failingOrderRepo struct {
	repo.OrderRepo
}

func (failingOrderRepo) CreateOrder(context.Context, *sql.Tx, *domain.PendingOrder) error {
	return errors.New("db unavailable")
}

type failingProfileRepo struct {
	repo.ProfileRepo
}

func (failingProfileRepo) MarkFoundingMember(context.Context, string, string, time.Time) error {
	return errors.New("profile store down")
}

// contactProfileRepo serves a profile carrying contact details, as an
// account system would have filled it in.
type contactProfileRepo struct {
	repo.ProfileRepo
	email, name string
}

func (r contactProfileRepo) FindByUserId(_ context.Context, userID string) (*domain.UserProfile, error) {
	return &domain.UserProfile{UserID: userID, Email: r.email, DisplayName: r.name}, nil
}

type testEnv struct {
	db            *sql.DB
	gateway       *countingGateway
	verifier      *payment.SignatureVerifier
	members       repo.MembershipRepo
	orders        repo.OrderRepo
	payments      repo.PaymentRepo
	profiles      repo.ProfileRepo
	subscriptions repo.SubscriptionRepo
	feed          *recordingFeed
	notifier      *recordingNotifier
	metrics       *metrics.Metrics
	plans         map[string]string

	orderSvc      OrderService
	membershipSvc *membershipService
	reconcileSvc  ReconciliationService
}

type envOption func(*testEnv)

func withProfiles(p repo.ProfileRepo) envOption { return func(e *testEnv) { e.profiles = p } }
func withOrders(o repo.OrderRepo) envOption     { return func(e *testEnv) { e.orders = o } }

// withPostgres puts every store on db.
func withPostgres(db *sql.DB) envOption {
	return func(e *testEnv) {
		e.db = db
		e.members = repo.NewMembershipRepo(db)
		e.orders = repo.NewOrderRepo(db)
		e.payments = repo.NewPaymentRepo(db)
		e.profiles = repo.NewProfileRepo(db)
		e.subscriptions = repo.NewSubscriptionRepo(db)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &testEnv{
		gateway:       &countingGateway{MockGateway: payment.NewMockGateway(testSecret)},
		verifier:      payment.NewSignatureVerifier(testSecret),
		members:       repo.NewMemoryMembershipRepo(),
		orders:        repo.NewMemoryOrderRepo(),
		payments:      repo.NewMemoryPaymentRepo(),
		profiles:      repo.NewMemoryProfileRepo(),
		subscriptions: repo.NewMemorySubscriptionRepo(),
		feed:          &recordingFeed{},
		notifier:      &recordingNotifier{},
		metrics:       metrics.New(),
		plans: map[string]string{
			domain.CurrencyUSD: "plan_usd_live",
			domain.CurrencyINR: "plan_PLACEHOLDER_inr",
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.orderSvc = NewOrderService(e.orders, e.subscriptions, e.members, e.profiles, e.gateway, e.plans, e.metrics, log)
	e.membershipSvc = NewMembershipService(e.db, e.members, e.orders, e.payments, e.profiles, e.gateway, e.verifier,
		e.feed, e.notifier, e.metrics, log).(*membershipService)
	e.reconcileSvc = NewReconciliationService(e.members, e.membershipSvc, e.gateway, e.metrics, log)
	return e
}

// newIssuer builds another issuer over the same stores, standing in for a
// second server process.
func (e *testEnv) newIssuer(members repo.MembershipRepo) *membershipService {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewMembershipService(e.db, members, e.orders, e.payments, e.profiles, e.gateway, e.verifier,
		e.feed, e.notifier, e.metrics, log).(*membershipService)
	s.now = e.membershipSvc.now
	return s
}

// fixClock pins the issuer's clock.
func (e *testEnv) fixClock(tm time.Time) {
	e.membershipSvc.now = func() time.Time { return tm }
}

// checkout creates an order for user through the initiator.
func (e *testEnv) checkout(t *testing.T, user string, tier domain.Tier) *CheckoutOrder {
	t.Helper()
	o, err := e.orderSvc.CreateOrder(context.Background(), Buyer{UserID: user, Email: user + "@example.com", Name: user}, tier, "US")
	require.NoError(t, err)
	return o
}
