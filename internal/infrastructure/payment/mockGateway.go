package payment

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"founding-members/internal/domain"
)

// Outcome is what happened when a buyer went through the mock checkout.
type Outcome int

const (
	// OutcomeCallback: paid and the browser received the success callback.
	OutcomeCallback Outcome = iota
	// OutcomeOutOfBand: paid later on another device (QR/UPI); the widget
	// was closed without a callback.
	OutcomeOutOfBand
	// OutcomeDeclined: the payment was refused; nothing was captured.
	OutcomeDeclined
	// OutcomeLostCallback: money was captured but the callback never
	// reached the browser.
	OutcomeLostCallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCallback:
		return "callback"
	case OutcomeOutOfBand:
		return "out-of-band"
	case OutcomeDeclined:
		return "declined"
	case OutcomeLostCallback:
		return "lost-callback"
	default:
		return "unknown"
	}
}

// CheckoutResult is what the mock widget hands back to the browser.
type CheckoutResult struct {
	Outcome   Outcome
	OrderID   string
	PaymentID string
	Signature string
}

// MockGateway is an in-memory gateway with the same order/payment model as
// the real one. It signs callbacks with the configured key secret.
type MockGateway struct {
	mu            sync.RWMutex
	signer        *SignatureVerifier
	orders        map[string]*Order
	payments      map[string][]domain.Payment
	subscriptions map[string]*Subscription
	unavailable   bool
	// OutOfBandDelay is how long an out-of-band payment takes to settle.
	OutOfBandDelay time.Duration
}

func NewMockGateway(keySecret string) *MockGateway {
	return &MockGateway{
		signer:         NewSignatureVerifier(keySecret),
		orders:         make(map[string]*Order),
		payments:       make(map[string][]domain.Payment),
		subscriptions:  make(map[string]*Subscription),
		OutOfBandDelay: 2 * time.Second,
	}
}

func newGatewayID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

// SetUnavailable makes every call fail as a transient outage.
func (g *MockGateway) SetUnavailable(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unavailable = down
}

func (g *MockGateway) checkUp() error {
	if g.unavailable {
		return ErrGatewayUnavailable
	}
	return nil
}

func (g *MockGateway) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkUp(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, &APIError{StatusCode: 400, Code: "BAD_REQUEST_ERROR", Description: "amount must be positive"}
	}

	notes := make(map[string]string, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	o := &Order{
		ID:        newGatewayID("order"),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    domain.OrderCreated,
		Notes:     notes,
		CreatedAt: time.Now().UTC(),
	}
	g.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (g *MockGateway) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkUp(); err != nil {
		return nil, err
	}
	s := &Subscription{
		ID:       newGatewayID("sub"),
		PlanID:   req.PlanID,
		Status:   domain.SubscriptionCreated,
		ShortURL: "https://rzp.io/i/mock",
	}
	g.subscriptions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (g *MockGateway) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := g.checkUp(); err != nil {
		return nil, err
	}
	o, ok := g.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (g *MockGateway) ListOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err := g.checkUp(); err != nil {
		return nil, err
	}
	if _, ok := g.orders[orderID]; !ok {
		return nil, ErrNotFound
	}
	return append([]domain.Payment(nil), g.payments[orderID]...), nil
}

// Capture records a captured payment for the order, as if the buyer had paid,
// and returns the payment id with the signature the callback would carry.
// Capturing an already paid order returns the existing payment.
func (g *MockGateway) Capture(orderID, method string) (paymentID, signature string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return "", "", ErrNotFound
	}
	if p, paid := domain.CapturedPayment(g.payments[orderID]); paid {
		return p.ID, g.signer.Sign(orderID, p.ID), nil
	}

	p := domain.Payment{
		ID:        newGatewayID("pay"),
		OrderID:   orderID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    domain.PaymentCaptured,
		Method:    method,
		CreatedAt: time.Now().UTC(),
	}
	g.payments[orderID] = append(g.payments[orderID], p)
	o.Status = domain.OrderPaid
	o.AmountPaid = o.Amount
	return p.ID, g.signer.Sign(orderID, p.ID), nil
}

// Decline records a failed attempt; the order stays payable.
func (g *MockGateway) Decline(orderID, method string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	g.payments[orderID] = append(g.payments[orderID], domain.Payment{
		ID:        newGatewayID("pay"),
		OrderID:   orderID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    domain.PaymentFailed,
		Method:    method,
		CreatedAt: time.Now().UTC(),
	})
	if o.Status == domain.OrderCreated {
		o.Status = domain.OrderAttempted
	}
	return nil
}

// Checkout plays a buyer through the hosted widget with a random outcome:
// 60% callback, 20% out-of-band, 10% declined, 10% lost callback.
func (g *MockGateway) Checkout(ctx context.Context, orderID string) (CheckoutResult, error) {
	res := CheckoutResult{OrderID: orderID}
	chance := rand.IntN(100)

	switch {
	case chance < 60:
		res.Outcome = OutcomeCallback
		pid, sig, err := g.Capture(orderID, "card")
		if err != nil {
			return res, err
		}
		res.PaymentID, res.Signature = pid, sig

	case chance < 80:
		res.Outcome = OutcomeOutOfBand
		delay := g.OutOfBandDelay
		go func() {
			select {
			case <-time.After(delay):
				_, _, _ = g.Capture(orderID, "upi")
			case <-ctx.Done():
			}
		}()

	case chance < 90:
		res.Outcome = OutcomeDeclined
		if err := g.Decline(orderID, "card"); err != nil {
			return res, err
		}
		return res, errors.New("card declined")

	default:
		res.Outcome = OutcomeLostCallback
		if _, _, err := g.Capture(orderID, "netbanking"); err != nil {
			return res, err
		}
	}
	return res, nil
}
