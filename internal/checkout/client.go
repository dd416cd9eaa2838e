package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	StateIdle            State = "idle"
	StateAwaitingGateway State = "awaiting_gateway"
	StateSucceeded       State = "succeeded"
	StateDismissed       State = "dismissed"
	StatePolling         State = "polling"
	StateTimedOut        State = "timed_out"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

var ErrNoCheckout = errors.New("no checkout in progress")

type Order struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	UserEmail      string `json:"userEmail"`
	UserName       string `json:"userName"`
}

// PaymentResponse is what the gateway widget hands back on success.
type PaymentResponse struct {
	OrderID   string
	PaymentID string
	Signature string
}

type Membership struct {
	MemberNumber string `json:"memberNumber"`
	Tier         string `json:"tier"`
	Badge        string `json:"badge"`
}

type Status struct {
	Status       string `json:"status"`
	IsMember     bool   `json:"isMember"`
	MemberNumber string `json:"memberNumber,omitempty"`
	Badge        string `json:"badge,omitempty"`
	Recovered    bool   `json:"recovered,omitempty"`
}

// Paid reports whether the status settles the checkout.
func (s *Status) Paid() bool {
	return s != nil && (s.IsMember || s.Status == "paid")
}

// Backend is the payments API as seen by the buyer.
type Backend interface {
	CreateOrder(ctx context.Context, tier, country string) (*Order, error)
	VerifyPayment(ctx context.Context, order *Order, tier string, p PaymentResponse) (*Membership, error)
	CheckStatus(ctx context.Context, gatewayOrderID string) (*Status, error)
}

// Handlers are invoked by the payment UI. At most one of them fires per
// Open, from any goroutine.
type Handlers struct {
	OnSuccess func(PaymentResponse)
	OnDismiss func()
}

// PaymentUI opens the gateway's hosted checkout for an order.
type PaymentUI interface {
	Open(ctx context.Context, order *Order, h Handlers) error
}

// Client drives one checkout attempt at a time: it opens the payment UI,
// verifies a synchronous success and otherwise polls the status endpoint
// until the order is paid or the poll window closes.
type Client struct {
	backend  Backend
	ui       PaymentUI
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu         sync.Mutex
	attempt    uint64
	state      State
	tier       string
	order      *Order
	membership *Membership
	settled    chan struct{}
	isSettled  bool
	stopPoll   context.CancelFunc
	pollDone   chan struct{}
}

func NewClient(backend Backend, ui PaymentUI, interval, timeout time.Duration, log *slog.Logger) *Client {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Client{
		backend:  backend,
		ui:       ui,
		interval: interval,
		timeout:  timeout,
		log:      log.With("component", "checkout"),
		state:    StateIdle,
		settled:  make(chan struct{}),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Membership returns the issued membership once the checkout succeeded.
func (c *Client) Membership() *Membership {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.membership
}

func (c *Client) Order() *Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order
}

// Start begins a new checkout attempt. Any earlier attempt and its polling
// loop are abandoned first.
func (c *Client) Start(ctx context.Context, tier, country string) error {
	c.mu.Lock()
	c.cancelPollLocked()
	c.attempt++
	attempt := c.attempt
	c.state = StateAwaitingGateway
	c.tier = tier
	c.order = nil
	c.membership = nil
	c.settled = make(chan struct{})
	c.isSettled = false
	c.mu.Unlock()

	order, err := c.backend.CreateOrder(ctx, tier, country)
	if err != nil {
		c.reset(attempt)
		return err
	}

	c.mu.Lock()
	if attempt != c.attempt {
		c.mu.Unlock()
		return nil
	}
	c.order = order
	c.mu.Unlock()

	c.log.InfoContext(ctx, "opening payment window", "order_id", order.GatewayOrderID, "amount", order.Amount, "currency", order.Currency)
	err = c.ui.Open(ctx, order, Handlers{
		OnSuccess: func(p PaymentResponse) { c.handleSuccess(ctx, attempt, p) },
		OnDismiss: func() { c.handleDismiss(ctx, attempt) },
	})
	if err != nil {
		c.reset(attempt)
		return err
	}
	return nil
}

func (c *Client) reset(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt == c.attempt {
		c.state = StateIdle
	}
}

func (c *Client) handleSuccess(ctx context.Context, attempt uint64, p PaymentResponse) {
	c.mu.Lock()
	if attempt != c.attempt || c.state != StateAwaitingGateway {
		c.mu.Unlock()
		return
	}
	c.cancelPollLocked()
	order, tier := c.order, c.tier
	c.mu.Unlock()

	m, err := c.backend.VerifyPayment(ctx, order, tier, p)
	if err != nil {
		// The money may still have moved; let reconciliation decide.
		c.log.WarnContext(ctx, "payment verification failed, falling back to status polling",
			"order_id", order.GatewayOrderID, "error", err)
		c.startPolling(ctx, attempt, StateAwaitingGateway)
		return
	}
	c.succeed(attempt, m)
}

func (c *Client) handleDismiss(ctx context.Context, attempt uint64) {
	c.mu.Lock()
	if attempt != c.attempt || c.state != StateAwaitingGateway {
		c.mu.Unlock()
		return
	}
	c.state = StateDismissed
	c.mu.Unlock()

	c.log.InfoContext(ctx, "payment window closed, checking with the server")
	c.startPolling(ctx, attempt, StateDismissed)
}

// startPolling moves the attempt from the given state into polling. The loop
// outlives the caller's request context and stops on success, on timeout or
// when another attempt starts.
func (c *Client) startPolling(ctx context.Context, attempt uint64, from State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt || c.state != from {
		return
	}
	c.cancelPollLocked()

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.state = StatePolling
	c.stopPoll = cancel
	c.pollDone = done
	go c.poll(pollCtx, attempt, c.order.GatewayOrderID, done)
}

func (c *Client) poll(ctx context.Context, attempt uint64, orderID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	c.log.InfoContext(ctx, "status polling started", "order_id", orderID, "interval", c.interval, "timeout", c.timeout)

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.timeOut(attempt)
			c.log.WarnContext(ctx, "status polling timed out", "order_id", orderID)
			return
		case <-ticker.C:
			st, err := c.backend.CheckStatus(ctx, orderID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.log.WarnContext(ctx, "status check failed", "order_id", orderID, "error", err)
				continue
			}
			if st.Paid() {
				c.succeed(attempt, membershipFromStatus(st, c.tierOf(attempt)))
				return
			}
		}
	}
}

// CheckNow asks the server once, outside the polling schedule. It is how a
// buyer re-checks after the poll window closed.
func (c *Client) CheckNow(ctx context.Context) (*Status, error) {
	c.mu.Lock()
	attempt, order := c.attempt, c.order
	c.mu.Unlock()
	if order == nil {
		return nil, ErrNoCheckout
	}

	st, err := c.backend.CheckStatus(ctx, order.GatewayOrderID)
	if err != nil {
		return nil, err
	}
	if st.Paid() {
		c.succeed(attempt, membershipFromStatus(st, c.tierOf(attempt)))
	}
	return st, nil
}

// Wait blocks until the current attempt succeeds or times out.
func (c *Client) Wait(ctx context.Context) (State, error) {
	c.mu.Lock()
	settled := c.settled
	c.mu.Unlock()

	select {
	case <-settled:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Stop cancels any polling loop and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	done := c.pollDone
	c.cancelPollLocked()
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Client) succeed(attempt uint64, m *Membership) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt || c.state == StateSucceeded {
		return
	}
	c.cancelPollLocked()
	c.state = StateSucceeded
	c.membership = m
	c.settleLocked()
}

func (c *Client) timeOut(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt || c.state != StatePolling {
		return
	}
	c.state = StateTimedOut
	c.cancelPollLocked()
	c.settleLocked()
}

func (c *Client) settleLocked() {
	if !c.isSettled {
		c.isSettled = true
		close(c.settled)
	}
}

func (c *Client) tierOf(attempt uint64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt != c.attempt {
		return ""
	}
	return c.tier
}

func (c *Client) cancelPollLocked() {
	if c.stopPoll != nil {
		c.stopPoll()
		c.stopPoll = nil
	}
}

func membershipFromStatus(st *Status, tier string) *Membership {
	return &Membership{MemberNumber: st.MemberNumber, Tier: tier, Badge: st.Badge}
}
