package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"founding-members/internal/domain"
)

// Client talks to a Razorpay-compatible REST API using HTTP Basic auth with
// the server-held key pair.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL, keyID, keySecret string, timeout time.Duration, rps float64) *Client {
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
	}
}

// notes decodes the gateway's notes field, which is an empty JSON array when
// no notes were set.
type notes map[string]string

func (n *notes) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		*n = nil
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

type orderBody struct {
	ID         string `json:"id"`
	Amount     int64  `json:"amount"`
	AmountPaid int64  `json:"amount_paid"`
	Currency   string `json:"currency"`
	Receipt    string `json:"receipt"`
	Status     string `json:"status"`
	Notes      notes  `json:"notes"`
	CreatedAt  int64  `json:"created_at"`
}

func (b orderBody) toOrder() *Order {
	return &Order{
		ID:         b.ID,
		Amount:     b.Amount,
		AmountPaid: b.AmountPaid,
		Currency:   b.Currency,
		Receipt:    b.Receipt,
		Status:     domain.OrderStatus(b.Status),
		Notes:      b.Notes,
		CreatedAt:  time.Unix(b.CreatedAt, 0).UTC(),
	}
}

type paymentBody struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	Method    string `json:"method"`
	CreatedAt int64  `json:"created_at"`
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    req.Notes,
	}
	var out orderBody
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &out); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return out.toOrder(), nil
}

func (c *Client) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*Subscription, error) {
	body := map[string]any{
		"plan_id":         req.PlanID,
		"total_count":     req.TotalCount,
		"customer_notify": 1,
		"notes":           req.Notes,
	}
	var out struct {
		ID       string `json:"id"`
		PlanID   string `json:"plan_id"`
		Status   string `json:"status"`
		ShortURL string `json:"short_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/subscriptions", body, &out); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &Subscription{
		ID:       out.ID,
		PlanID:   out.PlanID,
		Status:   domain.SubscriptionStatus(out.Status),
		ShortURL: out.ShortURL,
	}, nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var out orderBody
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	return out.toOrder(), nil
}

func (c *Client) ListOrderPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	var out struct {
		Items []paymentBody `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID)+"/payments", nil, &out); err != nil {
		return nil, fmt.Errorf("list payments for %s: %w", orderID, err)
	}
	payments := make([]domain.Payment, 0, len(out.Items))
	for _, p := range out.Items {
		payments = append(payments, domain.Payment{
			ID:        p.ID,
			OrderID:   p.OrderID,
			Amount:    p.Amount,
			Currency:  p.Currency,
			Status:    domain.PaymentStatus(p.Status),
			Method:    p.Method,
			CreatedAt: time.Unix(p.CreatedAt, 0).UTC(),
		})
	}
	return payments, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return &APIError{StatusCode: resp.StatusCode, Code: eb.Error.Code, Description: eb.Error.Description}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
