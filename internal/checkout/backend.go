package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the payments API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payments api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// HTTPBackend calls the payments API with the buyer's bearer token.
type HTTPBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) doRequest(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

func (b *HTTPBackend) CreateOrder(ctx context.Context, tier, country string) (*Order, error) {
	var o Order
	err := b.doRequest(ctx, "/api/payments/orders", map[string]string{"tier": tier, "country": country}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type verifyRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
	Tier             string `json:"tier,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	Currency         string `json:"currency,omitempty"`
}

type verifyResponse struct {
	Success bool `json:"success"`
	Membership
}

func (b *HTTPBackend) VerifyPayment(ctx context.Context, order *Order, tier string, p PaymentResponse) (*Membership, error) {
	var res verifyResponse
	err := b.doRequest(ctx, "/api/payments/verify", verifyRequest{
		GatewayOrderID:   p.OrderID,
		GatewayPaymentID: p.PaymentID,
		Signature:        p.Signature,
		Tier:             tier,
		Amount:           order.Amount,
		Currency:         order.Currency,
	}, &res)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("verify payment %s: server reported failure", p.PaymentID)
	}
	return &res.Membership, nil
}

func (b *HTTPBackend) CheckStatus(ctx context.Context, gatewayOrderID string) (*Status, error) {
	var st Status
	err := b.doRequest(ctx, "/api/payments/status", map[string]string{"gatewayOrderId": gatewayOrderID}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
