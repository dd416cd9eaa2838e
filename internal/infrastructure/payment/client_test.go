package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"founding-members/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "rzp_test_key", "secret", 2*time.Second, 100)
}

func TestClientCreateOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 4900, body["amount"])
		assert.Equal(t, "USD", body["currency"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_1","amount":4900,"amount_paid":0,"currency":"USD",
			"receipt":"r1","status":"created","notes":{"user_id":"u1","tier":"tier_1"},"created_at":1760000000}`))
	})

	o, err := c.CreateOrder(context.Background(), OrderRequest{
		Amount: 4900, Currency: "USD", Receipt: "r1",
		Notes: map[string]string{NoteUserID: "u1", NoteTier: "tier_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_1", o.ID)
	assert.Equal(t, domain.OrderCreated, o.Status)
	assert.Equal(t, "u1", o.Notes[NoteUserID])
}

func TestClientFetchOrderWithEmptyNotes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/order_1", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"order_1","amount":9900,"amount_paid":9900,"currency":"USD","status":"paid","notes":[]}`))
	})

	o, err := c.FetchOrder(context.Background(), "order_1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPaid, o.Status)
	assert.EqualValues(t, 9900, o.AmountPaid)
	assert.Empty(t, o.Notes)
}

func TestClientListOrderPayments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/order_1/payments", r.URL.Path)
		_, _ = w.Write([]byte(`{"entity":"collection","count":2,"items":[
			{"id":"pay_1","order_id":"order_1","amount":9900,"currency":"USD","status":"failed","method":"card","created_at":1760000000},
			{"id":"pay_2","order_id":"order_1","amount":9900,"currency":"USD","status":"captured","method":"upi","created_at":1760000100}]}`))
	})

	payments, err := c.ListOrderPayments(context.Background(), "order_1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	p, ok := domain.CapturedPayment(payments)
	require.True(t, ok)
	assert.Equal(t, "pay_2", p.ID)
	assert.Equal(t, "upi", p.Method)
}

func TestClientCreateSubscription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "plan_usd", body["plan_id"])
		_, _ = w.Write([]byte(`{"id":"sub_1","plan_id":"plan_usd","status":"created","short_url":"https://rzp.io/i/x"}`))
	})

	s, err := c.CreateSubscription(context.Background(), SubscriptionRequest{PlanID: "plan_usd", TotalCount: 120})
	require.NoError(t, err)
	assert.Equal(t, "sub_1", s.ID)
	assert.Equal(t, domain.SubscriptionCreated, s.Status)
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		notFound  bool
	}{
		{"server error", http.StatusBadGateway, ``, true, false},
		{"rate limited", http.StatusTooManyRequests, ``, true, false},
		{"not found", http.StatusNotFound, `{"error":{"code":"BAD_REQUEST_ERROR","description":"not found"}}`, false, true},
		{"bad request", http.StatusBadRequest, `{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too low"}}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.FetchOrder(context.Background(), "order_1")
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))

			if tt.status == http.StatusBadRequest {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "amount too low", apiErr.Description)
			}
		})
	}
}

func TestClientNetworkFailureIsTransient(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", "s", 200*time.Millisecond, 100)
	_, err := c.FetchOrder(context.Background(), "order_1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
