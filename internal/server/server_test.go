package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"founding-members/internal/infrastructure/feed"
	"founding-members/internal/infrastructure/notify"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
	"founding-members/internal/service"
)

const (
	testJWTSecret = "jwt-test-secret"
	testKeySecret = "gateway-test-secret"
)

type nopFeed struct{}

func (nopFeed) Append(context.Context, feed.Activity) error { return nil }

type testServer struct {
	router  *gin.Engine
	gateway *payment.MockGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := payment.NewMockGateway(testKeySecret)
	m := metrics.New()
	members := repo.NewMemoryMembershipRepo()
	orders := repo.NewMemoryOrderRepo()
	profiles := repo.NewMemoryProfileRepo()

	orderSvc := service.NewOrderService(orders, repo.NewMemorySubscriptionRepo(), members, profiles, gw,
		map[string]string{"USD": "plan_usd_live", "INR": "plan_PLACEHOLDER"}, m, log)
	membershipSvc := service.NewMembershipService(nil, members, orders, repo.NewMemoryPaymentRepo(), profiles, gw,
		payment.NewSignatureVerifier(testKeySecret), nopFeed{}, notify.NewLogNotifier(log), m, log)
	reconcileSvc := service.NewReconciliationService(members, membershipSvc, gw, m, log)

	srv := NewServer(orderSvc, membershipSvc, reconcileSvc, nil, m, testJWTSecret, []string{"http://localhost:5173"}, log)
	return &testServer{router: srv.Router(), gateway: gw}
}

func token(t *testing.T, secret, sub string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"name":  sub,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, path, user string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, testJWTSecret, user))
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestCheckoutFlow(t *testing.T) {
	ts := newTestServer(t)

	code, order := ts.do(t, "/api/payments/orders", "alice", map[string]string{"tier": "tier_1", "country": "IN"})
	require.Equal(t, http.StatusOK, code, order)
	assert.EqualValues(t, 399900, order["amount"])
	assert.Equal(t, "INR", order["currency"])
	assert.Equal(t, "alice@example.com", order["userEmail"])
	orderID := order["gatewayOrderId"].(string)

	paymentID, sig, err := ts.gateway.Capture(orderID, "card")
	require.NoError(t, err)

	code, verified := ts.do(t, "/api/payments/verify", "alice", map[string]any{
		"gatewayOrderId": orderID, "gatewayPaymentId": paymentID, "signature": sig,
		"tier": "tier_1", "amount": 399900, "currency": "INR",
	})
	require.Equal(t, http.StatusOK, code, verified)
	assert.Equal(t, true, verified["success"])
	assert.Equal(t, "gold", verified["badge"])
	memberNumber := verified["memberNumber"].(string)
	assert.Regexp(t, `^\d{4}-1001$`, memberNumber)

	code, status := ts.do(t, "/api/payments/status", "alice", map[string]string{"gatewayOrderId": orderID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", status["status"])
	assert.Equal(t, true, status["isMember"])
	assert.Equal(t, memberNumber, status["memberNumber"])
	assert.Equal(t, false, status["recovered"])
}

func TestStatus_RecoversLostCallback(t *testing.T) {
	ts := newTestServer(t)

	_, order := ts.do(t, "/api/payments/orders", "bob", map[string]string{"tier": "tier_2"})
	orderID := order["gatewayOrderId"].(string)
	_, _, err := ts.gateway.Capture(orderID, "upi")
	require.NoError(t, err)

	code, status := ts.do(t, "/api/payments/status", "bob", map[string]string{"gatewayOrderId": orderID})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", status["status"])
	assert.Equal(t, true, status["recovered"])
	assert.Equal(t, "silver", status["badge"])
}

func TestStatus_GatewayDownReportsUnknown(t *testing.T) {
	ts := newTestServer(t)

	_, order := ts.do(t, "/api/payments/orders", "bob", map[string]string{"tier": "tier_2"})
	ts.gateway.SetUnavailable(true)

	code, status := ts.do(t, "/api/payments/status", "bob", map[string]string{"gatewayOrderId": order["gatewayOrderId"].(string)})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unknown", status["status"])
	assert.Equal(t, false, status["isMember"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	_, order := ts.do(t, "/api/payments/orders", "alice", map[string]string{"tier": "tier_1"})
	orderID := order["gatewayOrderId"].(string)
	paymentID, _, err := ts.gateway.Capture(orderID, "card")
	require.NoError(t, err)

	cases := []struct {
		name   string
		path   string
		user   string
		body   any
		status int
		code   string
	}{
		{"no token", "/api/payments/orders", "", map[string]string{"tier": "tier_1"}, http.StatusUnauthorized, "unauthenticated"},
		{"missing tier", "/api/payments/orders", "alice", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"unknown tier", "/api/payments/orders", "alice", map[string]string{"tier": "tier_9"}, http.StatusBadRequest, "unknown_tier"},
		{"placeholder plan", "/api/payments/subscriptions", "alice", map[string]string{"tier": "monthly_inr"}, http.StatusServiceUnavailable, "not_available"},
		{"bad signature", "/api/payments/verify", "alice", map[string]string{
			"gatewayOrderId": orderID, "gatewayPaymentId": paymentID, "signature": "deadbeef",
		}, http.StatusBadRequest, "invalid_signature"},
		{"foreign order", "/api/payments/status", "mallory", map[string]string{"gatewayOrderId": orderID}, http.StatusForbidden, "forbidden"},
		{"missing order", "/api/payments/status", "alice", map[string]string{"gatewayOrderId": "order_nope"}, http.StatusNotFound, "order_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := ts.do(t, tc.path, tc.user, tc.body)
			assert.Equal(t, tc.status, code)
			assert.Equal(t, tc.code, body["code"])
		})
	}
}

func TestAuth_RejectsForeignSignature(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/payments/orders", bytes.NewBufferString(`{"tier":"tier_1"}`))
	req.Header.Set("Authorization", "Bearer "+token(t, "some-other-secret", "alice"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubscription(t *testing.T) {
	ts := newTestServer(t)

	code, sub := ts.do(t, "/api/payments/subscriptions", "alice", map[string]string{"tier": "monthly", "country": "US"})
	require.Equal(t, http.StatusOK, code, sub)
	assert.Equal(t, "created", sub["status"])
	assert.Equal(t, "9.99 USD", sub["displayAmount"])
	assert.NotEmpty(t, sub["gatewaySubscriptionId"])
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"memory"`)

	w = httptest.NewRecorder()
	ts.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
