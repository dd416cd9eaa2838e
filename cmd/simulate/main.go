package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"founding-members/internal/checkout"
	"founding-members/internal/infrastructure/feed"
	"founding-members/internal/infrastructure/notify"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
	"founding-members/internal/server"
	"founding-members/internal/service"
)

const (
	buyers      = 20
	parallelism = 5
	jwtSecret   = "simulator-jwt-secret"
	keySecret   = "simulator-key-secret"

	pollInterval   = 250 * time.Millisecond
	pollTimeout    = 4 * time.Second
	outOfBandDelay = 1500 * time.Millisecond
)

// gatewayUI plays the hosted checkout widget against the mock gateway.
type gatewayUI struct {
	gw *payment.MockGateway
}

func (u gatewayUI) Open(ctx context.Context, order *checkout.Order, h checkout.Handlers) error {
	res, err := u.gw.Checkout(ctx, order.GatewayOrderID)
	go func() {
		if err == nil && res.Outcome == payment.OutcomeCallback {
			h.OnSuccess(checkout.PaymentResponse{OrderID: res.OrderID, PaymentID: res.PaymentID, Signature: res.Signature})
			return
		}
		// Declined, paid elsewhere, or the callback was lost: the buyer
		// closes the widget either way.
		h.OnDismiss()
	}()
	return nil
}

func main() {
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gin.SetMode(gin.ReleaseMode)

	mr, err := miniredis.Run()
	if err != nil {
		log.Error("start embedded redis", "error", err)
		os.Exit(1)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	activity := feed.NewRedisFeed(rdb, "activity:feed", 100)

	gw := payment.NewMockGateway(keySecret)
	gw.OutOfBandDelay = outOfBandDelay

	members := repo.NewMemoryMembershipRepo()
	orders := repo.NewMemoryOrderRepo()
	profiles := repo.NewMemoryProfileRepo()
	m := metrics.New()

	orderSvc := service.NewOrderService(orders, repo.NewMemorySubscriptionRepo(), members, profiles, gw, nil, m, quiet)
	membershipSvc := service.NewMembershipService(nil, members, orders, repo.NewMemoryPaymentRepo(), profiles, gw,
		payment.NewSignatureVerifier(keySecret), activity, notify.NewLogNotifier(quiet), m, log)
	reconcileSvc := service.NewReconciliationService(members, membershipSvc, gw, m, log)
	srv := server.NewServer(orderSvc, membershipSvc, reconcileSvc, nil, m, jwtSecret, nil, quiet)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Error("listen", "error", err)
		os.Exit(1)
	}
	httpServer := &http.Server{Handler: srv.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
		}
	}()
	defer httpServer.Close()
	baseURL := "http://" + ln.Addr().String()

	fmt.Printf("--- STARTING SIMULATION (%d BUYERS) ---\n", buyers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := 0; i < buyers; i++ {
		user := fmt.Sprintf("user-%02d", i+1)
		tier := "tier_1"
		if i%3 == 2 {
			tier = "tier_2"
		}
		g.Go(func() error {
			runBuyer(gctx, baseURL, gw, user, tier, log)
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println("---------------------------------------------------")
	wall, err := members.ListByYear(ctx, time.Now().UTC().Year())
	if err != nil {
		log.Error("list members", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Founding members issued: %d\n", len(wall))
	for _, fm := range wall {
		fmt.Printf("    %s  %-8s %-6s %s\n", fm.MemberNumber, fm.UserID, fm.Badge, fm.Tier)
	}

	recent, err := activity.Recent(ctx, 5)
	if err != nil {
		log.Error("read activity feed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Latest activity:")
	for _, a := range recent {
		fmt.Printf("    %s joined as #%s (%s)\n", a.UserID, a.MemberNumber, a.Badge)
	}
}

func runBuyer(ctx context.Context, baseURL string, gw *payment.MockGateway, user, tier string, log *slog.Logger) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user,
		"email": user + "@example.com",
		"name":  user,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	if err != nil {
		log.Error("sign token", "user", user, "error", err)
		return
	}

	backend := checkout.NewHTTPBackend(baseURL, token, 5*time.Second)
	client := checkout.NewClient(backend, gatewayUI{gw: gw}, pollInterval, pollTimeout, log)
	defer client.Stop()

	if err := client.Start(ctx, tier, "US"); err != nil {
		fmt.Printf("[%s] checkout failed to start: %v\n", user, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, pollTimeout+5*time.Second)
	defer cancel()
	state, err := client.Wait(waitCtx)
	if err != nil {
		fmt.Printf("[%s] gave up waiting in state %s\n", user, state)
		return
	}

	order := client.Order()
	switch state {
	case checkout.StateSucceeded:
		fmt.Printf("[%s] %s -> member #%s\n", user, order.GatewayOrderID, client.Membership().MemberNumber)
	case checkout.StateTimedOut:
		// One last manual check, as the buyer would after the window closes.
		st, err := client.CheckNow(ctx)
		if err != nil {
			fmt.Printf("[%s] %s -> timed out, re-check failed: %v\n", user, order.GatewayOrderID, err)
			return
		}
		fmt.Printf("[%s] %s -> timed out, gateway says %q\n", user, order.GatewayOrderID, st.Status)
	default:
		fmt.Printf("[%s] %s -> ended in %s\n", user, order.GatewayOrderID, state)
	}
}
