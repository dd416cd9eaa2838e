package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"founding-members/internal/config"
	"founding-members/internal/database"
	"founding-members/internal/infrastructure/feed"
	"founding-members/internal/infrastructure/notify"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/metrics"
	"founding-members/internal/repo"
	"founding-members/internal/server"
	"founding-members/internal/service"
)

type repos struct {
	orders        repo.OrderRepo
	payments      repo.PaymentRepo
	members       repo.MembershipRepo
	subscriptions repo.SubscriptionRepo
	profiles      repo.ProfileRepo
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		r     repos
		db    database.Service
		sqlDB *sql.DB
	)
	if cfg.UseMemoryStore {
		log.Warn("using in-memory store, state is lost on restart")
		r = repos{
			orders:        repo.NewMemoryOrderRepo(),
			payments:      repo.NewMemoryPaymentRepo(),
			members:       repo.NewMemoryMembershipRepo(),
			subscriptions: repo.NewMemorySubscriptionRepo(),
			profiles:      repo.NewMemoryProfileRepo(),
		}
	} else {
		pool, err := database.NewPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			log.Error("migrate", "error", err)
			os.Exit(1)
		}
		db = database.New(pool, log)
		defer db.Close()
		sqlDB = db.DB()
		r = repos{
			orders:        repo.NewOrderRepo(sqlDB),
			payments:      repo.NewPaymentRepo(sqlDB),
			members:       repo.NewMembershipRepo(sqlDB),
			subscriptions: repo.NewSubscriptionRepo(sqlDB),
			profiles:      repo.NewProfileRepo(sqlDB),
		}
		log.Info("postgres ready", "host", cfg.DBHost, "database", cfg.DBName)
	}

	// Activity feed
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, activity feed writes will fail", "addr", cfg.RedisAddr, "error", err)
	}
	activity := feed.NewRedisFeed(rdb, cfg.FeedKey, cfg.FeedMaxLen)

	// Gateway
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout, cfg.GatewayRPS)
	verifier := payment.NewSignatureVerifier(cfg.GatewayKeySecret)

	m := metrics.New()
	orderSvc := service.NewOrderService(r.orders, r.subscriptions, r.members, r.profiles, gateway, cfg.MonthlyPlans, m, log)
	membershipSvc := service.NewMembershipService(sqlDB, r.members, r.orders, r.payments, r.profiles, gateway, verifier,
		activity, notify.NewLogNotifier(log), m, log)
	reconcileSvc := service.NewReconciliationService(r.members, membershipSvc, gateway, m, log)

	srv := server.NewServer(orderSvc, membershipSvc, reconcileSvc, db, m, cfg.JWTSecret, cfg.CORSAllowedOrigins, log)
	httpServer := srv.HTTPServer(cfg.HTTPAddr)

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
