package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"founding-members/internal/database"
	"founding-members/internal/metrics"
	"founding-members/internal/service"
)

type Server struct {
	orders         service.OrderService
	membership     service.MembershipService
	reconciliation service.ReconciliationService
	// db is nil when running on the in-memory store.
	db             database.Service
	metrics        *metrics.Metrics
	jwtSecret      []byte
	allowedOrigins []string
	log            *slog.Logger
}

func NewServer(
	orders service.OrderService,
	membership service.MembershipService,
	reconciliation service.ReconciliationService,
	db database.Service,
	m *metrics.Metrics,
	jwtSecret string,
	allowedOrigins []string,
	log *slog.Logger,
) *Server {
	return &Server{
		orders:         orders,
		membership:     membership,
		reconciliation: reconciliation,
		db:             db,
		metrics:        m,
		jwtSecret:      []byte(jwtSecret),
		allowedOrigins: allowedOrigins,
		log:            log.With("component", "http"),
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api/payments", s.requireAuth())
	api.POST("/orders", s.handleCreateOrder)
	api.POST("/subscriptions", s.handleCreateSubscription)
	api.POST("/verify", s.handleVerifyPayment)
	api.POST("/status", s.handleCheckStatus)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(s.allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = s.allowedOrigins
	cfg.AllowCredentials = true
	return cfg
}

// HTTPServer wraps the router with the timeouts used in production.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
