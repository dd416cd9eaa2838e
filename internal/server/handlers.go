package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"founding-members/internal/domain"
	"founding-members/internal/infrastructure/payment"
	"founding-members/internal/service"
)

type checkoutRequest struct {
	Tier    string `json:"tier" binding:"required"`
	Country string `json:"country"`
}

type verifyRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId" binding:"required"`
	GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
	// Client claims; logged when they disagree with the order, never trusted.
	Tier     string `json:"tier"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type statusRequest struct {
	GatewayOrderID string `json:"gatewayOrderId" binding:"required"`
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := s.orders.CreateOrder(c.Request.Context(), buyerFrom(c), domain.Tier(req.Tier), req.Country)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gatewayOrderId": order.GatewayOrderID,
		"amount":         order.Amount,
		"currency":       order.Currency,
		"userEmail":      order.UserEmail,
		"userName":       order.UserName,
	})
}

func (s *Server) handleCreateSubscription(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sub, err := s.orders.CreateSubscription(c.Request.Context(), buyerFrom(c), domain.Tier(req.Tier), req.Country)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gatewaySubscriptionId": sub.GatewaySubscriptionID,
		"status":                sub.Status,
		"displayAmount":         sub.DisplayAmount,
		"shortUrl":              sub.ShortURL,
	})
}

func (s *Server) handleVerifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	buyer := buyerFrom(c)
	res, err := s.membership.VerifyPayment(c.Request.Context(), service.VerifyPaymentRequest{
		UserID:          buyer.UserID,
		OrderID:         req.GatewayOrderID,
		PaymentID:       req.GatewayPaymentID,
		Signature:       req.Signature,
		ClaimedTier:     domain.Tier(req.Tier),
		ClaimedAmount:   req.Amount,
		ClaimedCurrency: req.Currency,
		Email:           buyer.Email,
		Name:            buyer.Name,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"memberNumber": res.Member.MemberNumber,
		"tier":         res.Member.Tier,
		"badge":        res.Member.Badge,
		"created":      res.Created,
	})
}

func (s *Server) handleCheckStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.reconciliation.CheckStatus(c.Request.Context(), buyerFrom(c), req.GatewayOrderID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	body := gin.H{
		"status":   res.Status,
		"isMember": res.IsMember,
	}
	if res.Member != nil {
		body["memberNumber"] = res.Member.MemberNumber
		body["badge"] = res.Member.Badge
		body["recovered"] = res.Recovered
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "up", "store": "memory"})
		return
	}
	stats := s.db.Health(c.Request.Context())
	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}

// writeError maps service errors to responses. Gateway and storage details
// stay in the log.
func (s *Server) writeError(c *gin.Context, err error) {
	var apiErr *payment.APIError
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		abortWithError(c, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, service.ErrUnknownTier):
		abortWithError(c, http.StatusBadRequest, "unknown_tier", err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		abortWithError(c, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, service.ErrOrderOwnership):
		abortWithError(c, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrOrderNotFound):
		abortWithError(c, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, service.ErrAlreadyMember):
		abortWithError(c, http.StatusConflict, "already_member", err.Error())
	case errors.Is(err, service.ErrAmountMismatch):
		abortWithError(c, http.StatusConflict, "amount_mismatch", err.Error())
	case errors.Is(err, service.ErrPlanNotAvailable):
		abortWithError(c, http.StatusServiceUnavailable, "not_available", "monthly plan is not available yet")
	case errors.Is(err, payment.ErrGatewayUnavailable), errors.As(err, &apiErr):
		s.log.ErrorContext(c.Request.Context(), "gateway call failed", "path", c.FullPath(), "error", err)
		abortWithError(c, http.StatusBadGateway, "gateway_error", "payment provider is unavailable, try again")
	default:
		s.log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		abortWithError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
