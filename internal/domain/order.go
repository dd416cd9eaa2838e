package domain

import (
	"time"
)

type OrderStatus string

// Gateway order lifecycle. Attempted means a payment was tried but not captured.
const (
	OrderCreated   OrderStatus = "created"
	OrderAttempted OrderStatus = "attempted"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
)

// PendingOrder is the local record of a gateway order awaiting payment. It is
// informational: membership issuance never depends on its status.
type PendingOrder struct {
	GatewayOrderID string
	UserID         string
	Tier           Tier
	Amount         int64
	Currency       string
	Status         OrderStatus
	CreatedAt      time.Time
}
