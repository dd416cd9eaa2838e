package domain

import "time"

// SubscriptionStatus is whatever the gateway reports; this service only
// records the initial value.
type SubscriptionStatus string

const (
	SubscriptionCreated   SubscriptionStatus = "created"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	GatewaySubscriptionID string
	UserID                string
	PlanID                string
	Status                SubscriptionStatus
	Tier                  Tier
	Amount                int64
	Currency              string
	CreatedAt             time.Time
}
