package domain

import (
	"time"
)

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "created"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

// Payment is a payment attempt as recorded by the gateway. Amount is in the
// currency's minor unit.
type Payment struct {
	ID        string
	OrderID   string
	Amount    int64
	Currency  string
	Status    PaymentStatus
	Method    string
	CreatedAt time.Time
}

// CapturedPayment returns the first captured payment, if any.
func CapturedPayment(payments []Payment) (Payment, bool) {
	for _, p := range payments {
		if p.Status == PaymentCaptured {
			return p, true
		}
	}
	return Payment{}, false
}
