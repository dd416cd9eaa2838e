package domain

import "time"

// UserProfile is owned by the account system. Only the premium fields are
// written here, once a membership is issued.
type UserProfile struct {
	UserID               string
	Email                string
	DisplayName          string
	IsPremium            bool
	IsFoundingMember     bool
	FoundingMemberNumber string
	LifetimeAccess       bool
	PurchasedDate        *time.Time
}
