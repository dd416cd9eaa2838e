package service

import "errors"

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownTier     = errors.New("unknown tier")
	// ErrInvalidSignature is an authenticity failure. It is never retried.
	ErrInvalidSignature = errors.New("payment signature verification failed")
	ErrOrderOwnership   = errors.New("order belongs to another user")
	ErrOrderNotFound    = errors.New("order not found")
	ErrAmountMismatch   = errors.New("captured amount is below the order amount")
	// ErrPlanNotAvailable means the subscription plan is not provisioned yet.
	ErrPlanNotAvailable = errors.New("subscription plan not available yet")
	ErrAlreadyMember    = errors.New("user is already a founding member")
)
