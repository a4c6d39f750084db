package delivery

import "errors"

var (
	ErrDeliveryNotFound   = errors.New("delivery not found")
	ErrDeliveryExists     = errors.New("delivery already exists for this notification and subscription")
	ErrDeliveryFinal      = errors.New("delivery is in a terminal state")
	ErrInvalidTransition  = errors.New("invalid delivery status transition")
	ErrAttemptsExhausted  = errors.New("delivery attempts exhausted")
	ErrNotificationIDMiss = errors.New("delivery notification ID is required")
	ErrSubscriptionIDMiss = errors.New("delivery subscription ID is required")
)
