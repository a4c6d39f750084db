package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrEndpointRequired     = errors.New("subscription endpoint is required")
	ErrKeysRequired         = errors.New("subscription encryption keys are required")
	ErrDuplicateEndpoint    = errors.New("subscription endpoint already registered")
	ErrNotOwner             = errors.New("subscription does not belong to this user")
)
