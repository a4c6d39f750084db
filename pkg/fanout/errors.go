package fanout

import "errors"

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrTransportNotConfigured = errors.New("push transport is not configured")
	ErrDeliveryNotQueued      = errors.New("delivery is not in the queued state")
)
