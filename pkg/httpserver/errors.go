package httpserver

import "errors"

var (
	// ErrStart reports that the listener could not be started or that Run
	// was called on a server that is already running.
	ErrStart = errors.New("http server failed to start")

	// ErrShutdown reports that graceful shutdown did not complete within
	// the shutdown timeout.
	ErrShutdown = errors.New("http server shutdown failed")
)
