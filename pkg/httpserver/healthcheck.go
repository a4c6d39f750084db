package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// HealthCheckHandler serves liveness and readiness probes from one handler.
// With no check functions it reports 200 "ALIVE". With checks it runs each
// one and reports 200 "READY", or 500 "NOT_READY" as soon as a check fails.
// The push service wires its database ping here so an instance is not routed
// traffic while the ledger is unreachable.
func HealthCheckHandler(ctx context.Context, log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		if len(checks) == 0 {
			w.Write([]byte("ALIVE"))
			return
		}
		w.Write([]byte("READY"))
	}
}
