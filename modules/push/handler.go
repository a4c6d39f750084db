package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/pushkit/pkg/delivery"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/subscription"
	"github.com/dmitrymomot/pushkit/pkg/webpush"
)

// UserFromRequest extracts the authenticated user id from a request. The
// host application owns authentication; this module only needs the result.
type UserFromRequest func(r *http.Request) (string, error)

// Handler exposes the push module's HTTP surface: device registration, the
// service-worker delivery confirmations, and the VAPID public key clients
// need to subscribe.
type Handler struct {
	subs     *subscription.Service
	tracker  *delivery.Tracker
	cfg      webpush.Config
	userFrom UserFromRequest
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates the push HTTP handler.
func NewHandler(subs *subscription.Service, tracker *delivery.Tracker, cfg webpush.Config, userFrom UserFromRequest, opts ...HandlerOption) *Handler {
	h := &Handler{
		subs:     subs,
		tracker:  tracker,
		cfg:      cfg,
		userFrom: userFrom,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Router returns the module routes, ready to be mounted:
//
//	r.Mount("/push", handler.Router())
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/register", h.handleRegister)
	r.Post("/unregister", h.handleUnregister)
	r.Patch("/deliveries/{id}/delivered", h.confirm(h.tracker.ConfirmDelivered))
	r.Patch("/deliveries/{id}/read", h.confirm(h.tracker.ConfirmRead))
	r.Get("/vapid-public-key", h.handleVAPIDPublicKey)
	r.Get("/health", h.handleHealth)

	return r
}

type subscriptionPayload struct {
	Endpoint string            `json:"endpoint"`
	Keys     subscription.Keys `json:"keys"`
}

type registerRequest struct {
	Subscription subscriptionPayload `json:"subscription"`
	DeviceName   string              `json:"device_name,omitempty"`
}

type registerResponse struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subscription.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "incorrect subscription payload")
		return
	}

	sub, outcome, err := h.subs.Register(r.Context(), subscription.RegisterInput{
		UserID:     userID,
		Endpoint:   req.Subscription.Endpoint,
		Keys:       req.Subscription.Keys,
		UserAgent:  r.UserAgent(),
		DeviceName: req.DeviceName,
	})
	if err != nil {
		if errors.Is(err, subscription.ErrEndpointRequired) || errors.Is(err, subscription.ErrKeysRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to register subscription",
			logger.UserID(userID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to register subscription")
		return
	}

	status := http.StatusCreated
	switch outcome {
	case subscription.OutcomeReassigned:
		status = http.StatusAccepted
	case subscription.OutcomeAlreadyRegistered:
		status = http.StatusAlreadyReported
	}

	writeJSON(w, status, registerResponse{ID: sub.ID, Outcome: string(outcome)})
}

type unregisterRequest struct {
	Subscription subscriptionPayload `json:"subscription"`
}

func (h *Handler) handleUnregister(w http.ResponseWriter, r *http.Request) {
	userID, err := h.userFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subscription.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "incorrect subscription payload")
		return
	}

	switch err := h.subs.Unregister(r.Context(), userID, req.Subscription.Endpoint); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription not registered")
	case errors.Is(err, subscription.ErrNotOwner):
		writeError(w, http.StatusForbidden, "subscription does not belong to current user")
	default:
		h.logger.ErrorContext(r.Context(), "failed to unregister subscription",
			logger.UserID(userID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to unregister subscription")
	}
}

// confirm wraps a tracker callback as a fire-and-forget endpoint: the service
// worker must never be blocked by bookkeeping failures, so errors are logged
// and the response is 204 regardless.
func (h *Handler) confirm(fn func(ctx context.Context, deliveryID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID := chi.URLParam(r, "id")
		if err := fn(r.Context(), deliveryID); err != nil {
			h.logger.WarnContext(r.Context(), "failed to record delivery confirmation",
				logger.DeliveryID(deliveryID),
				logger.Error(err),
			)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.cfg.VAPIDPublicKey})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "push",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
