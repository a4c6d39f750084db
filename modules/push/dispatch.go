package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/fanout"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/notification"
)

// Dispatcher exposes the notification creation endpoint: it persists the
// notification and runs the fan-out, the same way a host application would on
// its own "notification created" event. Mount it on an internal,
// service-to-service route; it performs no end-user authentication.
type Dispatcher struct {
	notifs notification.Store
	engine *fanout.Engine
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates the dispatch HTTP handler.
func NewDispatcher(notifs notification.Store, engine *fanout.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifs: notifs,
		engine: engine,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Router returns the dispatch routes, ready to be mounted:
//
//	r.Mount("/internal", dispatcher.Router())
func (d *Dispatcher) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/notifications", d.handleDispatch)

	return r
}

type dispatchRequest struct {
	UserID    string                `json:"user_id"`
	Channel   notification.Channel  `json:"channel"`
	Priority  notification.Priority `json:"priority"`
	Title     string                `json:"title"`
	Body      string                `json:"body,omitempty"`
	ActionURL string                `json:"action_url,omitempty"`
	IconURL   string                `json:"icon_url,omitempty"`
	Data      map[string]any        `json:"data,omitempty"`
}

type dispatchResponse struct {
	NotificationID string `json:"notification_id"`
	Devices        int    `json:"devices"`
	Sent           int    `json:"sent"`
	Requeued       int    `json:"requeued"`
	Failed         int    `json:"failed"`
}

func (d *Dispatcher) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "user_id and title are required")
		return
	}
	if req.Channel == "" {
		req.Channel = notification.ChannelPush
	}
	if req.Priority == "" {
		req.Priority = notification.PriorityNormal
	}

	notif := notification.Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Channel:   req.Channel,
		Priority:  req.Priority,
		Title:     req.Title,
		Body:      req.Body,
		ActionURL: req.ActionURL,
		IconURL:   req.IconURL,
		Data:      req.Data,
		CreatedAt: time.Now(),
	}
	if err := d.notifs.Create(r.Context(), notif); err != nil {
		d.logger.ErrorContext(r.Context(), "failed to store notification",
			logger.UserID(req.UserID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to store notification")
		return
	}

	res, err := d.engine.Process(r.Context(), notif)
	if err != nil {
		d.logger.ErrorContext(r.Context(), "failed to fan out notification",
			logger.NotificationID(notif.ID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to fan out notification")
		return
	}

	writeJSON(w, http.StatusAccepted, dispatchResponse{
		NotificationID: notif.ID,
		Devices:        res.Created,
		Sent:           res.Sent,
		Requeued:       res.Requeued,
		Failed:         res.Failed,
	})
}
