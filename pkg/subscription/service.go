package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// RegisterOutcome describes what Register did with an endpoint.
type RegisterOutcome string

const (
	// OutcomeRegistered means a new subscription was created.
	OutcomeRegistered RegisterOutcome = "registered"
	// OutcomeReassigned means the endpoint existed under another user and was
	// moved to the registering user and reactivated. Browsers hand out one
	// endpoint per installation, so a user switch on the same device shows up
	// as a re-register of a known endpoint.
	OutcomeReassigned RegisterOutcome = "reassigned"
	// OutcomeAlreadyRegistered means the endpoint was already registered to
	// the same user; the call is a no-op.
	OutcomeAlreadyRegistered RegisterOutcome = "already_registered"
)

// RegisterInput carries the browser-provided subscription details.
type RegisterInput struct {
	UserID     string
	Endpoint   string
	Keys       Keys
	UserAgent  string
	DeviceName string
}

// Service implements device registration and unregistration on top of a
// Store. Registration dedupes by endpoint; unregistration soft-deletes.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the Service.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithServiceClock overrides the time source, mainly for tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a subscription service backed by the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register stores a device subscription for a user. Endpoints are unique: an
// endpoint already registered to the same user is a no-op, while an endpoint
// registered to a different user is reassigned and reactivated.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Subscription, RegisterOutcome, error) {
	if in.Endpoint == "" {
		return nil, "", ErrEndpointRequired
	}
	if in.Keys.P256dh == "" || in.Keys.Auth == "" {
		return nil, "", ErrKeysRequired
	}
	if in.DeviceName == "" {
		in.DeviceName = DeriveDeviceName(in.UserAgent)
	}

	existing, err := s.store.GetByEndpoint(ctx, in.Endpoint)
	switch {
	case err == nil:
		if existing.UserID == in.UserID {
			return existing, OutcomeAlreadyRegistered, nil
		}

		existing.UserID = in.UserID
		existing.Keys = in.Keys
		existing.UserAgent = in.UserAgent
		existing.DeviceName = in.DeviceName
		existing.IsActive = true
		existing.ExpiresAt = nil
		if err := s.store.Update(ctx, *existing); err != nil {
			return nil, "", fmt.Errorf("failed to reassign subscription: %w", err)
		}

		s.logger.InfoContext(ctx, "subscription endpoint reassigned",
			logger.SubscriptionID(existing.ID),
			logger.UserID(in.UserID),
		)
		return existing, OutcomeReassigned, nil

	case !errors.Is(err, ErrSubscriptionNotFound):
		return nil, "", fmt.Errorf("failed to look up subscription endpoint: %w", err)
	}

	sub := Subscription{
		ID:         uuid.New().String(),
		UserID:     in.UserID,
		Endpoint:   in.Endpoint,
		Keys:       in.Keys,
		UserAgent:  in.UserAgent,
		DeviceName: in.DeviceName,
		IsActive:   true,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, sub); err != nil {
		return nil, "", fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "subscription registered",
		logger.SubscriptionID(sub.ID),
		logger.UserID(in.UserID),
	)
	return &sub, OutcomeRegistered, nil
}

// Unregister soft-deletes the subscription for the given endpoint. The
// subscription must belong to the calling user.
func (s *Service) Unregister(ctx context.Context, userID, endpoint string) error {
	if endpoint == "" {
		return ErrEndpointRequired
	}

	sub, err := s.store.GetByEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}
	if sub.UserID != userID {
		return ErrNotOwner
	}

	sub.Deactivate(s.now())
	if err := s.store.Update(ctx, *sub); err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "subscription unregistered",
		logger.SubscriptionID(sub.ID),
		logger.UserID(userID),
	)
	return nil
}
