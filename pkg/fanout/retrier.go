package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/pushkit/pkg/logger"
)

// Retrier periodically re-dispatches queued deliveries whose retry_after has
// elapsed. Running it is optional: the engine only defines the queued-with-
// retry_after transition, and any external scheduler calling
// Engine.ProcessDue works just as well.
type Retrier struct {
	engine *Engine

	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RetrierOption configures a Retrier.
type RetrierOption func(*Retrier)

// WithPollInterval sets how often the retrier checks for due deliveries.
func WithPollInterval(d time.Duration) RetrierOption {
	return func(r *Retrier) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithBatchSize caps how many due deliveries one poll re-dispatches.
func WithBatchSize(n int) RetrierOption {
	return func(r *Retrier) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRetrierLogger sets the retrier logger.
func WithRetrierLogger(logger *slog.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

// NewRetrier creates a retrier over the given engine.
func NewRetrier(engine *Engine, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		engine:       engine,
		pollInterval: 30 * time.Second,
		batchSize:    100,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start begins polling in the background.
func (r *Retrier) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return fmt.Errorf("retrier already started")
	}

	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)

	r.logger.Info("delivery retrier started",
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("batch_size", r.batchSize),
	)
	return nil
}

// Stop shuts the retrier down and waits for an in-flight poll to finish.
func (r *Retrier) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("retrier not started")
	}

	cancel()
	r.wg.Wait()

	r.logger.Info("delivery retrier stopped")
	return nil
}

// Run starts the retrier and returns a function suitable for errgroup.
func (r *Retrier) Run(ctx context.Context) func() error {
	return func() error {
		if err := r.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return r.Stop()
	}
}

func (r *Retrier) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := r.engine.ProcessDue(ctx, r.batchSize)
			if err != nil {
				r.logger.Error("failed to process due deliveries",
					logger.Error(err),
				)
				continue
			}
			if res.Sent+res.Requeued+res.Failed > 0 {
				r.logger.Info("due deliveries re-dispatched",
					slog.Int("sent", res.Sent),
					slog.Int("requeued", res.Requeued),
					slog.Int("failed", res.Failed),
				)
			}
		}
	}
}
