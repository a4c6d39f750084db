// Command pushd runs the push notification service: device registration and
// confirmation endpoints, the internal dispatch endpoint, and the background
// delivery retrier.
//
// Storage is selected by environment: with PG_CONN_URL set the service runs
// on Postgres, otherwise it falls back to in-memory stores, which is enough
// for local development against a real push service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/pushkit/modules/push"
	"github.com/dmitrymomot/pushkit/pkg/config"
	"github.com/dmitrymomot/pushkit/pkg/delivery"
	"github.com/dmitrymomot/pushkit/pkg/fanout"
	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/logger"
	"github.com/dmitrymomot/pushkit/pkg/notification"
	"github.com/dmitrymomot/pushkit/pkg/pg"
	"github.com/dmitrymomot/pushkit/pkg/subscription"
	"github.com/dmitrymomot/pushkit/pkg/webpush"
)

type retryConfig struct {
	PollInterval time.Duration `env:"PUSH_RETRY_POLL_INTERVAL" envDefault:"30s"`
	BatchSize    int           `env:"PUSH_RETRY_BATCH_SIZE" envDefault:"100"`
	MaxAttempts  int           `env:"PUSH_MAX_ATTEMPTS" envDefault:"3"`
	RetryDelay   time.Duration `env:"PUSH_RETRY_DELAY" envDefault:"1m"`
}

type stores struct {
	notifs      notification.Store
	subs        subscription.Store
	ledger      delivery.Ledger
	healthcheck func(context.Context) error
}

func main() {
	log := logger.New(logger.WithProduction("pushd"))
	logger.SetAsDefault(log)

	ctx := context.Background()

	var httpCfg httpserver.Config
	config.MustLoad(&httpCfg)

	var wpCfg webpush.Config
	config.MustLoad(&wpCfg)

	var retryCfg retryConfig
	config.MustLoad(&retryCfg)

	st, err := openStores(ctx, log)
	if err != nil {
		log.Error("failed to open storage", logger.Error(err))
		os.Exit(1)
	}

	var transport webpush.Transport
	if wpCfg.Configured() {
		sender, err := webpush.NewSender(wpCfg)
		if err != nil {
			log.Error("failed to create webpush sender", logger.Error(err))
			os.Exit(1)
		}
		transport = sender
	} else {
		log.Warn("VAPID keys are not configured, push sends are disabled")
	}

	engine := fanout.New(
		allUsersResolver{},
		st.notifs,
		st.subs,
		st.ledger,
		transport,
		fanout.WithLogger(log),
		fanout.WithMaxAttempts(retryCfg.MaxAttempts),
		fanout.WithRetryDelay(retryCfg.RetryDelay),
		fanout.WithSendTTL(wpCfg.DefaultTTL),
	)

	handler := push.NewHandler(
		subscription.NewService(st.subs, subscription.WithServiceLogger(log)),
		delivery.NewTracker(st.ledger, delivery.WithTrackerLogger(log)),
		wpCfg,
		userFromHeader,
		push.WithHandlerLogger(log),
	)
	dispatcher := push.NewDispatcher(st.notifs, engine, push.WithDispatcherLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if st.healthcheck != nil {
		r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, st.healthcheck))
	} else {
		r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	}
	r.Mount("/push", handler.Router())
	r.Mount("/internal", dispatcher.Router())

	retrier := fanout.NewRetrier(engine,
		fanout.WithPollInterval(retryCfg.PollInterval),
		fanout.WithBatchSize(retryCfg.BatchSize),
		fanout.WithRetrierLogger(log),
	)

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(retrier.Run(ctx))
	g.Go(func() error { return srv.Run(ctx, r) })

	if err := g.Wait(); err != nil {
		log.Error("service stopped", logger.Error(err))
		os.Exit(1)
	}
}

// openStores picks Postgres when a connection string is configured, otherwise
// in-memory stores.
func openStores(ctx context.Context, log *slog.Logger) (*stores, error) {
	if os.Getenv("PG_CONN_URL") == "" {
		log.Info("PG_CONN_URL is not set, using in-memory storage")
		return &stores{
			notifs: notification.NewMemoryStore(),
			subs:   subscription.NewMemoryStore(),
			ledger: delivery.NewMemoryLedger(),
		}, nil
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}

	notifs := notification.NewPGStore(pool)
	subs := subscription.NewPGStore(pool)
	ledger := delivery.NewPGLedger(pool)
	for _, ensure := range []func(context.Context) error{
		notifs.EnsureSchema,
		subs.EnsureSchema,
		ledger.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return nil, err
		}
	}

	log.Info("connected to postgres")
	return &stores{
		notifs:      notifs,
		subs:        subs,
		ledger:      ledger,
		healthcheck: pg.Healthcheck(pool),
	}, nil
}

// allUsersResolver treats every user as push-enabled. The opt-out flag lives
// in the host application's user storage; a standalone deployment has no such
// record, so the preference check is delegated to whoever calls the dispatch
// endpoint.
type allUsersResolver struct{}

func (allUsersResolver) Resolve(ctx context.Context, userID string) (*fanout.User, error) {
	return &fanout.User{ID: userID, PushEnabled: true}, nil
}

var errNoUser = errors.New("no authenticated user in request")

// userFromHeader trusts the X-User-ID header set by the fronting proxy after
// authentication. Standalone deployments must not expose /push without it.
func userFromHeader(r *http.Request) (string, error) {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id, nil
	}
	return "", errNoUser
}
