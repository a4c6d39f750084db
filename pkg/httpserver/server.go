package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Server runs the push service HTTP surface: an http.Server with graceful
// shutdown on context cancellation or an interrupt/TERM signal.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu      sync.Mutex
	started bool
	once    sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Empty addresses are ignored.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.srv.Addr = addr
		}
	}
}

// WithReadTimeout sets the maximum duration for reading a request.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.srv.ReadTimeout = d
		}
	}
}

// WithWriteTimeout sets the maximum duration for writing a response.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.srv.WriteTimeout = d
		}
	}
}

// WithIdleTimeout sets how long a keep-alive connection may sit idle.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.srv.IdleTimeout = d
		}
	}
}

// WithShutdownTimeout sets how long graceful shutdown waits for in-flight
// requests before giving up.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithLogger sets the server logger. Nil loggers are ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server with defaults sized for the push API: small JSON
// request bodies, quick handlers, and long idle keep-alives for service
// workers that confirm deliveries in bursts.
func New(opts ...Option) *Server {
	s := &Server{
		srv: &http.Server{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  2 * time.Minute,
		},
		shutdownTimeout: 10 * time.Second,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run serves handler until ctx is cancelled or the process receives an
// interrupt or TERM signal, then shuts down gracefully. It blocks for the
// lifetime of the server; a Server runs at most once.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: server already running", ErrStart)
	}
	s.started = true
	s.srv.Handler = handler
	s.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	s.logger.Info("http server listening", slog.String("addr", s.srv.Addr))

	select {
	case <-ctx.Done():
		err := s.Shutdown(context.Background())
		<-errCh
		return err
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrStart, err)
		}
		return nil
	}
}

// Shutdown stops the server gracefully within the configured timeout. Safe
// to call more than once; only the first call does any work.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()

		s.logger.Info("http server shutting down")
		err = s.srv.Shutdown(ctx)
	})

	if err != nil {
		return errors.Join(ErrShutdown, err)
	}
	return nil
}
