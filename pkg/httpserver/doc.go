// Package httpserver runs the push service HTTP surface: an http.Server
// wrapper with env-driven configuration, graceful shutdown on context
// cancellation or SIGINT/SIGTERM, and a combined liveness/readiness probe
// handler.
//
// The service binary loads a Config from the environment, mounts the push
// routes on a chi router, and blocks in Run:
//
//	var cfg httpserver.Config
//	config.MustLoad(&cfg)
//
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log, pg.Healthcheck(pool)))
//	r.Mount("/push", handler.Router())
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Run wraps listen failures with ErrStart and Shutdown wraps shutdown
// failures with ErrShutdown, so callers can inspect both with errors.Is.
package httpserver
