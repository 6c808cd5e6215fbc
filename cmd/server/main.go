package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"ms-security/internal/audit/delivery"
	"ms-security/internal/audit/pipeline"
	"ms-security/internal/platform/config"
	"ms-security/internal/platform/httpserver"
	"ms-security/internal/platform/logger"
	"ms-security/internal/platform/middleware"
	httptransport "ms-security/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// The audit pipeline is constructed explicitly and handed to the router as
// plain middleware; no package-level singletons.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	p := pipeline.New(pipeline.Config{
		Delivery: delivery.Config{
			Brokers:          cfg.EventHubBrokers,
			ClientID:         cfg.EventHubClientID,
			ConnectionString: cfg.EventHubConnectionString,
			Topic:            cfg.EventHubTopic,
		},
		ExcludedRoutes:  append([]string{"/healthz", "/metrics"}, cfg.AuditExcludedRoutes...),
		HipaaRoutes:     cfg.AuditHipaaRoutes,
		SensitiveFields: cfg.AuditSensitiveFields,
	}, log, prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Init(ctx); err != nil {
		// Auditing is best-effort infrastructure; the host still serves.
		log.Error("audit pipeline init failed", "error", err)
	}

	router := httptransport.NewRouter(
		middleware.Principal(cfg.JWTSigningKey, log),
		p.Middleware(),
	)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting ms-security", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		p.Shutdown(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
