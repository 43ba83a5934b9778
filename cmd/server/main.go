package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"diligence/internal/app"
	"diligence/internal/investigation/handler"
	"diligence/internal/platform/config"
	"diligence/internal/platform/httpserver"
	"diligence/internal/platform/logger"
	"diligence/internal/platform/metrics"
	httptransport "diligence/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	pipeline, err := app.Build(ctx, cfg, log, app.Options{Registerer: reg})
	if err != nil {
		return err
	}
	defer pipeline.Close()

	routerCfg := httptransport.RouterConfig{
		Logger:         log,
		Registry:       reg,
		RequestTimeout: cfg.Pipeline.InvestigationLimit + cfg.Oracle.Timeout,
		Ready:          pipeline.Health,
	}
	if pipeline.Limiter != nil {
		routerCfg.Throttle = pipeline.Limiter.Limit
	}
	router := httptransport.NewRouter(routerCfg, handler.New(pipeline.Service, log))
	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting diligence", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
