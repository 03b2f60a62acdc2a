package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/chi-demo/app"
	"go.uber.org/multierr"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logg := cfg.Logger("media-server")
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":             cfg.Environment,
		"database":        cfg.DatabaseType,
		"storage_backend": cfg.DefaultStorageBackend,
		"url_strategy":    cfg.URLStrategy,
	})

	m := metrics.New(prometheus.DefaultRegisterer)
	rt, err := cfg.BuildService(ctx, logg, m)
	requireResource(ctx, logg, "media service", err)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	err = mountRoutes(server.R, routeConfig{
		Service:        rt.Service,
		Idempotency:    rt.Idempotency,
		IdempotencyTTL: cfg.IdempotencyTTL,
		MaxUploadBytes: cfg.MaxUploadBytes,
		APIKeySHA256:   cfg.APIKeySHA256,
		JWTSecret:      cfg.JWTSecret,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
		Log:            logg,
	})
	requireResource(ctx, logg, "routes", err)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info(logg.WithField(ctx, "port", cfg.Port), "media server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "server error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := multierr.Combine(httpServer.Shutdown(shutdownCtx), rt.Close()); err != nil {
		logg.Error(ctx, "shutdown incomplete", err)
		os.Exit(1)
	}
	logg.Info(ctx, "server exited")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
