package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/simple-media/pkg/logger"
	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/idempotency"
	"github.com/tendant/simple-media/pkg/simplemedia/metrics"
)

// routeConfig is everything mountRoutes needs.
type routeConfig struct {
	Service        simplemedia.Service
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	MaxUploadBytes int64

	// APIKeySHA256 enables the API key check when set.
	APIKeySHA256 string
	// JWTSecret enables HS256 bearer verification when set.
	JWTSecret string

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *logger.Logger
}

// mountRoutes mounts /api/v1/media and /metrics on r. Middleware is scoped to
// sub-routers so it can be called after health routes are registered.
func mountRoutes(r *chi.Mux, rc routeConfig) error {
	var apiKey func(http.Handler) http.Handler
	if rc.APIKeySHA256 != "" {
		mw, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": rc.APIKeySHA256,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize API key middleware: %w", err)
		}
		apiKey = mw
	}

	var ja *jwtauth.JWTAuth
	if rc.JWTSecret != "" {
		ja = jwtauth.New("HS256", []byte(rc.JWTSecret), nil)
	}

	handler := api.NewMediaHandler(rc.Service,
		api.WithMaxUploadBytes(rc.MaxUploadBytes),
		api.WithIdempotencyStore(rc.Idempotency, rc.IdempotencyTTL),
		api.WithLogger(rc.Log),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(api.RequestID(rc.Log))
		r.Use(api.Logging(rc.Log))
		r.Use(api.Recoverer(rc.Log))
		if rc.Metrics != nil {
			r.Use(metrics.Middleware(rc.Metrics))
		}

		r.Group(func(r chi.Router) {
			if apiKey != nil {
				r.Use(apiKey)
			}
			if ja != nil {
				r.Use(api.RequireJWT(ja))
			}
			r.Mount("/media", handler.Routes())
		})
	})

	if rc.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(rc.Gatherer))
	}
	return nil
}
