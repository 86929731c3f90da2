package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/EcoDeli/GeoTrack/config"
	"github.com/EcoDeli/GeoTrack/internal/services/reaper"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	reaper *reaper.Reaper
	cfg    *config.Config
}

func swaggerPathFromEnv() string {
	return os.Getenv("swaggerPath")
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8082"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("worker swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.reaper == nil {
			_, _ = w.Write([]byte(`{"error":"reaper not wired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(opts.reaper.Stats())
	})

	r.Post("/reap", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.reaper == nil {
			_, _ = w.Write([]byte(`{"error":"reaper not wired"}`))
			return
		}
		opts.reaper.Trigger()
		_, _ = w.Write([]byte(`{"status":"triggered"}`))
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.cfg == nil {
			_, _ = w.Write([]byte(`{"error":"config not wired"}`))
			return
		}
		// Секреты наружу не отдаём, только операционные настройки воркера.
		out := map[string]any{
			"reapIntervalSeconds":          opts.cfg.GeoTrack.WorkerReapIntervalSeconds,
			"reapBatchSize":                opts.cfg.GeoTrack.WorkerReapBatchSize,
			"reapConcurrency":              opts.cfg.GeoTrack.WorkerReapConcurrency,
			"reapIdleSeconds":              opts.cfg.GeoTrack.WorkerReapIdleSeconds,
			"reapLeaseSeconds":             opts.cfg.GeoTrack.WorkerReapLeaseSeconds,
			"rateLimitPerCourierPerMinute": opts.cfg.GeoTrack.WorkerRateLimitPerCourierPerMinute,
		}
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
