package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// serveMetrics exposes Prometheus metrics and live resource usage on addr
// until ctx is done. It returns immediately; listen errors are logged.
//
//	GET /metrics  Prometheus exposition
//	GET /usage    engine.ResourceUsage as JSON
//	GET /health   liveness
func (a *app) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.services.Metrics.Collectors().Handler())
	mux.HandleFunc("GET /usage", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.engine.ResourceUsage())
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}()
}
