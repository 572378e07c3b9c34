package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/go-i2p/hostpool/lib/config"
	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/metrics"
	"github.com/go-i2p/hostpool/lib/pool"
	"github.com/go-i2p/hostpool/lib/registry"
	"github.com/go-i2p/hostpool/version"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// statsRefreshInterval is how often the pool gauges are refreshed while
// serving.
const statsRefreshInterval = 10 * time.Second

func handleServe(cfg *config.Config, logger *slog.Logger) int {
	reg, _, err := newRegistry(cfg)
	if err != nil {
		logger.Error("invalid pool configuration", "error", err)
		return 1
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.Debug.Enabled {
		srv = &http.Server{
			Addr:              cfg.Debug.Listen,
			Handler:           newDebugMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("debug server failed", "error", err)
				stop()
			}
		}()
		logger.Info("debug endpoint listening", "addr", cfg.Debug.Listen)
	}

	logger.Info("hostpool started",
		"version", version.Version,
		"granularity", cfg.Pool.Granularity,
		"limit", cfg.Pool.Limit,
		"overflow", cfg.Pool.Overflow)

	ticker := time.NewTicker(statsRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("debug server shutdown", "error", err)
				}
				cancel()
			}
			return 0
		case <-ticker.C:
			if _, err := reg.Stats(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("refreshing pool stats failed", "error", err)
			}
		}
	}
}

// newDebugMux serves the metrics, pool snapshots and build information.
func newDebugMux(reg *registry.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("host") || q.Has("pool") {
			s, err := poolStats(r.Context(), reg, q.Get("host"), q.Get("pool"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, s)
			return
		}
		stats, err := reg.Stats(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, stats)
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, version.Get())
	})
	return mux
}

// poolStats snapshots the pool a request to host through poolName would
// use, without starting one.
func poolStats(ctx context.Context, reg *registry.Registry, host, poolName string) (pool.Stats, error) {
	key, err := reg.Resolve(host, poolName)
	if err != nil {
		return pool.Stats{}, err
	}
	p, ok := reg.Lookup(key)
	if !ok {
		return pool.Stats{}, fmt.Errorf("pool %s: %w", key, apperrors.ErrNotFound)
	}
	return p.Stats(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError reports err as a coded JSON error. Errors outside the known
// categories are reported without their details.
func writeError(w http.ResponseWriter, err error) {
	var e *apperrors.Error
	if !apperrors.As(err, &e) {
		e = apperrors.FromSentinel(err)
	}

	status := http.StatusInternalServerError
	switch {
	case apperrors.IsTimeout(err):
		status = http.StatusGatewayTimeout
	case apperrors.IsUnavailable(err), apperrors.IsClosed(err):
		status = http.StatusServiceUnavailable
	case apperrors.IsNotFound(err):
		status = http.StatusNotFound
	case apperrors.IsInvalidInput(err):
		status = http.StatusBadRequest
	default:
		e = apperrors.WrapInternal(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{e.Code, e.SafeMessage()}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Debug("writing error response failed", "error", err)
	}
}

// writeJSONTo prints v as indented JSON.
func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
