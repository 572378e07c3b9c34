package client

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
)

// RateConfig limits how fast new connections are dialed per endpoint.
// Pooled connections are never limited.
type RateConfig struct {
	// PerSecond is the sustained dial rate. Zero disables limiting.
	PerSecond float64
	// Burst is the number of dials allowed at once.
	// Default: 1
	Burst int
}

// dialLimiters holds one token bucket per connection key.
type dialLimiters struct {
	cfg RateConfig

	mu sync.Mutex
	m  map[pool.ConnectionKey]*rate.Limiter
}

func newDialLimiters(cfg RateConfig) *dialLimiters {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &dialLimiters{cfg: cfg, m: make(map[pool.ConnectionKey]*rate.Limiter)}
}

// get returns the limiter for key, or nil when limiting is disabled.
func (dl *dialLimiters) get(key pool.ConnectionKey) *rate.Limiter {
	if dl.cfg.PerSecond <= 0 {
		return nil
	}
	dl.mu.Lock()
	defer dl.mu.Unlock()
	l, ok := dl.m[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(dl.cfg.PerSecond), dl.cfg.Burst)
		dl.m[key] = l
	}
	return l
}

// wait blocks until key may be dialed again. It fails straight away when
// the context would expire before a token is available.
func (dl *dialLimiters) wait(ctx context.Context, key pool.ConnectionKey) error {
	l := dl.get(key)
	if l == nil {
		return nil
	}
	if err := l.Wait(ctx); err != nil {
		DialsThrottledTotal.Inc()
		return fmt.Errorf("dial %s: rate limited: %w: %w", key, apperrors.ErrTimeout, err)
	}
	return nil
}
