package client

import (
	"sync"
	"time"

	"github.com/go-i2p/hostpool/lib/pool"
)

// BreakerConfig configures the per-endpoint dial breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive dial failures that
	// open the breaker. Zero disables it.
	FailureThreshold int
	// Cooldown is how long an open breaker rejects dials before a single
	// trial dial is let through.
	// Default: 10 seconds
	Cooldown time.Duration
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker tracks dial failures for one endpoint. Only fresh dials go
// through it; pooled connections are handed out regardless.
type breaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	name     string
	state    breakerState
	failures int
	openedAt time.Time
}

// allow reports whether a dial may proceed. After the cooldown exactly one
// trial dial is allowed until its outcome is recorded.
func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.transitionTo(breakerHalfOpen, now)
		return true
	default:
		return false
	}
}

func (b *breaker) success(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transitionTo(breakerClosed, now)
}

func (b *breaker) failure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.transitionTo(breakerOpen, now)
	}
}

// cancelled hands a trial slot back after a dial that never reached the
// endpoint. It is not counted as a failure.
func (b *breaker) cancelled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
	}
}

// transitionTo must be called with the lock held.
func (b *breaker) transitionTo(s breakerState, now time.Time) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	if s == breakerOpen {
		b.openedAt = now
		BreakerTripsTotal.Inc()
	}
	log.WithField("endpoint", b.name).
		WithField("from", from.String()).
		WithField("to", s.String()).
		Info("dial breaker state transition")
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// breakers holds one breaker per connection key.
type breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[pool.ConnectionKey]*breaker
}

func newBreakers(cfg BreakerConfig) *breakers {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &breakers{cfg: cfg, m: make(map[pool.ConnectionKey]*breaker)}
}

// get returns the breaker for key, or nil when breaking is disabled.
func (bs *breakers) get(key pool.ConnectionKey) *breaker {
	if bs.cfg.FailureThreshold <= 0 {
		return nil
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.m[key]
	if !ok {
		b = &breaker{cfg: bs.cfg, name: key.String()}
		bs.m[key] = b
	}
	return b
}
