// Package client dials outbound connections through the pool registry.
// A checkout that yields an idle connection skips the dial; otherwise the
// dialer connects itself and the connection joins the pool when closed.
package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
	"github.com/go-i2p/hostpool/lib/registry"
)

// Config configures a Dialer.
type Config struct {
	// DialTimeout bounds connection establishment.
	// Default: 5 seconds
	DialTimeout time.Duration
	// KeepAlive is the TCP keepalive period for dialed connections.
	// Zero keeps the net package default.
	KeepAlive time.Duration
	// Transport is the network passed to the dialer.
	// Default: "tcp"
	Transport string
	// Checkout overrides the pool defaults for every checkout.
	Checkout pool.CheckoutOptions
	// Breaker stops dialing endpoints that keep failing.
	Breaker BreakerConfig
	// Rate limits new dials per endpoint.
	Rate RateConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 5 * time.Second,
		Transport:   "tcp",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         10 * time.Second,
		},
	}
}

// Dialer hands out pooled connections.
type Dialer struct {
	reg      *registry.Registry
	cfg      Config
	dialer   net.Dialer
	breakers *breakers
	limiters *dialLimiters
}

// New creates a Dialer backed by reg.
func New(reg *registry.Registry, cfg Config) *Dialer {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Transport == "" {
		cfg.Transport = "tcp"
	}
	return &Dialer{
		reg: reg,
		cfg: cfg,
		dialer: net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		},
		breakers: newBreakers(cfg.Breaker),
		limiters: newDialLimiters(cfg.Rate),
	}
}

// Dial returns a connection to addr through the default pool.
func (d *Dialer) Dial(ctx context.Context, addr string) (*Conn, error) {
	return d.DialPool(ctx, "", addr)
}

// DialPool returns a connection to addr through the named pool. The
// connection must be released with Close or Discard.
func (d *Dialer) DialPool(ctx context.Context, poolName, addr string) (*Conn, error) {
	key, err := d.connectionKey(addr)
	if err != nil {
		return nil, err
	}

	p, err := d.reg.For(key.Host, poolName)
	if err != nil {
		return nil, err
	}

	lease, err := p.Checkout(ctx, key, d.cfg.Checkout)
	if err != nil {
		DialErrorsTotal.Inc()
		return nil, fmt.Errorf("checkout %s: %w", key, err)
	}

	if lease.Reused() {
		DialsReusedTotal.Inc()
		log.WithField("key", key.String()).Debug("reusing pooled connection")
		return newConn(lease.Conn, lease.Handle, true), nil
	}

	conn, err := d.dial(ctx, key)
	if err != nil {
		DialErrorsTotal.Inc()
		return nil, err
	}
	DialsNewTotal.Inc()
	log.WithField("key", key.String()).WithField("overflow", lease.Overflow).Debug("dialed new connection")
	return newConn(conn, lease.Handle, false), nil
}

// dial opens a new connection unless the endpoint's breaker is open.
func (d *Dialer) dial(ctx context.Context, key pool.ConnectionKey) (net.Conn, error) {
	b := d.breakers.get(key)
	if b != nil && !b.allow(time.Now()) {
		BreakerRejectionsTotal.Inc()
		return nil, fmt.Errorf("dial %s: %w", key, apperrors.ErrCircuitOpen)
	}
	if err := d.limiters.wait(ctx, key); err != nil {
		if b != nil {
			b.cancelled()
		}
		return nil, err
	}

	conn, err := d.dialer.DialContext(ctx, key.Transport, key.Address())
	if b != nil {
		switch {
		case err == nil:
			b.success(time.Now())
		case ctx.Err() != nil:
			b.cancelled()
		default:
			b.failure(time.Now())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", apperrors.ErrConnection, key, err)
	}
	return conn, nil
}

func (d *Dialer) connectionKey(addr string) (pool.ConnectionKey, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return pool.ConnectionKey{}, fmt.Errorf("address %q: %w: %w", addr, apperrors.ErrInvalidInput, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return pool.ConnectionKey{}, fmt.Errorf("port %q: %w", portStr, apperrors.ErrInvalidInput)
	}
	key := pool.ConnectionKey{Host: host, Port: port, Transport: d.cfg.Transport}
	if err := key.Validate(); err != nil {
		return pool.ConnectionKey{}, err
	}
	return key, nil
}
