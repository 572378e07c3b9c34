// Package pool implements a per-key connection pool actor.
// A single goroutine owns all bookkeeping for the connection keys it hosts
// and processes checkouts, checkins and socket events strictly in arrival
// order, so no locks guard the per-key state.
package pool

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/metrics"
)

// Default configuration values.
const (
	DefaultLimit           = 10
	DefaultCheckoutTimeout = 5000 * time.Millisecond
	DefaultCheckoutExpiry  = 15000 * time.Millisecond
	DefaultSafetyMargin    = 100 * time.Millisecond
	DefaultSweepInterval   = time.Minute
	DefaultInboxSize       = 128
)

// OverflowPolicy decides what a checkout gets when the limit is reached and
// nothing can be reclaimed.
type OverflowPolicy int

const (
	// RejectWithTimeout fails the checkout with ErrCheckoutTimeout.
	RejectWithTimeout OverflowPolicy = iota
	// AllowOverflow lets the caller create a connection beyond the limit.
	AllowOverflow
)

func (o OverflowPolicy) String() string {
	switch o {
	case RejectWithTimeout:
		return "reject-with-timeout"
	case AllowOverflow:
		return "allow-overflow"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy parses the configuration spelling of a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject-with-timeout", "reject":
		return RejectWithTimeout, nil
	case "allow-overflow", "allow":
		return AllowOverflow, nil
	default:
		return 0, fmt.Errorf("overflow policy %q: %w", s, apperrors.ErrUnknownPolicy)
	}
}

// Adapter is the socket transport the pool drives. Implementations must be
// safe for use by several pools at once.
type Adapter interface {
	// Close closes the socket and forgets any state kept for it.
	Close(conn net.Conn) error
	// SetReceiving switches the socket between watched (idle, owned by the
	// pool) and passive (handed to a caller) modes.
	SetReceiving(conn net.Conn, on bool) error
	// SetKeepalive toggles transport keepalives.
	SetKeepalive(conn net.Conn, on bool) error
	// PeerAddress fails if the peer is no longer connected.
	PeerAddress(conn net.Conn) (net.Addr, error)
	// HasPendingCloseOrError reports, without blocking, whether a peer
	// close or socket error has been observed for conn.
	HasPendingCloseOrError(conn net.Conn) bool
	// Link registers onDown to be called when a watched socket dies.
	Link(conn net.Conn, onDown func(net.Conn, error))
	// Unlink drops the registration made by Link.
	Unlink(conn net.Conn)
}

// Config configures a pool actor. It is fixed once the pool starts.
type Config struct {
	// Name is the registry key the pool serves. It is copied into every handle.
	Name string
	// Limit caps connections per connection key.
	// Default: 10
	Limit int
	// CheckoutTimeout bounds how long a checkout may wait.
	// Default: 5 seconds
	CheckoutTimeout time.Duration
	// CheckoutExpiry is how long a checked-out connection may stay out
	// before the reaper considers it abandoned.
	// Default: 15 seconds
	CheckoutExpiry time.Duration
	// Overflow picks the outcome for checkouts that cannot be served.
	Overflow OverflowPolicy
	// SafetyMargin is subtracted from the checkout timeout when deferring
	// an overflow reply, so the pool answers before the caller gives up.
	// Default: 100ms
	SafetyMargin time.Duration
	// MaxIdleTime closes idle connections unused for longer than this.
	// Zero disables idle expiry.
	MaxIdleTime time.Duration
	// SweepInterval is how often idle expiry and waiter pruning run.
	// Default: 1 minute
	SweepInterval time.Duration
	// InboxSize is the request queue depth of the actor.
	// Default: 128
	InboxSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:            "default",
		Limit:           DefaultLimit,
		CheckoutTimeout: DefaultCheckoutTimeout,
		CheckoutExpiry:  DefaultCheckoutExpiry,
		Overflow:        RejectWithTimeout,
		SafetyMargin:    DefaultSafetyMargin,
		SweepInterval:   DefaultSweepInterval,
		InboxSize:       DefaultInboxSize,
	}
}

// CheckoutOptions override the pool defaults for a single checkout.
// Zero fields fall back to the pool configuration.
type CheckoutOptions struct {
	Timeout time.Duration
	Expiry  time.Duration
}

// Pool is a connection pool actor.
type Pool struct {
	cfg       Config
	adapter   Adapter
	inbox     chan any
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	crashed   atomic.Bool

	// hosts is owned by the actor goroutine.
	hosts map[ConnectionKey]*hostEntry
	// reclaimed holds sockets the pool closed while a caller still held
	// them, so their late checkins can be dropped. Owned by the actor.
	reclaimed map[net.Conn]time.Time

	// overflow is the reply used when capacity is exhausted. It is chosen
	// from the overflow policy when the pool starts.
	overflow func(key ConnectionKey) result

	counters counters
}

// New starts a pool actor.
func New(cfg Config, adapter Adapter) *Pool {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = DefaultCheckoutTimeout
	}
	if cfg.CheckoutExpiry <= 0 {
		cfg.CheckoutExpiry = DefaultCheckoutExpiry
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}

	p := &Pool{
		cfg:     cfg,
		adapter: adapter,
		inbox:   make(chan any, cfg.InboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		hosts:   make(map[ConnectionKey]*hostEntry),

		reclaimed: make(map[net.Conn]time.Time),
	}
	p.overflow = p.overflowReply(cfg.Overflow)

	go p.run()

	log.WithField("pool", cfg.Name).WithField("limit", cfg.Limit).WithField("overflow", cfg.Overflow.String()).Debug("pool created")
	return p
}

// Name returns the registry key the pool serves.
func (p *Pool) Name() string {
	return p.cfg.Name
}

// Config returns the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// Done is closed once the actor has stopped, either through Close or
// because it crashed.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Crashed reports whether the actor stopped because of a panic.
func (p *Pool) Crashed() bool {
	return p.crashed.Load()
}

// Checkout asks the pool for a connection to key. The lease either carries
// an idle connection to reuse or tells the caller to create one; in both
// cases the caller must eventually check the connection in with
// lease.Handle. When the pool is saturated the call may wait up to the
// checkout timeout; with the reject policy it then fails with
// ErrCheckoutTimeout.
func (p *Pool) Checkout(ctx context.Context, key ConnectionKey, opts CheckoutOptions) (Lease, error) {
	if err := key.Validate(); err != nil {
		return Lease{}, err
	}
	opts = p.withDefaults(ctx, opts)

	CheckoutTotal.Inc()
	timer := metrics.NewTimer(CheckoutLatency)
	defer timer.ObserveDuration()

	req := &checkoutReq{key: key, opts: opts, reply: make(chan result, 1)}
	select {
	case p.inbox <- req:
	case <-p.done:
		return Lease{}, apperrors.ErrPoolClosed
	case <-ctx.Done():
		return Lease{}, ctx.Err()
	}

	wait := time.NewTimer(opts.Timeout)
	defer wait.Stop()

	select {
	case r := <-req.reply:
		return r.lease, r.err
	case <-ctx.Done():
		p.abandon(req)
		return Lease{}, ctx.Err()
	case <-wait.C:
		p.abandon(req)
		return p.late(key)
	case <-p.done:
		select {
		case r := <-req.reply:
			return r.lease, r.err
		default:
		}
		return Lease{}, apperrors.ErrPoolClosed
	}
}

// late answers a checkout the actor has not replied to within the timeout,
// following the overflow policy. The actor still answers the request and
// counts that answer, so nothing is counted here.
func (p *Pool) late(key ConnectionKey) (Lease, error) {
	if p.cfg.Overflow == AllowOverflow {
		lease := p.lease(key, OutcomeCreateNew, nil)
		lease.Overflow = true
		return lease, nil
	}
	return Lease{}, apperrors.ErrCheckoutTimeout
}

// withDefaults fills unset options from the configuration and never lets
// the timeout outlive the context deadline.
func (p *Pool) withDefaults(ctx context.Context, opts CheckoutOptions) CheckoutOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = p.cfg.CheckoutTimeout
	}
	if opts.Expiry <= 0 {
		opts.Expiry = p.cfg.CheckoutExpiry
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < opts.Timeout {
			opts.Timeout = remaining
		}
	}
	return opts
}

// abandon consumes the reply of a checkout whose caller stopped waiting.
// Every queued request is eventually answered, so a reused connection
// handed out after the caller left goes straight back to the pool.
func (p *Pool) abandon(req *checkoutReq) {
	go func() {
		select {
		case r := <-req.reply:
			if r.err == nil && r.lease.Reused() {
				log.WithField("key", req.key.String()).Debug("returning connection of abandoned checkout")
				_ = p.Checkin(r.lease.Handle, r.lease.Conn)
			}
		case <-p.done:
			select {
			case r := <-req.reply:
				if r.err == nil && r.lease.Reused() {
					_ = p.adapter.Close(r.lease.Conn)
				}
			default:
			}
		}
	}()
}

// Checkin hands conn back to the pool. It is acknowledged before the pool
// files the connection, so it only fails for handles the pool did not
// issue. Checking in to a closed pool closes conn.
func (p *Pool) Checkin(h Handle, conn net.Conn) error {
	if conn == nil {
		return nil
	}
	if h.pool != p {
		return apperrors.ErrInvalidHandle
	}

	CheckinTotal.Inc()
	req := &checkinReq{handle: h, conn: conn, ack: make(chan struct{})}
	p.send(req, req.ack, conn)
	return nil
}

// Discard closes conn instead of returning it and frees the checkout it
// was leased under. Use it for connections left in an unknown state.
func (p *Pool) Discard(h Handle, conn net.Conn) error {
	if conn == nil {
		return nil
	}
	if h.pool != p {
		return apperrors.ErrInvalidHandle
	}

	req := &discardReq{handle: h, conn: conn, ack: make(chan struct{})}
	p.send(req, req.ack, conn)
	return nil
}

// send delivers an acknowledged message. If the actor is gone, conn is
// closed here instead.
func (p *Pool) send(msg any, ack <-chan struct{}, conn net.Conn) {
	select {
	case p.inbox <- msg:
	case <-p.done:
		p.closeOrphan(conn)
		return
	}

	select {
	case <-ack:
	case <-p.done:
		select {
		case <-ack:
		default:
			p.closeOrphan(conn)
		}
	}
}

func (p *Pool) closeOrphan(conn net.Conn) {
	log.WithField("pool", p.cfg.Name).Debug("pool closed, closing checked-in connection")
	if err := p.adapter.Close(conn); err != nil {
		log.WithError(err).Debug("closing orphaned connection")
	}
}

// KeyStats describes one connection key.
type KeyStats struct {
	Key        ConnectionKey `json:"key"`
	Idle       int           `json:"idle"`
	CheckedOut int           `json:"checked_out"`
	Waiting    int           `json:"waiting"`
}

// Stats is a snapshot of a pool.
type Stats struct {
	// Name is the registry key of the pool.
	Name string `json:"name"`
	// Limit is the per-key connection cap.
	Limit int `json:"limit"`
	// Keys lists every connection key with state in the pool.
	Keys []KeyStats `json:"keys"`
	// Reused counts checkouts answered with an idle connection.
	Reused uint64 `json:"reused"`
	// Created counts checkouts answered with "create new".
	Created uint64 `json:"created"`
	// Overflowed counts "create new" answers granted past the limit.
	Overflowed uint64 `json:"overflowed"`
	// Rejected counts checkouts failed by the reject policy.
	Rejected uint64 `json:"rejected"`
	// Reaped counts expired checkouts reclaimed by the reaper.
	Reaped uint64 `json:"reaped"`
	// ProbeFailures counts idle connections that failed the liveness probe.
	ProbeFailures uint64 `json:"probe_failures"`
	// Discarded counts every connection the pool closed.
	Discarded uint64 `json:"discarded"`
}

// Totals sums the per-key counts.
func (s Stats) Totals() (idle, checkedOut, waiting int) {
	for _, k := range s.Keys {
		idle += k.Idle
		checkedOut += k.CheckedOut
		waiting += k.Waiting
	}
	return idle, checkedOut, waiting
}

// Key returns the stats for key, or zero counts if the pool has no state for it.
func (s Stats) Key(key ConnectionKey) KeyStats {
	for _, k := range s.Keys {
		if k.Key == key {
			return k
		}
	}
	return KeyStats{Key: key}
}

// Stats returns a snapshot taken by the actor between two requests.
func (p *Pool) Stats(ctx context.Context) (Stats, error) {
	req := &statsReq{reply: make(chan Stats, 1)}
	select {
	case p.inbox <- req:
	case <-p.done:
		return Stats{}, apperrors.ErrPoolClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case s := <-req.reply:
		return s, nil
	case <-p.done:
		return Stats{}, apperrors.ErrPoolClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Close stops the actor, closes idle connections and fails queued
// checkouts with ErrPoolClosed. Connections still checked out stay with
// their callers; checking them in later closes them.
func (p *Pool) Close() error {
	closed := false
	p.closeOnce.Do(func() {
		closed = true
		close(p.stop)
	})
	<-p.done
	if !closed {
		return apperrors.ErrPoolClosed
	}
	log.WithField("pool", p.cfg.Name).Debug("pool closed")
	return nil
}
