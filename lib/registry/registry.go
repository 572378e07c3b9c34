// Package registry maps pool keys to running pool actors. Every key gets
// at most one live actor; concurrent lookups for the same key converge on
// the same instance, and a crashed actor is replaced by a fresh one on the
// next lookup.
package registry

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/metrics"
	"github.com/go-i2p/hostpool/lib/pool"
)

// Registry owns the pool actors of a process.
type Registry struct {
	cfg     pool.Config
	policy  Policy
	adapter pool.Adapter

	mu     sync.Mutex
	pools  map[Key]*pool.Pool
	closed bool
}

// New creates a registry. Every pool it starts uses cfg, with the name
// replaced by the pool key.
func New(cfg pool.Config, policy Policy, adapter pool.Adapter) *Registry {
	return &Registry{
		cfg:     cfg,
		policy:  policy,
		adapter: adapter,
		pools:   make(map[Key]*pool.Pool),
	}
}

// Policy returns the granularity policy of the registry.
func (r *Registry) Policy() Policy {
	return r.policy
}

// Resolve derives the key for host and poolName under the registry policy.
func (r *Registry) Resolve(host, poolName string) (Key, error) {
	return ResolveKey(r.policy, host, poolName)
}

// For resolves the key and returns its pool.
func (r *Registry) For(host, poolName string) (*pool.Pool, error) {
	key, err := r.Resolve(host, poolName)
	if err != nil {
		return nil, err
	}
	return r.GetOrCreate(key)
}

// GetOrCreate returns the live pool for key, starting one if needed.
func (r *Registry) GetOrCreate(key Key) (*pool.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, apperrors.ErrRegistryClosed
	}

	if p, ok := r.pools[key]; ok {
		if !stopped(p) {
			return p, nil
		}
		log.WithField("key", key.String()).WithField("crashed", p.Crashed()).Warn("replacing stopped pool")
	}

	cfg := r.cfg
	cfg.Name = key.String()
	p := pool.New(cfg, r.adapter)
	r.pools[key] = p

	metrics.PoolsCreated.Inc()
	metrics.PoolsActive.Set(int64(len(r.pools)))
	log.WithField("key", key.String()).Debug("started pool")
	return p, nil
}

// Lookup returns the pool for key without creating one.
func (r *Registry) Lookup(key Key) (*pool.Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[key]
	if !ok || stopped(p) {
		return nil, false
	}
	return p, true
}

// Remove stops the pool for key and forgets it.
func (r *Registry) Remove(key Key) error {
	r.mu.Lock()
	p, ok := r.pools[key]
	delete(r.pools, key)
	metrics.PoolsActive.Set(int64(len(r.pools)))
	r.mu.Unlock()

	if !ok {
		return apperrors.ErrNotFound
	}
	if err := p.Close(); err != nil && !apperrors.IsClosed(err) {
		return err
	}
	return nil
}

// Pools returns the live pools ordered by name.
func (r *Registry) Pools() []*pool.Pool {
	r.mu.Lock()
	pools := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		if !stopped(p) {
			pools = append(pools, p)
		}
	}
	r.mu.Unlock()

	sort.Slice(pools, func(i, j int) bool {
		return pools[i].Name() < pools[j].Name()
	})
	return pools
}

// Stats snapshots every live pool and refreshes the pool gauges.
func (r *Registry) Stats(ctx context.Context) ([]pool.Stats, error) {
	pools := r.Pools()
	stats := make([]pool.Stats, 0, len(pools))
	for _, p := range pools {
		s, err := p.Stats(ctx)
		if apperrors.IsClosed(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	pool.UpdateMetrics(stats...)
	return stats, nil
}

// Close stops every pool. Further lookups fail with ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return apperrors.ErrRegistryClosed
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[Key]*pool.Pool)
	r.mu.Unlock()

	var errs []error
	for key, p := range pools {
		if err := p.Close(); err != nil && !apperrors.IsClosed(err) {
			errs = append(errs, err)
			log.WithField("key", key.String()).WithError(err).Warn("closing pool failed")
		}
	}
	metrics.PoolsActive.Set(0)
	log.WithField("pools", len(pools)).Debug("registry closed")
	return apperrors.Join(errs...)
}

func stopped(p *pool.Pool) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
