package pool

import (
	"fmt"
	"net"
	"sort"
	"sync/atomic"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
)

type result struct {
	lease Lease
	err   error
}

type checkoutReq struct {
	key   ConnectionKey
	opts  CheckoutOptions
	reply chan result
}

type checkinReq struct {
	handle Handle
	conn   net.Conn
	ack    chan struct{}
}

type discardReq struct {
	handle Handle
	conn   net.Conn
	ack    chan struct{}
}

// socketDown is posted by the adapter when a linked socket dies.
type socketDown struct {
	conn net.Conn
	err  error
}

type statsReq struct {
	reply chan Stats
}

// inspectReq runs fn on the actor goroutine.
type inspectReq struct {
	fn   func(hosts map[ConnectionKey]*hostEntry)
	done chan struct{}
}

type counters struct {
	reused        atomic.Uint64
	created       atomic.Uint64
	overflowed    atomic.Uint64
	rejected      atomic.Uint64
	reaped        atomic.Uint64
	probeFailures atomic.Uint64
	discarded     atomic.Uint64
}

type idleConn struct {
	conn  net.Conn
	since time.Time
}

type waiter struct {
	key    ConnectionKey
	expiry time.Duration
	reply  chan result
	timer  *time.Timer
	fired  atomic.Bool
}

// hostEntry is the bookkeeping for one connection key.
type hostEntry struct {
	idle       []idleConn
	checkedOut map[net.Conn]time.Time
	waiting    []*waiter
}

func newHostEntry() *hostEntry {
	return &hostEntry{checkedOut: make(map[net.Conn]time.Time)}
}

func (h *hostEntry) pushIdle(conn net.Conn, now time.Time) {
	h.idle = append(h.idle, idleConn{conn: conn, since: now})
}

// popIdle takes the most recently returned connection.
func (h *hostEntry) popIdle() (net.Conn, bool) {
	if len(h.idle) == 0 {
		return nil, false
	}
	ic := h.idle[len(h.idle)-1]
	h.idle[len(h.idle)-1] = idleConn{}
	h.idle = h.idle[:len(h.idle)-1]
	return ic.conn, true
}

func (h *hostEntry) removeIdle(conn net.Conn) bool {
	for i, ic := range h.idle {
		if ic.conn == conn {
			h.idle = append(h.idle[:i], h.idle[i+1:]...)
			return true
		}
	}
	return false
}

func (h *hostEntry) empty() bool {
	return len(h.idle) == 0 && len(h.checkedOut) == 0 && len(h.waiting) == 0
}

func (p *Pool) run() {
	defer p.shutdown()
	defer func() {
		if r := recover(); r != nil {
			p.crashed.Store(true)
			log.WithField("pool", p.cfg.Name).WithField("panic", fmt.Sprint(r)).Error("pool actor crashed")
		}
	}()

	sweep := time.NewTicker(p.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case msg := <-p.inbox:
			p.dispatch(msg)
		case now := <-sweep.C:
			p.sweep(now)
		case <-p.stop:
			return
		}
	}
}

func (p *Pool) dispatch(msg any) {
	switch m := msg.(type) {
	case *checkoutReq:
		p.handleCheckout(m)
	case *checkinReq:
		close(m.ack)
		p.handleCheckin(m.handle, m.conn)
	case *discardReq:
		close(m.ack)
		p.handleDiscard(m.handle, m.conn)
	case socketDown:
		p.handleSocketDown(m)
	case *statsReq:
		m.reply <- p.snapshot()
	case *inspectReq:
		m.fn(p.hosts)
		close(m.done)
	default:
		log.WithField("pool", p.cfg.Name).WithField("type", fmt.Sprintf("%T", msg)).Warn("unexpected pool message")
	}
}

func (p *Pool) entry(key ConnectionKey) *hostEntry {
	h, ok := p.hosts[key]
	if !ok {
		h = newHostEntry()
		p.hosts[key] = h
	}
	return h
}

func (p *Pool) lease(key ConnectionKey, outcome Outcome, conn net.Conn) Lease {
	prov := ProvenanceNew
	if outcome == OutcomeReuse {
		prov = ProvenanceReturned
	}
	return Lease{
		Outcome: outcome,
		Conn:    conn,
		Handle: Handle{
			PoolKey:    p.cfg.Name,
			Key:        key,
			Provenance: prov,
			pool:       p,
		},
	}
}

func (p *Pool) reuse(key ConnectionKey, conn net.Conn) result {
	p.counters.reused.Add(1)
	CheckoutReuseTotal.Inc()
	return result{lease: p.lease(key, OutcomeReuse, conn)}
}

func (p *Pool) createNew(key ConnectionKey) result {
	p.counters.created.Add(1)
	CheckoutCreateTotal.Inc()
	return result{lease: p.lease(key, OutcomeCreateNew, nil)}
}

// overflowReply fixes the saturated-pool outcome for the lifetime of the pool.
// The returned function may run on timer goroutines, so it only touches
// atomics.
func (p *Pool) overflowReply(policy OverflowPolicy) func(ConnectionKey) result {
	if policy == AllowOverflow {
		return func(key ConnectionKey) result {
			p.counters.overflowed.Add(1)
			OverflowAllowedTotal.Inc()
			r := p.createNew(key)
			r.lease.Overflow = true
			return r
		}
	}
	return func(key ConnectionKey) result {
		p.counters.rejected.Add(1)
		OverflowRejectedTotal.Inc()
		return result{err: apperrors.ErrCheckoutTimeout}
	}
}

func (p *Pool) handleCheckout(req *checkoutReq) {
	now := time.Now()
	h := p.entry(req.key)

	if conn, ok := h.popIdle(); ok {
		if p.alive(conn) {
			h.checkedOut[conn] = now.Add(req.opts.Expiry)
			req.reply <- p.reuse(req.key, conn)
			return
		}
		p.counters.probeFailures.Add(1)
		ProbeFailuresTotal.Inc()
		p.discard(conn, "liveness probe failed")
		req.reply <- p.createNew(req.key)
		return
	}

	if len(h.checkedOut) >= p.cfg.Limit {
		p.enqueue(h, req, now)
		return
	}

	req.reply <- p.createNew(req.key)
}

// enqueue handles a checkout against a saturated key: reclaim expired
// checkouts first, otherwise park the caller until a connection comes back
// or the deferred overflow reply fires.
func (p *Pool) enqueue(h *hostEntry, req *checkoutReq, now time.Time) {
	if p.reap(h, now) {
		req.reply <- p.createNew(req.key)
		return
	}

	if req.opts.Timeout <= p.cfg.SafetyMargin {
		req.reply <- p.overflow(req.key)
		return
	}

	w := &waiter{key: req.key, expiry: req.opts.Expiry, reply: req.reply}
	w.timer = time.AfterFunc(req.opts.Timeout-p.cfg.SafetyMargin, func() {
		w.fired.Store(true)
		w.reply <- p.overflow(w.key)
	})
	h.waiting = append(h.waiting, w)
	CheckoutQueuedTotal.Inc()
	log.WithField("key", req.key.String()).WithField("waiting", len(h.waiting)).Debug("checkout queued")
}

// reap closes every checkout past its expiry and reports whether any
// capacity was reclaimed.
func (p *Pool) reap(h *hostEntry, now time.Time) bool {
	reaped := 0
	for conn, expiry := range h.checkedOut {
		if expiry.After(now) {
			continue
		}
		delete(h.checkedOut, conn)
		p.discard(conn, "checkout expired")
		p.reclaimed[conn] = now
		reaped++
	}
	if reaped > 0 {
		p.counters.reaped.Add(uint64(reaped))
		ReapedTotal.Add(uint64(reaped))
		log.WithField("reaped", reaped).Debug("reclaimed expired checkouts")
	}
	return reaped > 0
}

// alive is the liveness probe run before an idle connection is reused. It
// also takes the socket out of receiving mode so the caller becomes its
// only reader.
func (p *Pool) alive(conn net.Conn) bool {
	if err := p.adapter.SetReceiving(conn, false); err != nil {
		log.WithError(err).Debug("probe: leaving receiving mode failed")
		return false
	}
	if _, err := p.adapter.PeerAddress(conn); err != nil {
		log.WithError(err).Debug("probe: peer address unavailable")
		return false
	}
	return !p.adapter.HasPendingCloseOrError(conn)
}

// claim makes the pool the owner of a checked-in connection again. New
// connections are always linked so the pool hears about their death; the
// link stays until the pool discards the socket, so returned connections
// only need to go back to receiving mode.
func (p *Pool) claim(h Handle, conn net.Conn) {
	if h.Provenance == ProvenanceNew {
		if err := p.adapter.SetKeepalive(conn, true); err != nil {
			log.WithError(err).Debug("enabling keepalive failed")
		}
		p.adapter.Link(conn, p.onSocketDown)
	}
	if err := p.adapter.SetReceiving(conn, true); err != nil {
		log.WithError(err).Debug("entering receiving mode failed")
	}
}

// onSocketDown runs on adapter goroutines and forwards the event into the
// actor inbox.
func (p *Pool) onSocketDown(conn net.Conn, err error) {
	select {
	case p.inbox <- socketDown{conn: conn, err: err}:
	case <-p.done:
	}
}

func (p *Pool) handleCheckin(hd Handle, conn net.Conn) {
	now := time.Now()
	if _, ok := p.reclaimed[conn]; ok {
		delete(p.reclaimed, conn)
		log.WithField("key", hd.Key.String()).Debug("dropping late checkin of a reclaimed connection")
		if err := p.adapter.Close(conn); err != nil {
			log.WithError(err).Debug("closing reclaimed connection")
		}
		return
	}
	p.claim(hd, conn)
	h := p.entry(hd.Key)

	if hd.Provenance == ProvenanceReturned {
		if _, ok := h.checkedOut[conn]; ok {
			delete(h.checkedOut, conn)
			h.pushIdle(conn, now)
			p.drain(h, now)
			return
		}
	}

	p.admit(h, conn, now)
	p.drain(h, now)
}

// admit files a connection the pool has not seen checked out.
func (p *Pool) admit(h *hostEntry, conn net.Conn, now time.Time) {
	switch {
	case len(h.idle) >= p.cfg.Limit:
		p.discard(conn, "idle set full")
	case len(h.checkedOut) > 0 && len(h.idle)+len(h.checkedOut) >= p.cfg.Limit:
		if p.reap(h, now) {
			h.pushIdle(conn, now)
		} else {
			p.discard(conn, "pool at capacity")
		}
	default:
		h.pushIdle(conn, now)
	}
}

// drain serves the oldest waiter whose overflow timer can still be
// cancelled. Waiters whose timers already fired were answered by the
// overflow path and are dropped. At most one waiter is served per call.
func (p *Pool) drain(h *hostEntry, now time.Time) {
	if len(h.waiting) == 0 || len(h.idle) == 0 {
		return
	}

	served := -1
	for i, w := range h.waiting {
		if w.timer.Stop() {
			served = i
			break
		}
	}

	var w *waiter
	remaining := make([]*waiter, 0, len(h.waiting))
	if served >= 0 {
		w = h.waiting[served]
		remaining = append(remaining, h.waiting[served+1:]...)
	}
	h.waiting = remaining

	if w == nil {
		return
	}

	conn, _ := h.popIdle()
	if !p.alive(conn) {
		p.counters.probeFailures.Add(1)
		ProbeFailuresTotal.Inc()
		p.discard(conn, "liveness probe failed")
		w.reply <- p.createNew(w.key)
		return
	}
	h.checkedOut[conn] = now.Add(w.expiry)
	w.reply <- p.reuse(w.key, conn)
	log.WithField("key", w.key.String()).Debug("queued checkout served")
}

// handleDiscard drops a connection the caller found broken, releasing
// its checkout slot right away.
func (p *Pool) handleDiscard(hd Handle, conn net.Conn) {
	if _, ok := p.reclaimed[conn]; ok {
		delete(p.reclaimed, conn)
		_ = p.adapter.Close(conn)
		return
	}
	if h, ok := p.hosts[hd.Key]; ok {
		delete(h.checkedOut, conn)
	}
	p.discard(conn, "discarded by caller")
}

func (p *Pool) handleSocketDown(ev socketDown) {
	SocketDownTotal.Inc()
	for key, h := range p.hosts {
		if h.removeIdle(ev.conn) {
			log.WithField("key", key.String()).WithError(ev.err).Debug("idle connection died")
			p.discard(ev.conn, "socket down")
			return
		}
		if _, ok := h.checkedOut[ev.conn]; ok {
			log.WithField("key", key.String()).WithError(ev.err).Debug("checked-out connection died")
			delete(h.checkedOut, ev.conn)
			p.discard(ev.conn, "socket down")
			p.reclaimed[ev.conn] = time.Now()
			return
		}
	}
}

// sweep expires long-idle connections, forgets waiters answered by their
// timers and drops empty entries. Reclaimed sockets are remembered for one
// checkout expiry.
func (p *Pool) sweep(now time.Time) {
	for conn, at := range p.reclaimed {
		if now.Sub(at) > p.cfg.CheckoutExpiry {
			delete(p.reclaimed, conn)
		}
	}

	for key, h := range p.hosts {
		if p.cfg.MaxIdleTime > 0 {
			kept := h.idle[:0]
			for _, ic := range h.idle {
				if now.Sub(ic.since) > p.cfg.MaxIdleTime {
					p.discard(ic.conn, "idle timeout")
					continue
				}
				kept = append(kept, ic)
			}
			clear(h.idle[len(kept):])
			h.idle = kept
		}

		waiting := h.waiting[:0]
		for _, w := range h.waiting {
			if !w.fired.Load() {
				waiting = append(waiting, w)
			}
		}
		clear(h.waiting[len(waiting):])
		h.waiting = waiting

		if h.empty() {
			delete(p.hosts, key)
		}
	}
}

// discard closes a connection the pool is giving up on.
func (p *Pool) discard(conn net.Conn, reason string) {
	p.counters.discarded.Add(1)
	DiscardedTotal.Inc()
	p.adapter.Unlink(conn)
	if err := p.adapter.Close(conn); err != nil {
		log.WithError(err).WithField("reason", reason).Debug("closing discarded connection")
		return
	}
	log.WithField("reason", reason).Debug("connection discarded")
}

func (p *Pool) snapshot() Stats {
	s := Stats{
		Name:          p.cfg.Name,
		Limit:         p.cfg.Limit,
		Keys:          make([]KeyStats, 0, len(p.hosts)),
		Reused:        p.counters.reused.Load(),
		Created:       p.counters.created.Load(),
		Overflowed:    p.counters.overflowed.Load(),
		Rejected:      p.counters.rejected.Load(),
		Reaped:        p.counters.reaped.Load(),
		ProbeFailures: p.counters.probeFailures.Load(),
		Discarded:     p.counters.discarded.Load(),
	}
	for key, h := range p.hosts {
		waiting := 0
		for _, w := range h.waiting {
			if !w.fired.Load() {
				waiting++
			}
		}
		s.Keys = append(s.Keys, KeyStats{
			Key:        key,
			Idle:       len(h.idle),
			CheckedOut: len(h.checkedOut),
			Waiting:    waiting,
		})
	}
	sort.Slice(s.Keys, func(i, j int) bool {
		return s.Keys[i].Key.String() < s.Keys[j].Key.String()
	})
	return s
}

// shutdown runs on the actor goroutine when it exits for any reason.
func (p *Pool) shutdown() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("pool", p.cfg.Name).WithField("panic", fmt.Sprint(r)).Error("pool shutdown failed")
		}
	}()

	for _, h := range p.hosts {
		for _, w := range h.waiting {
			if w.timer.Stop() {
				w.reply <- result{err: apperrors.ErrPoolClosed}
			}
		}
		for _, ic := range h.idle {
			p.discard(ic.conn, "pool closed")
		}
		for conn := range h.checkedOut {
			p.adapter.Unlink(conn)
		}
	}
	p.hosts = nil
	p.reclaimed = nil

	for {
		select {
		case msg := <-p.inbox:
			p.refuse(msg)
		default:
			return
		}
	}
}

// refuse answers a message that arrived after the actor stopped serving.
func (p *Pool) refuse(msg any) {
	switch m := msg.(type) {
	case *checkoutReq:
		m.reply <- result{err: apperrors.ErrPoolClosed}
	case *checkinReq:
		close(m.ack)
		p.closeOrphan(m.conn)
	case *discardReq:
		close(m.ack)
		p.closeOrphan(m.conn)
	case *statsReq:
		m.reply <- Stats{Name: p.cfg.Name, Limit: p.cfg.Limit}
	case *inspectReq:
		close(m.done)
	}
}
