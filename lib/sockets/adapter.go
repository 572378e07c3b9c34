// Package sockets drives real stream sockets for the connection pool.
// While a socket sits idle in a pool a watcher goroutine waits for it to
// become readable without consuming any bytes; a peer close, unsolicited
// data or a socket error is recorded and reported through the link
// callback.
package sockets

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
)

// Options tune the adapter.
type Options struct {
	// KeepAlivePeriod is applied when keepalive is switched on.
	// Zero keeps the operating system default.
	KeepAlivePeriod time.Duration
}

// Adapter implements pool.Adapter for connections from the net package.
// TCP and Unix sockets are watched with a non-consuming peek; any other
// net.Conn falls back to a one byte read, which treats any data as fatal.
type Adapter struct {
	opts Options

	mu     sync.Mutex
	states map[net.Conn]*socketState
}

type socketState struct {
	watching bool
	done     chan struct{}
	pending  error
	onDown   func(net.Conn, error)
}

// New creates an adapter.
func New(opts Options) *Adapter {
	return &Adapter{
		opts:   opts,
		states: make(map[net.Conn]*socketState),
	}
}

func (a *Adapter) state(conn net.Conn) *socketState {
	st, ok := a.states[conn]
	if !ok {
		st = &socketState{}
		a.states[conn] = st
	}
	return st
}

// Close forgets conn and closes it. A watcher still running for conn exits
// without reporting anything.
func (a *Adapter) Close(conn net.Conn) error {
	a.mu.Lock()
	st, ok := a.states[conn]
	delete(a.states, conn)
	a.mu.Unlock()

	if ok && st.watching {
		SocketsWatched.Dec()
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing %s: %w", remote(conn), err)
	}
	return nil
}

// SetReceiving starts or stops watching conn. Turning it off returns only
// after the watcher has exited, so the caller is the sole reader afterwards.
func (a *Adapter) SetReceiving(conn net.Conn, on bool) error {
	if on {
		a.mu.Lock()
		defer a.mu.Unlock()
		st := a.state(conn)
		if st.watching || st.pending != nil {
			return nil
		}
		st.watching = true
		st.done = make(chan struct{})
		SocketsWatched.Inc()
		go a.watch(conn, st)
		return nil
	}

	a.mu.Lock()
	st, ok := a.states[conn]
	if !ok || !st.watching {
		a.mu.Unlock()
		return nil
	}
	st.watching = false
	done := st.done
	a.mu.Unlock()
	SocketsWatched.Dec()

	// A deadline in the past wakes the watcher.
	if err := conn.SetReadDeadline(time.Unix(1, 0)); err != nil {
		return fmt.Errorf("%w: interrupting watcher: %w", apperrors.ErrConnection, err)
	}
	<-done
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: clearing read deadline: %w", apperrors.ErrConnection, err)
	}
	return nil
}

func (a *Adapter) watch(conn net.Conn, st *socketState) {
	err := waitReadable(conn)
	quiet := errors.Is(err, os.ErrDeadlineExceeded)

	a.mu.Lock()
	current := a.states[conn] == st
	if current && !quiet {
		st.pending = err
	}
	onDown := st.onDown
	a.mu.Unlock()
	close(st.done)

	if quiet || !current {
		return
	}
	if errors.Is(err, apperrors.ErrUnsolicitedData) {
		UnsolicitedDataTotal.Inc()
	}
	log.WithField("remote", remote(conn)).WithError(err).Debug("idle socket went down")
	if onDown != nil {
		onDown(conn, err)
	}
}

// SetKeepalive toggles TCP keepalive. Connections without keepalive
// support are left alone.
func (a *Adapter) SetKeepalive(conn net.Conn, on bool) error {
	ka, ok := unwrap(conn).(interface {
		SetKeepAlive(bool) error
		SetKeepAlivePeriod(time.Duration) error
	})
	if !ok {
		return nil
	}
	if err := ka.SetKeepAlive(on); err != nil {
		return fmt.Errorf("%w: set keepalive: %w", apperrors.ErrConnection, err)
	}
	if on && a.opts.KeepAlivePeriod > 0 {
		if err := ka.SetKeepAlivePeriod(a.opts.KeepAlivePeriod); err != nil {
			return fmt.Errorf("%w: set keepalive period: %w", apperrors.ErrConnection, err)
		}
	}
	return nil
}

// PeerAddress asks the kernel for the peer of conn. It fails once the
// socket is no longer connected.
func (a *Adapter) PeerAddress(conn net.Conn) (net.Addr, error) {
	if err := peerConnected(conn); err != nil {
		return nil, err
	}
	addr := conn.RemoteAddr()
	if addr == nil {
		return nil, fmt.Errorf("%w: no peer address", apperrors.ErrConnection)
	}
	return addr, nil
}

// HasPendingCloseOrError reports a close or error recorded by the watcher.
// For unwatched sockets it peeks without blocking.
func (a *Adapter) HasPendingCloseOrError(conn net.Conn) bool {
	a.mu.Lock()
	st, ok := a.states[conn]
	if ok && st.pending != nil {
		a.mu.Unlock()
		return true
	}
	watching := ok && st.watching
	a.mu.Unlock()
	if watching {
		return false
	}

	if err := peek(conn); err != nil {
		a.mu.Lock()
		if st, ok := a.states[conn]; ok {
			st.pending = err
		}
		a.mu.Unlock()
		return true
	}
	return false
}

// Link registers onDown for conn. If a close or error is already pending
// the callback runs right away on its own goroutine.
func (a *Adapter) Link(conn net.Conn, onDown func(net.Conn, error)) {
	a.mu.Lock()
	st := a.state(conn)
	st.onDown = onDown
	pending := st.pending
	a.mu.Unlock()

	if pending != nil && onDown != nil {
		go onDown(conn, pending)
	}
}

// Unlink drops the callback for conn. State of unwatched sockets is
// forgotten entirely.
func (a *Adapter) Unlink(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[conn]
	if !ok {
		return
	}
	st.onDown = nil
	if !st.watching {
		delete(a.states, conn)
	}
}

// Tracked returns the number of sockets the adapter holds state for.
func (a *Adapter) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.states)
}

// unwrap strips wrappers such as *tls.Conn that expose their transport.
func unwrap(conn net.Conn) net.Conn {
	for {
		nc, ok := conn.(interface{ NetConn() net.Conn })
		if !ok {
			return conn
		}
		inner := nc.NetConn()
		if inner == nil || inner == conn {
			return conn
		}
		conn = inner
	}
}

// readError classifies the result of a blocking one byte read.
func readError(n int, err error) error {
	switch {
	case n > 0:
		return apperrors.ErrUnsolicitedData
	case errors.Is(err, io.EOF):
		return apperrors.ErrPeerClosed
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, net.ErrClosed):
		return err
	case err != nil:
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, err)
	default:
		return apperrors.ErrPeerClosed
	}
}

func remote(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// waitReadableFallback consumes up to one byte. Receiving anything on an
// idle connection makes it unusable anyway.
func waitReadableFallback(conn net.Conn) error {
	var buf [1]byte
	n, err := conn.Read(buf[:])
	return readError(n, err)
}
