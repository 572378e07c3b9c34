package pool

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockConn is a socket stand-in. The pool only ever passes it to the
// adapter, so the embedded net.Conn is never called.
type mockConn struct {
	net.Conn
	id int
}

var mockConnIDs int32

func newMockConn() *mockConn {
	return &mockConn{id: int(atomic.AddInt32(&mockConnIDs, 1))}
}

// mockAdapter records every call the pool makes.
type mockAdapter struct {
	mu         sync.Mutex
	closed     map[net.Conn]int
	receiving  map[net.Conn]bool
	keepalive  map[net.Conn]bool
	links      map[net.Conn]func(net.Conn, error)
	pending    map[net.Conn]bool
	peerErr    map[net.Conn]error
	panicOnRcv bool
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		closed:    make(map[net.Conn]int),
		receiving: make(map[net.Conn]bool),
		keepalive: make(map[net.Conn]bool),
		links:     make(map[net.Conn]func(net.Conn, error)),
		pending:   make(map[net.Conn]bool),
		peerErr:   make(map[net.Conn]error),
	}
}

func (a *mockAdapter) Close(conn net.Conn) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed[conn]++
	delete(a.links, conn)
	delete(a.receiving, conn)
	return nil
}

func (a *mockAdapter) SetReceiving(conn net.Conn, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.panicOnRcv {
		panic("mock adapter failure")
	}
	a.receiving[conn] = on
	return nil
}

func (a *mockAdapter) SetKeepalive(conn net.Conn, on bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keepalive[conn] = on
	return nil
}

func (a *mockAdapter) PeerAddress(conn net.Conn) (net.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.peerErr[conn]; err != nil {
		return nil, err
	}
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 80}, nil
}

func (a *mockAdapter) HasPendingCloseOrError(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending[conn]
}

func (a *mockAdapter) Link(conn net.Conn, onDown func(net.Conn, error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.links[conn] = onDown
}

func (a *mockAdapter) Unlink(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.links, conn)
}

// peerClose simulates the remote end closing an idle socket. The event is
// recorded as pending and, if notify is set, delivered through the link.
func (a *mockAdapter) peerClose(conn net.Conn, notify bool) {
	a.mu.Lock()
	a.pending[conn] = true
	onDown := a.links[conn]
	a.mu.Unlock()
	if notify && onDown != nil {
		onDown(conn, errors.New("peer closed"))
	}
}

func (a *mockAdapter) setPeerErr(conn net.Conn, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peerErr[conn] = err
}

func (a *mockAdapter) setPanicOnReceiving(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panicOnRcv = v
}

func (a *mockAdapter) closeCount(conn net.Conn) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed[conn]
}

func (a *mockAdapter) isReceiving(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.receiving[conn]
}

func (a *mockAdapter) isLinked(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.links[conn]
	return ok
}

func (a *mockAdapter) hasKeepalive(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keepalive[conn]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}
