package client

import (
	"errors"
	"net"
	"sync"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
)

// Conn is a connection leased from a pool. Close returns it to the pool
// unless an I/O error left it unusable.
type Conn struct {
	net.Conn

	handle pool.Handle
	reused bool

	mu       sync.Mutex
	err      error
	released bool
}

func newConn(conn net.Conn, h pool.Handle, reused bool) *Conn {
	return &Conn{Conn: conn, handle: h, reused: reused}
}

// Reused reports whether the connection came from the idle set.
func (c *Conn) Reused() bool {
	return c.reused
}

// Err returns the first I/O error seen on the connection.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.setErr(err)
	return n, err
}

func (c *Conn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.setErr(err)
	return n, err
}

// release marks the lease as finished. It reports false if it already was.
func (c *Conn) release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return false
	}
	c.released = true
	return true
}

// Close checks the connection back in, or discards it after an I/O error.
func (c *Conn) Close() error {
	if !c.release() {
		return apperrors.ErrClosed
	}
	if err := c.Err(); err != nil {
		log.WithError(err).Debug("discarding connection after I/O error")
		return c.handle.Discard(c.Conn)
	}
	if err := c.Conn.SetDeadline(time.Time{}); err != nil {
		return errors.Join(err, c.handle.Discard(c.Conn))
	}
	return c.handle.Checkin(c.Conn)
}

// Discard closes the connection without returning it to the pool.
func (c *Conn) Discard() error {
	if !c.release() {
		return apperrors.ErrClosed
	}
	return c.handle.Discard(c.Conn)
}
