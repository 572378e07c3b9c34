// Package pool provides the connection pool actor behind hostpool.
//
// A Pool hosts any number of connection keys ({host, port, transport}). For
// each key it tracks idle connections, checked-out connections with an
// expiry deadline and a FIFO queue of waiting callers. A single goroutine
// processes every request, so the per-key state needs no locking.
//
// The pool never dials. A checkout answers either "reuse this connection"
// or "create a new one"; either way the caller checks the connection back
// in through the lease handle when done:
//
//	lease, err := p.Checkout(ctx, pool.ConnectionKey{Host: "example.com", Port: 443, Transport: "tcp"}, pool.CheckoutOptions{})
//	if err != nil {
//	    return err // ErrCheckoutTimeout under the reject policy
//	}
//	conn := lease.Conn
//	if !lease.Reused() {
//	    conn, err = net.Dial("tcp", lease.Handle.Key.Address())
//	    if err != nil {
//	        return err
//	    }
//	}
//	defer lease.Handle.Checkin(conn)
//
// # Capacity
//
// Checkouts queue once the number of checked-out connections for a key
// reaches Config.Limit. Before queuing, checkouts past their expiry are
// reaped. A queued caller is served by the next checkin or, slightly before
// its timeout, by the overflow policy: RejectWithTimeout fails the checkout,
// AllowOverflow lets the caller create a connection anyway.
//
// # Liveness
//
// Idle connections are watched by the Adapter. A connection whose peer
// closed it while idle fails the liveness probe and is replaced by a
// create-new answer.
//
// # Metrics
//
// Counters and gauges are registered with the metrics package:
//   - hostpool_connections_idle, hostpool_connections_checked_out, hostpool_checkout_waiters
//   - hostpool_checkout_total, hostpool_checkout_reuse_total, hostpool_checkout_create_total
//   - hostpool_checkout_queued_total, hostpool_overflow_allowed_total, hostpool_overflow_rejected_total
//   - hostpool_checkin_total, hostpool_reaped_total, hostpool_probe_failures_total
//   - hostpool_socket_down_total, hostpool_discarded_total, hostpool_checkout_duration_seconds
package pool
