package pool

import "github.com/go-i2p/hostpool/lib/metrics"

// Pool metrics, aggregated over every pool in the process.
var (
	// PoolConnectionsIdle is the number of idle pooled connections.
	PoolConnectionsIdle = metrics.NewGauge(
		"hostpool_connections_idle",
		"Current number of idle connections across all pools",
	)
	// PoolConnectionsCheckedOut is the number of tracked checked-out connections.
	PoolConnectionsCheckedOut = metrics.NewGauge(
		"hostpool_connections_checked_out",
		"Current number of checked-out connections across all pools",
	)
	// PoolWaiters is the number of queued checkouts.
	PoolWaiters = metrics.NewGauge(
		"hostpool_checkout_waiters",
		"Current number of checkouts waiting for a connection",
	)
	// PoolIdle, PoolCheckedOut and PoolWaiting break the totals down by pool.
	PoolIdle = metrics.NewGaugeVec(
		"hostpool_pool_connections_idle",
		"Current number of idle connections per pool",
		"pool",
	)
	PoolCheckedOut = metrics.NewGaugeVec(
		"hostpool_pool_connections_checked_out",
		"Current number of checked-out connections per pool",
		"pool",
	)
	PoolWaiting = metrics.NewGaugeVec(
		"hostpool_pool_checkout_waiters",
		"Current number of checkouts waiting per pool",
		"pool",
	)
	// CheckoutTotal is the total number of checkout attempts.
	CheckoutTotal = metrics.NewCounter(
		"hostpool_checkout_total",
		"Total number of checkout attempts",
	)
	// CheckoutReuseTotal counts checkouts served from the idle set.
	CheckoutReuseTotal = metrics.NewCounter(
		"hostpool_checkout_reuse_total",
		"Total number of checkouts answered with an idle connection",
	)
	// CheckoutCreateTotal counts checkouts answered with "create new".
	CheckoutCreateTotal = metrics.NewCounter(
		"hostpool_checkout_create_total",
		"Total number of checkouts answered with create-new",
	)
	// CheckoutQueuedTotal counts checkouts that had to wait.
	CheckoutQueuedTotal = metrics.NewCounter(
		"hostpool_checkout_queued_total",
		"Total number of checkouts queued behind a saturated key",
	)
	// OverflowAllowedTotal counts create-new answers granted past the limit.
	OverflowAllowedTotal = metrics.NewCounter(
		"hostpool_overflow_allowed_total",
		"Total number of checkouts allowed to overflow the limit",
	)
	// OverflowRejectedTotal counts checkouts failed with a timeout.
	OverflowRejectedTotal = metrics.NewCounter(
		"hostpool_overflow_rejected_total",
		"Total number of checkouts rejected with a timeout",
	)
	// CheckinTotal is the total number of checkins.
	CheckinTotal = metrics.NewCounter(
		"hostpool_checkin_total",
		"Total number of checkins",
	)
	// ReapedTotal counts expired checkouts reclaimed by the reaper.
	ReapedTotal = metrics.NewCounter(
		"hostpool_reaped_total",
		"Total number of expired checkouts closed by the reaper",
	)
	// ProbeFailuresTotal counts idle connections that failed the liveness probe.
	ProbeFailuresTotal = metrics.NewCounter(
		"hostpool_probe_failures_total",
		"Total number of idle connections that failed the liveness probe",
	)
	// SocketDownTotal counts death notifications for linked sockets.
	SocketDownTotal = metrics.NewCounter(
		"hostpool_socket_down_total",
		"Total number of linked sockets reported dead by the transport",
	)
	// DiscardedTotal counts connections closed by pools.
	DiscardedTotal = metrics.NewCounter(
		"hostpool_discarded_total",
		"Total number of connections closed by the pool",
	)
	// CheckoutLatency tracks time spent in Checkout.
	CheckoutLatency = metrics.NewHistogram(
		"hostpool_checkout_duration_seconds",
		"Time spent checking out a connection",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics sets the connection gauges from a snapshot of every live
// pool. Pools missing from stats drop out of the per-pool series.
func UpdateMetrics(stats ...Stats) {
	var idle, checkedOut, waiting int
	perIdle := make(map[string]int64, len(stats))
	perCheckedOut := make(map[string]int64, len(stats))
	perWaiting := make(map[string]int64, len(stats))
	for _, s := range stats {
		i, c, w := s.Totals()
		idle += i
		checkedOut += c
		waiting += w
		perIdle[s.Name] += int64(i)
		perCheckedOut[s.Name] += int64(c)
		perWaiting[s.Name] += int64(w)
	}
	PoolConnectionsIdle.Set(int64(idle))
	PoolConnectionsCheckedOut.Set(int64(checkedOut))
	PoolWaiters.Set(int64(waiting))
	PoolIdle.Replace(perIdle)
	PoolCheckedOut.Replace(perCheckedOut)
	PoolWaiting.Replace(perWaiting)
}
