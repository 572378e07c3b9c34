package client

import "github.com/go-i2p/hostpool/lib/metrics"

var (
	// DialsReusedTotal counts dials answered with a pooled connection.
	DialsReusedTotal = metrics.NewCounter(
		"hostpool_client_dials_reused_total",
		"Total number of dials served from the pool",
	)
	// DialsNewTotal counts dials that opened a new connection.
	DialsNewTotal = metrics.NewCounter(
		"hostpool_client_dials_new_total",
		"Total number of dials that opened a new connection",
	)
	// DialErrorsTotal counts failed dials, including checkout failures.
	DialErrorsTotal = metrics.NewCounter(
		"hostpool_client_dial_errors_total",
		"Total number of failed dials",
	)
)

var (
	// BreakerTripsTotal counts dial breakers opening.
	BreakerTripsTotal = metrics.NewCounter(
		"hostpool_client_breaker_trips_total",
		"Total number of times a dial breaker opened",
	)
	// BreakerRejectionsTotal counts dials refused by an open breaker.
	BreakerRejectionsTotal = metrics.NewCounter(
		"hostpool_client_breaker_rejections_total",
		"Total number of dials refused by an open breaker",
	)
)

// DialsThrottledTotal counts dials refused by the per-endpoint rate limit.
var DialsThrottledTotal = metrics.NewCounter(
	"hostpool_client_dials_throttled_total",
	"Total number of dials refused by the dial rate limit",
)
