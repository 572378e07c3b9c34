package sockets

import "github.com/go-i2p/hostpool/lib/metrics"

var (
	// SocketsWatched is the number of idle sockets with a running watcher.
	SocketsWatched = metrics.NewGauge(
		"hostpool_sockets_watched",
		"Current number of idle sockets being watched",
	)
	// UnsolicitedDataTotal counts idle sockets that received data.
	UnsolicitedDataTotal = metrics.NewCounter(
		"hostpool_sockets_unsolicited_data_total",
		"Total number of idle sockets that received unsolicited data",
	)
)
