//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package sockets

import "net"

func waitReadable(conn net.Conn) error {
	return waitReadableFallback(conn)
}

// peek cannot look at the socket buffer here; the watcher reports
// problems instead.
func peek(conn net.Conn) error {
	return nil
}

func peerConnected(conn net.Conn) error {
	return nil
}
