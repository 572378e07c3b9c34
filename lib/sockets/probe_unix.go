//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sockets

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
)

func rawConn(conn net.Conn) (syscall.RawConn, bool) {
	var sc syscall.Conn
	switch c := unwrap(conn).(type) {
	case *net.TCPConn:
		sc = c
	case *net.UnixConn:
		sc = c
	default:
		return nil, false
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}
	return rc, true
}

// peekFD looks at the next byte without removing it. It reports false
// when nothing is readable yet.
func peekFD(fd uintptr) (bool, error) {
	var buf [1]byte
	for {
		n, _, err := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return false, nil
		case err != nil:
			return true, fmt.Errorf("%w: %w", apperrors.ErrConnection, err)
		case n == 0:
			return true, apperrors.ErrPeerClosed
		default:
			return true, apperrors.ErrUnsolicitedData
		}
	}
}

// waitReadable blocks until conn is readable, closed or past its read
// deadline. Bytes already queued stay in the socket buffer.
func waitReadable(conn net.Conn) error {
	rc, ok := rawConn(conn)
	if !ok {
		return waitReadableFallback(conn)
	}
	var result error
	err := rc.Read(func(fd uintptr) bool {
		done, err := peekFD(fd)
		result = err
		return done
	})
	if err != nil {
		return readError(0, err)
	}
	return result
}

// peek checks conn without blocking.
func peek(conn net.Conn) error {
	rc, ok := rawConn(conn)
	if !ok {
		return nil
	}
	var result error
	if err := rc.Control(func(fd uintptr) {
		_, result = peekFD(fd)
	}); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, err)
	}
	return result
}

func peerConnected(conn net.Conn) error {
	rc, ok := rawConn(conn)
	if !ok {
		return nil
	}
	var perr error
	if err := rc.Control(func(fd uintptr) {
		_, perr = unix.Getpeername(int(fd))
	}); err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, err)
	}
	if perr != nil {
		return fmt.Errorf("%w: getpeername: %w", apperrors.ErrConnection, perr)
	}
	return nil
}
