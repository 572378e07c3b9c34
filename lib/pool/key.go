package pool

import (
	"fmt"
	"net"
	"strconv"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/validation"
)

// ConnectionKey identifies a class of interchangeable connections tracked
// inside one pool. Several keys may share a pool when the registry policy is
// coarser than per-host.
type ConnectionKey struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Transport string `json:"transport"`
}

// Address returns the dialable host:port form of the key.
func (k ConnectionKey) Address() string {
	return net.JoinHostPort(k.Host, strconv.Itoa(k.Port))
}

func (k ConnectionKey) String() string {
	return k.Transport + "://" + k.Address()
}

// Validate checks that the key names a usable endpoint.
func (k ConnectionKey) Validate() error {
	var errs validation.Errors
	errs.Add(validation.Host("host", k.Host))
	errs.Add(validation.Port("port", k.Port))
	errs.Add(validation.Required("transport", k.Transport))
	if errs.HasErrors() {
		return fmt.Errorf("connection key %s: %w: %w", k, apperrors.ErrInvalidInput, errs)
	}
	return nil
}

// Provenance records whether a checked-out connection was freshly created by
// the caller or handed out from the idle set.
type Provenance int

const (
	// ProvenanceNew marks a connection the caller dialed itself.
	ProvenanceNew Provenance = iota
	// ProvenanceReturned marks a connection reused from the pool.
	ProvenanceReturned
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceNew:
		return "new"
	case ProvenanceReturned:
		return "returned"
	default:
		return "unknown"
	}
}

// Outcome is the pool's answer to a checkout.
type Outcome int

const (
	// OutcomeCreateNew tells the caller to establish a connection itself and
	// check it in afterwards.
	OutcomeCreateNew Outcome = iota
	// OutcomeReuse hands the caller an idle pooled connection.
	OutcomeReuse
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreateNew:
		return "create_new"
	case OutcomeReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// Handle is the token a caller presents at checkin. It carries everything
// the pool needs to file the returned connection and must not be modified.
type Handle struct {
	PoolKey    string
	Key        ConnectionKey
	Provenance Provenance

	pool *Pool
}

// Pool returns the pool that issued the handle.
func (h Handle) Pool() *Pool {
	return h.pool
}

// Checkin returns conn to the pool that issued the handle.
func (h Handle) Checkin(conn net.Conn) error {
	if h.pool == nil {
		return apperrors.ErrInvalidHandle
	}
	return h.pool.Checkin(h, conn)
}

// Discard closes conn and releases its checkout in the issuing pool.
func (h Handle) Discard(conn net.Conn) error {
	if h.pool == nil {
		return apperrors.ErrInvalidHandle
	}
	return h.pool.Discard(h, conn)
}

// Lease is the result of a successful checkout.
type Lease struct {
	Outcome Outcome
	// Conn is set only for OutcomeReuse.
	Conn   net.Conn
	Handle Handle
	// Overflow is true when the allow-overflow policy granted a new
	// connection beyond the pool limit.
	Overflow bool
}

// Reused reports whether the lease carries a pooled connection.
func (l Lease) Reused() bool {
	return l.Outcome == OutcomeReuse
}
