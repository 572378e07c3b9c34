package registry

import (
	"fmt"
	"strings"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/validation"
)

// Policy decides how many pool actors serve a process.
type Policy int

const (
	// PerHost runs one pool per remote host.
	PerHost Policy = iota
	// PerPool runs one pool per caller-chosen pool name.
	PerPool
	// Single runs one pool for everything.
	Single
)

// DefaultPoolName is used for PerPool keys when the caller names no pool.
const DefaultPoolName = "default"

func (p Policy) String() string {
	switch p {
	case PerHost:
		return "per-host"
	case PerPool:
		return "per-pool"
	case Single:
		return "single"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the configuration spelling of a policy. The empty
// string selects PerHost.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per-host", "host":
		return PerHost, nil
	case "per-pool", "pool":
		return PerPool, nil
	case "single", "global":
		return Single, nil
	default:
		return 0, fmt.Errorf("granularity policy %q: %w", s, apperrors.ErrUnknownPolicy)
	}
}

// Key selects a pool actor.
type Key struct {
	Policy Policy
	Name   string
}

func (k Key) String() string {
	switch k.Policy {
	case PerHost:
		return "host:" + k.Name
	case PerPool:
		return "pool:" + k.Name
	default:
		return "global"
	}
}

// ResolveKey derives the pool key for a request to host made through the
// named pool.
func ResolveKey(policy Policy, host, poolName string) (Key, error) {
	switch policy {
	case PerHost:
		host = strings.ToLower(strings.TrimSuffix(host, "."))
		if err := validation.Host("host", host); err != nil {
			return Key{}, fmt.Errorf("resolve key: %w: %w", apperrors.ErrInvalidInput, err)
		}
		return Key{Policy: PerHost, Name: host}, nil
	case PerPool:
		if poolName == "" {
			poolName = DefaultPoolName
		}
		if err := validation.PoolName("pool", poolName); err != nil {
			return Key{}, fmt.Errorf("resolve key: %w: %w", apperrors.ErrInvalidInput, err)
		}
		return Key{Policy: PerPool, Name: poolName}, nil
	case Single:
		return Key{Policy: Single}, nil
	default:
		return Key{}, fmt.Errorf("resolve key: policy %d: %w", int(policy), apperrors.ErrUnknownPolicy)
	}
}
