package validation

import "time"

// MaxProbeHold caps how long a probe holds each connection.
const MaxProbeHold = time.Hour

// ValidateProbeParams validates the arguments of a probe run.
func ValidateProbeParams(target string, requests, concurrency int, hold time.Duration) error {
	return All(
		func() error { return HostPort("target", target) },
		func() error { return Positive("n", requests) },
		func() error { return Positive("c", concurrency) },
		func() error {
			if hold < 0 || hold > MaxProbeHold {
				return NewResult("hold", "must be between 0 and "+MaxProbeHold.String(), ErrOutOfRange)
			}
			return nil
		},
	)
}

// ValidatePoolParam validates an optional pool name.
func ValidatePoolParam(name string) error {
	if name == "" {
		return nil
	}
	return PoolName("pool", name)
}
