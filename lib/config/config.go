// Package config loads hostpool configuration from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/go-i2p/hostpool/lib/client"
	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
	"github.com/go-i2p/hostpool/lib/registry"
	"github.com/go-i2p/hostpool/lib/validation"
)

// Default configuration values
const (
	DefaultGranularity     = "per-host"
	DefaultOverflow        = "reject-with-timeout"
	DefaultCheckoutTimeout = "5s"
	DefaultCheckoutExpiry  = "15s"
	DefaultSafetyMargin    = "100ms"
	DefaultSweepInterval   = "1m"
	DefaultDialTimeout     = "5s"
	DefaultKeepAlive       = "30s"
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = "10s"
	DefaultBurst           = 10
	DefaultDebugListen     = "127.0.0.1:9464"
)

// Config holds all hostpool configuration.
type Config struct {
	Pool  PoolConfig  `toml:"pool" yaml:"pool"`
	Dial  DialConfig  `toml:"dial" yaml:"dial"`
	Debug DebugConfig `toml:"debug" yaml:"debug"`
}

// PoolConfig contains the settings every pool actor starts with.
type PoolConfig struct {
	// Granularity selects how pools are split: per-host, per-pool or single
	Granularity string `toml:"granularity" yaml:"granularity"`
	// Overflow is reject-with-timeout or allow-overflow
	Overflow string `toml:"overflow" yaml:"overflow"`
	// Limit is the connection cap per connection key
	Limit int `toml:"limit" yaml:"limit"`
	// CheckoutTimeout bounds how long a checkout may wait (e.g. "5s")
	CheckoutTimeout string `toml:"checkout_timeout" yaml:"checkout_timeout"`
	// CheckoutExpiry is how long a checkout may stay out before it is reaped
	CheckoutExpiry string `toml:"checkout_expiry" yaml:"checkout_expiry"`
	// SafetyMargin is how much earlier than the timeout a deferred reply fires
	SafetyMargin string `toml:"safety_margin" yaml:"safety_margin"`
	// MaxIdleTime closes idle connections after this long; empty disables it
	MaxIdleTime string `toml:"max_idle_time,omitempty" yaml:"max_idle_time,omitempty"`
	// SweepInterval is how often idle connections are checked for expiry
	SweepInterval string `toml:"sweep_interval" yaml:"sweep_interval"`
}

// DialConfig contains settings for connections the client dials itself.
type DialConfig struct {
	// Timeout bounds connection establishment
	Timeout string `toml:"timeout" yaml:"timeout"`
	// KeepAlive is the TCP keepalive period of pooled connections
	KeepAlive string `toml:"keep_alive" yaml:"keep_alive"`
	// BreakerFailures is the number of consecutive dial failures that stop
	// dialing an endpoint for BreakerCooldown. Zero disables the breaker.
	BreakerFailures int `toml:"breaker_failures" yaml:"breaker_failures"`
	// BreakerCooldown is how long dialing stays stopped (e.g. "10s")
	BreakerCooldown string `toml:"breaker_cooldown" yaml:"breaker_cooldown"`
	// Rate is the number of new connections per second allowed to one
	// endpoint. Zero disables the limit.
	Rate float64 `toml:"rate" yaml:"rate"`
	// Burst is how many new connections may be opened at once
	Burst int `toml:"burst" yaml:"burst"`
}

// DebugConfig contains the debug HTTP endpoint settings.
type DebugConfig struct {
	// Enabled controls whether /metrics and /stats are served
	Enabled bool `toml:"enabled" yaml:"enabled"`
	// Listen is the address to bind the debug server to
	Listen string `toml:"listen" yaml:"listen"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Granularity:     DefaultGranularity,
			Overflow:        DefaultOverflow,
			Limit:           pool.DefaultLimit,
			CheckoutTimeout: DefaultCheckoutTimeout,
			CheckoutExpiry:  DefaultCheckoutExpiry,
			SafetyMargin:    DefaultSafetyMargin,
			SweepInterval:   DefaultSweepInterval,
		},
		Dial: DialConfig{
			Timeout:         DefaultDialTimeout,
			KeepAlive:       DefaultKeepAlive,
			BreakerFailures: DefaultBreakerFailures,
			BreakerCooldown: DefaultBreakerCooldown,
			Burst:           DefaultBurst,
		},
		Debug: DebugConfig{
			Enabled: true,
			Listen:  DefaultDebugListen,
		},
	}
}

type format int

const (
	formatTOML format = iota
	formatYAML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return formatTOML, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%q: %w", path, apperrors.ErrUnsupportedFormat)
	}
}

// LoadConfig reads configuration from a .toml, .yaml or .yml file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch f {
	case formatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w: %w", apperrors.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration in the format named by the file
// extension. It creates the parent directory if it doesn't exist.
func SaveConfig(cfg *Config, path string) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var data []byte
	switch f {
	case formatYAML:
		data, err = yaml.Marshal(cfg)
	default:
		data, err = toml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs validation.Errors
	errs.Add(validation.OneOf("pool.granularity", c.Pool.Granularity, "per-host", "per-pool", "single"))
	errs.Add(validation.OneOf("pool.overflow", c.Pool.Overflow, "reject-with-timeout", "allow-overflow"))
	errs.Add(validation.IntRange("pool.limit", c.Pool.Limit, 1, 10000))
	errs.Add(durationRequired("pool.checkout_timeout", c.Pool.CheckoutTimeout, time.Millisecond, time.Hour))
	errs.Add(durationRequired("pool.checkout_expiry", c.Pool.CheckoutExpiry, time.Millisecond, 24*time.Hour))
	errs.Add(durationRequired("pool.safety_margin", c.Pool.SafetyMargin, time.Millisecond, time.Minute))
	errs.Add(durationOptional("pool.max_idle_time", c.Pool.MaxIdleTime, time.Second, 24*time.Hour))
	errs.Add(durationRequired("pool.sweep_interval", c.Pool.SweepInterval, 10*time.Millisecond, time.Hour))
	errs.Add(durationRequired("dial.timeout", c.Dial.Timeout, time.Millisecond, 10*time.Minute))
	errs.Add(durationOptional("dial.keep_alive", c.Dial.KeepAlive, time.Second, time.Hour))
	errs.Add(validation.NonNegative("dial.breaker_failures", c.Dial.BreakerFailures))
	if c.Dial.BreakerFailures > 0 {
		errs.Add(durationRequired("dial.breaker_cooldown", c.Dial.BreakerCooldown, 100*time.Millisecond, time.Hour))
	}
	if c.Dial.Rate < 0 {
		errs.Add(validation.NewResult("dial.rate", "must be non-negative", validation.ErrOutOfRange))
	}
	errs.Add(validation.NonNegative("dial.burst", c.Dial.Burst))
	if c.Debug.Enabled {
		errs.Add(validation.HostPort("debug.listen", c.Debug.Listen))
	}
	if errs.HasErrors() {
		return fmt.Errorf("%w: %w", apperrors.ErrConfiguration, errs)
	}
	return nil
}

func durationRequired(field, value string, min, max time.Duration) error {
	if err := validation.Required(field, value); err != nil {
		return err
	}
	return durationOptional(field, value, min, max)
}

func durationOptional(field, value string, min, max time.Duration) error {
	_, err := validation.DurationRange(field, value, min, max)
	return err
}

// parse reads a duration already checked by Validate.
func parse(value string) time.Duration {
	d, _ := validation.Duration("", value)
	return d
}

// Options returns the pool actor configuration.
func (c *Config) Options() (pool.Config, error) {
	if err := c.Validate(); err != nil {
		return pool.Config{}, err
	}
	overflow, err := pool.ParseOverflowPolicy(c.Pool.Overflow)
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Limit:           c.Pool.Limit,
		CheckoutTimeout: parse(c.Pool.CheckoutTimeout),
		CheckoutExpiry:  parse(c.Pool.CheckoutExpiry),
		Overflow:        overflow,
		SafetyMargin:    parse(c.Pool.SafetyMargin),
		MaxIdleTime:     parse(c.Pool.MaxIdleTime),
		SweepInterval:   parse(c.Pool.SweepInterval),
	}, nil
}

// Policy returns the registry granularity policy.
func (c *Config) Policy() (registry.Policy, error) {
	return registry.ParsePolicy(c.Pool.Granularity)
}

// DialTimeout returns the parsed dial timeout.
func (c *Config) DialTimeout() time.Duration {
	return parse(c.Dial.Timeout)
}

// KeepAlive returns the parsed keepalive period, zero if unset.
func (c *Config) KeepAlive() time.Duration {
	return parse(c.Dial.KeepAlive)
}

// ClientConfig returns the dialer settings. Checkout options are left at
// their zero values so the pool defaults apply.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.DialTimeout = c.DialTimeout()
	cfg.KeepAlive = c.KeepAlive()
	cfg.Breaker = client.BreakerConfig{
		FailureThreshold: c.Dial.BreakerFailures,
		Cooldown:         parse(c.Dial.BreakerCooldown),
	}
	cfg.Rate = client.RateConfig{
		PerSecond: c.Dial.Rate,
		Burst:     c.Dial.Burst,
	}
	return cfg
}
