package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/go-i2p/hostpool/lib/errors"
	"github.com/go-i2p/hostpool/lib/pool"
	"github.com/go-i2p/hostpool/lib/registry"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Pool.Limit != pool.DefaultLimit {
		t.Errorf("Expected default limit %d, got %d", pool.DefaultLimit, cfg.Pool.Limit)
	}
	if cfg.Pool.Granularity != "per-host" {
		t.Errorf("Expected per-host granularity, got %q", cfg.Pool.Granularity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown granularity",
			modify:  func(c *Config) { c.Pool.Granularity = "per-port" },
			wantErr: true,
		},
		{
			name:    "unknown overflow",
			modify:  func(c *Config) { c.Pool.Overflow = "drop" },
			wantErr: true,
		},
		{
			name:    "limit zero",
			modify:  func(c *Config) { c.Pool.Limit = 0 },
			wantErr: true,
		},
		{
			name:    "bad checkout timeout",
			modify:  func(c *Config) { c.Pool.CheckoutTimeout = "soon" },
			wantErr: true,
		},
		{
			name:    "missing checkout expiry",
			modify:  func(c *Config) { c.Pool.CheckoutExpiry = "" },
			wantErr: true,
		},
		{
			name:    "max idle time optional",
			modify:  func(c *Config) { c.Pool.MaxIdleTime = "" },
			wantErr: false,
		},
		{
			name:    "max idle time too short",
			modify:  func(c *Config) { c.Pool.MaxIdleTime = "10ms" },
			wantErr: true,
		},
		{
			name:    "negative breaker failures",
			modify:  func(c *Config) { c.Dial.BreakerFailures = -1 },
			wantErr: true,
		},
		{
			name:    "bad breaker cooldown",
			modify:  func(c *Config) { c.Dial.BreakerCooldown = "later" },
			wantErr: true,
		},
		{
			name: "breaker cooldown ignored when disabled",
			modify: func(c *Config) {
				c.Dial.BreakerFailures = 0
				c.Dial.BreakerCooldown = ""
			},
			wantErr: false,
		},
		{
			name:    "negative dial rate",
			modify:  func(c *Config) { c.Dial.Rate = -1 },
			wantErr: true,
		},
		{
			name:    "negative burst",
			modify:  func(c *Config) { c.Dial.Burst = -1 },
			wantErr: true,
		},
		{
			name:    "bad debug listen",
			modify:  func(c *Config) { c.Debug.Listen = "localhost" },
			wantErr: true,
		},
		{
			name: "debug listen ignored when disabled",
			modify: func(c *Config) {
				c.Debug.Enabled = false
				c.Debug.Listen = ""
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.IsConfiguration(err) {
				t.Errorf("Validate() error should be a configuration error, got %v", err)
			}
		})
	}
}

func TestConfig_ClientConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dial.Timeout = "2s"
	cfg.Dial.BreakerFailures = 3
	cfg.Dial.BreakerCooldown = "30s"
	cfg.Dial.Rate = 2.5

	cc := cfg.ClientConfig()
	if cc.DialTimeout != 2*time.Second {
		t.Errorf("Expected dial timeout 2s, got %v", cc.DialTimeout)
	}
	if cc.KeepAlive != 30*time.Second {
		t.Errorf("Expected keepalive 30s, got %v", cc.KeepAlive)
	}
	if cc.Transport != "tcp" {
		t.Errorf("Expected tcp transport, got %q", cc.Transport)
	}
	if cc.Breaker.FailureThreshold != 3 || cc.Breaker.Cooldown != 30*time.Second {
		t.Errorf("Unexpected breaker config %+v", cc.Breaker)
	}
	if cc.Rate.PerSecond != 2.5 || cc.Rate.Burst != DefaultBurst {
		t.Errorf("Unexpected rate config %+v", cc.Rate)
	}
}

func TestLoadConfig_NotExists(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pool.Limit != pool.DefaultLimit {
		t.Error("missing file should yield the default config")
	}
}

func TestLoadConfig_UnsupportedFormat(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	if !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostpool.toml")
	content := `
[pool]
granularity = "per-pool"
overflow = "allow-overflow"
limit = 4
checkout_timeout = "2s"
checkout_expiry = "30s"
safety_margin = "50ms"
max_idle_time = "90s"
sweep_interval = "10s"

[dial]
timeout = "3s"
keep_alive = "15s"

[debug]
enabled = false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Limit != 4 {
		t.Errorf("Expected limit 4, got %d", opts.Limit)
	}
	if opts.Overflow != pool.AllowOverflow {
		t.Errorf("Expected allow-overflow, got %s", opts.Overflow)
	}
	if opts.CheckoutTimeout != 2*time.Second || opts.CheckoutExpiry != 30*time.Second {
		t.Errorf("unexpected timeouts %v / %v", opts.CheckoutTimeout, opts.CheckoutExpiry)
	}
	if opts.SafetyMargin != 50*time.Millisecond {
		t.Errorf("Expected safety margin 50ms, got %v", opts.SafetyMargin)
	}
	if opts.MaxIdleTime != 90*time.Second || opts.SweepInterval != 10*time.Second {
		t.Errorf("unexpected idle settings %v / %v", opts.MaxIdleTime, opts.SweepInterval)
	}

	policy, err := cfg.Policy()
	if err != nil || policy != registry.PerPool {
		t.Errorf("Expected per-pool policy, got %s / %v", policy, err)
	}
	if cfg.DialTimeout() != 3*time.Second || cfg.KeepAlive() != 15*time.Second {
		t.Errorf("unexpected dial settings %v / %v", cfg.DialTimeout(), cfg.KeepAlive())
	}
	if cfg.Debug.Enabled {
		t.Error("debug endpoint should be disabled")
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostpool.yaml")
	content := `
pool:
  granularity: single
  limit: 2
debug:
  listen: "127.0.0.1:9000"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Pool.Limit != 2 {
		t.Errorf("Expected limit 2, got %d", cfg.Pool.Limit)
	}
	if cfg.Pool.CheckoutTimeout != DefaultCheckoutTimeout {
		t.Errorf("unset fields should keep defaults, got %q", cfg.Pool.CheckoutTimeout)
	}
	if policy, _ := cfg.Policy(); policy != registry.Single {
		t.Errorf("Expected single policy, got %s", policy)
	}
	if cfg.Debug.Listen != "127.0.0.1:9000" {
		t.Errorf("Expected debug listen 127.0.0.1:9000, got %q", cfg.Debug.Listen)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[pool\nlimit = "), 0600)
	if _, err := LoadConfig(bad); !apperrors.IsConfiguration(err) {
		t.Errorf("malformed TOML: expected configuration error, got %v", err)
	}

	invalid := filepath.Join(dir, "invalid.yml")
	os.WriteFile(invalid, []byte("pool:\n  limit: -1\n"), 0600)
	if _, err := LoadConfig(invalid); !apperrors.IsConfiguration(err) {
		t.Errorf("invalid limit: expected configuration error, got %v", err)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{"nested/hostpool.toml", "nested/hostpool.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Pool.Limit = 7
			cfg.Pool.Overflow = "allow-overflow"

			if err := SaveConfig(cfg, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if loaded.Pool.Limit != 7 || loaded.Pool.Overflow != "allow-overflow" {
				t.Errorf("round trip lost values: %+v", loaded.Pool)
			}
		})
	}
}

func TestSaveConfig_UnsupportedFormat(t *testing.T) {
	err := SaveConfig(DefaultConfig(), filepath.Join(t.TempDir(), "hostpool.ini"))
	if !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
