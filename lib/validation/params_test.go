package validation

import (
	"errors"
	"testing"
	"time"
)

func TestValidateProbeParams(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		requests    int
		concurrency int
		hold        time.Duration
		wantErr     error
	}{
		{"valid", "example.com:80", 10, 2, 0, nil},
		{"valid with hold", "127.0.0.1:8080", 1, 1, time.Second, nil},
		{"missing target", "", 10, 1, 0, ErrRequired},
		{"no port", "example.com", 10, 1, 0, ErrInvalidFormat},
		{"zero requests", "example.com:80", 0, 1, 0, ErrOutOfRange},
		{"zero concurrency", "example.com:80", 1, 0, 0, ErrOutOfRange},
		{"negative hold", "example.com:80", 1, 1, -time.Second, ErrOutOfRange},
		{"hold too long", "example.com:80", 1, 1, 2 * time.Hour, ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProbeParams(tt.target, tt.requests, tt.concurrency, tt.hold)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateProbeParams() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateProbeParams() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePoolParam(t *testing.T) {
	if err := ValidatePoolParam(""); err != nil {
		t.Errorf("empty pool name should be allowed: %v", err)
	}
	if err := ValidatePoolParam("billing"); err != nil {
		t.Errorf("valid pool name rejected: %v", err)
	}
	if err := ValidatePoolParam("-bad"); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}
