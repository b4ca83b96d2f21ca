package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARPOOL_CAPACITY", "")
	t.Setenv("CARPOOL_REQUEST_TIMEOUT", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Negotiation != DefaultNegotiation() {
		t.Fatalf("expected defaults, got %+v", cfg.Negotiation)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("http addr = %q", cfg.HTTP.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARPOOL_CAPACITY", "5")
	t.Setenv("CARPOOL_REQUEST_TIMEOUT", "150ms")
	t.Setenv("CARPOOL_PREMIUM", "0.25")
	t.Setenv("CARPOOL_MAX_ATTEMPTS", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	n := cfg.Negotiation
	if n.Capacity != 5 {
		t.Fatalf("capacity = %d, want 5", n.Capacity)
	}
	if n.RequestTimeout != 150*time.Millisecond {
		t.Fatalf("request timeout = %v", n.RequestTimeout)
	}
	if n.Premium != 0.25 {
		t.Fatalf("premium = %v", n.Premium)
	}
	// unparsable values fall back to the default
	if n.MaxAttempts != DefaultNegotiation().MaxAttempts {
		t.Fatalf("max attempts = %d", n.MaxAttempts)
	}
}

func TestLoadRejectsZeroCapacity(t *testing.T) {
	t.Setenv("CARPOOL_CAPACITY", "0")
	if _, err := Load(); !errors.Is(err, ErrInvalidNegotiation) {
		t.Fatalf("expected ErrInvalidNegotiation, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*NegotiationConfig)
		ok     bool
	}{
		{"defaults", func(*NegotiationConfig) {}, true},
		{"zero request timeout", func(n *NegotiationConfig) { n.RequestTimeout = 0 }, false},
		{"negative jitter", func(n *NegotiationConfig) { n.Jitter = -time.Second }, false},
		{"zero jitter", func(n *NegotiationConfig) { n.Jitter = 0 }, true},
		{"zero attempts", func(n *NegotiationConfig) { n.MaxAttempts = 0 }, false},
		{"zero receivers", func(n *NegotiationConfig) { n.MaxReceivers = 0 }, false},
		{"negative premium", func(n *NegotiationConfig) { n.Premium = -1 }, false},
		{"no retries", func(n *NegotiationConfig) { n.MaxRetries = 0 }, true},
	}
	for _, tc := range cases {
		n := DefaultNegotiation()
		tc.mutate(&n)
		err := n.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}
