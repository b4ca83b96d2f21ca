// README: Config loader with env defaults for HTTP, storage, directory and negotiation settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// NegotiationConfig holds the protocol timings and limits shared by every actor in a run.
type NegotiationConfig struct {
	Capacity         int           `yaml:"capacity" json:"capacity"`
	RequestTimeout   time.Duration `yaml:"request_timeout" json:"request_timeout"`
	CommitTimeout    time.Duration `yaml:"commit_timeout" json:"commit_timeout"`
	ConfirmTimeout   time.Duration `yaml:"confirm_timeout" json:"confirm_timeout"`
	OfferTTL         time.Duration `yaml:"offer_ttl" json:"offer_ttl"`
	Period           time.Duration `yaml:"period" json:"period"`
	Jitter           time.Duration `yaml:"jitter" json:"jitter"`
	MaxAttempts      int           `yaml:"max_attempts" json:"max_attempts"`
	MaxReceivers     int           `yaml:"max_receivers" json:"max_receivers"`
	RiderMaxAttempts int           `yaml:"rider_max_attempts" json:"rider_max_attempts"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	Premium          float64       `yaml:"premium" json:"premium"`
	DirectoryRetries int           `yaml:"directory_retries" json:"directory_retries"`
	DirectoryBackoff time.Duration `yaml:"directory_backoff" json:"directory_backoff"`
}

type Config struct {
	HTTP struct {
		Addr string
	}
	DB struct {
		DSN string
	}
	SQLite struct {
		Path string
	}
	Redis struct {
		Addr string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Log struct {
		Level  string
		Format string
	}
	Negotiation NegotiationConfig
}

var ErrInvalidNegotiation = errors.New("invalid negotiation config")

// DefaultNegotiation holds the timings used when nothing is configured.
func DefaultNegotiation() NegotiationConfig {
	return NegotiationConfig{
		Capacity:         3,
		RequestTimeout:   2 * time.Second,
		CommitTimeout:    2 * time.Second,
		ConfirmTimeout:   30 * time.Second,
		OfferTTL:         5 * time.Second,
		Period:           time.Second,
		Jitter:           500 * time.Millisecond,
		MaxAttempts:      5,
		MaxReceivers:     20,
		RiderMaxAttempts: 1,
		MaxRetries:       5,
		Premium:          0,
		DirectoryRetries: 3,
		DirectoryBackoff: 100 * time.Millisecond,
	}
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("CARPOOL_HTTP_ADDR", ":8080")
	cfg.DB.DSN = envOrDefault("CARPOOL_DB_DSN", "")
	cfg.SQLite.Path = envOrDefault("CARPOOL_SQLITE_PATH", "")
	cfg.Redis.Addr = envOrDefault("CARPOOL_REDIS_ADDR", "")
	cfg.Firebase.ProjectID = envOrDefault("CARPOOL_FIREBASE_PROJECT_ID", "")
	cfg.Firebase.CredentialsFile = envOrDefault("CARPOOL_FIREBASE_CREDENTIALS", "")
	cfg.Log.Level = envOrDefault("CARPOOL_LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("CARPOOL_LOG_FORMAT", "text")

	def := DefaultNegotiation()
	n := &cfg.Negotiation
	n.Capacity = envOrDefaultInt("CARPOOL_CAPACITY", def.Capacity)
	n.RequestTimeout = envOrDefaultDuration("CARPOOL_REQUEST_TIMEOUT", def.RequestTimeout)
	n.CommitTimeout = envOrDefaultDuration("CARPOOL_COMMIT_TIMEOUT", def.CommitTimeout)
	n.ConfirmTimeout = envOrDefaultDuration("CARPOOL_CONFIRM_TIMEOUT", def.ConfirmTimeout)
	n.OfferTTL = envOrDefaultDuration("CARPOOL_OFFER_TTL", def.OfferTTL)
	n.Period = envOrDefaultDuration("CARPOOL_PERIOD", def.Period)
	n.Jitter = envOrDefaultDuration("CARPOOL_JITTER", def.Jitter)
	n.MaxAttempts = envOrDefaultInt("CARPOOL_MAX_ATTEMPTS", def.MaxAttempts)
	n.MaxReceivers = envOrDefaultInt("CARPOOL_MAX_RECEIVERS", def.MaxReceivers)
	n.RiderMaxAttempts = envOrDefaultInt("CARPOOL_RIDER_MAX_ATTEMPTS", def.RiderMaxAttempts)
	n.MaxRetries = envOrDefaultInt("CARPOOL_MAX_RETRIES", def.MaxRetries)
	n.Premium = envOrDefaultFloat("CARPOOL_PREMIUM", def.Premium)
	n.DirectoryRetries = envOrDefaultInt("CARPOOL_DIRECTORY_RETRIES", def.DirectoryRetries)
	n.DirectoryBackoff = envOrDefaultDuration("CARPOOL_DIRECTORY_BACKOFF", def.DirectoryBackoff)

	if err := n.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings that would stall or break the protocol.
func (n NegotiationConfig) Validate() error {
	switch {
	case n.Capacity < 1:
		return fmt.Errorf("%w: capacity must be >= 1, got %d", ErrInvalidNegotiation, n.Capacity)
	case n.RequestTimeout <= 0, n.CommitTimeout <= 0, n.ConfirmTimeout <= 0, n.OfferTTL <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidNegotiation)
	case n.Period <= 0:
		return fmt.Errorf("%w: period must be positive", ErrInvalidNegotiation)
	case n.Jitter < 0:
		return fmt.Errorf("%w: jitter must not be negative", ErrInvalidNegotiation)
	case n.MaxAttempts < 1, n.RiderMaxAttempts < 1:
		return fmt.Errorf("%w: attempt limits must be >= 1", ErrInvalidNegotiation)
	case n.MaxReceivers < 1:
		return fmt.Errorf("%w: max receivers must be >= 1", ErrInvalidNegotiation)
	case n.MaxRetries < 0, n.DirectoryRetries < 0:
		return fmt.Errorf("%w: retry limits must not be negative", ErrInvalidNegotiation)
	case n.Premium < 0:
		return fmt.Errorf("%w: premium must not be negative", ErrInvalidNegotiation)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
