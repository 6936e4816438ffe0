package session

import (
	"time"

	"github.com/danmuck/probectl/internal/control"
)

// DefaultRequestTimeout is the per-attempt client wait. It must outlast
// the router's gateway timeout so a NO_RESPONSE from the router reaches
// the client before the client gives up and resends.
const DefaultRequestTimeout = control.DefaultGatewayTimeout + 1500*time.Millisecond

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport timeouts shared by the router, device link and
// client.
type Config struct {
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Retries        int
	Backoff        BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:    2 * time.Second,
		RequestTimeout: DefaultRequestTimeout,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Second,
		Retries:        3,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig. A zero Config is
// DefaultConfig, retries included. Once any field is set, Retries is taken
// as given: zero means a single attempt and negatives clamp to zero.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c == (Config{}) {
		return def
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}
