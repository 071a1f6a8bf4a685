package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/connection"
	"github.com/hassbridge/hassbridge-go/pkg/log"
	"github.com/hassbridge/hassbridge-go/pkg/transport"
)

// Service errors.
var (
	ErrNotConnected  = connection.ErrNotConnected
	ErrClosed        = errors.New("hub client closed")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config configures a HubClient.
type Config struct {
	// Name labels logs and protocol capture (default: the base URL).
	Name string

	// BaseURL is the hub HTTP(S) URL.
	BaseURL string

	// Credential is the access token, or the API password when Legacy is set.
	Credential string

	// Legacy authenticates with api_password.
	Legacy bool

	// TLS configures certificate validation. The zero value validates.
	TLS transport.TLSConfig

	// InitialDelay is waited before the very first connect attempt.
	// SkipInitialDelay disables it.
	InitialDelay     time.Duration
	SkipInitialDelay bool

	// RetryDelay is the wait between attempts (default 5s).
	RetryDelay time.Duration

	// RetryMultiplier grows the wait after each failed attempt up to
	// RetryMaxDelay, and RetryJitter adds up to that fraction on top. Zero
	// values keep the fixed RetryDelay interval.
	RetryMultiplier float64
	RetryMaxDelay   time.Duration
	RetryJitter     float64

	// HandshakeTimeout bounds dial plus auth (default 30s).
	HandshakeTimeout time.Duration

	// RequestTimeout bounds each command round trip (default 30s).
	RequestTimeout time.Duration

	// KeepAlive configures hub pings. DisableKeepAlive turns them off.
	KeepAlive        transport.KeepAliveConfig
	DisableKeepAlive bool

	// Events is the initial set of subscribed event types.
	Events []string

	// Logger receives operational logs (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (nil disables).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a config with default timings.
func DefaultConfig() Config {
	return Config{
		InitialDelay:     connection.DefaultInitialDelay,
		RetryDelay:       connection.InitialBackoff,
		HandshakeTimeout: transport.DefaultHandshakeTimeout,
		RequestTimeout:   30 * time.Second,
		KeepAlive:        transport.DefaultKeepAliveConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, transport.ErrHostNotConfigured)
	}
	if _, err := transport.WebSocketURL(c.BaseURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Credential == "" {
		return fmt.Errorf("%w: credential is required", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 || c.InitialDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidConfig)
	}
	if c.RetryMultiplier != 0 && c.RetryMultiplier < 1 {
		return fmt.Errorf("%w: retry multiplier below 1", ErrInvalidConfig)
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("%w: retry jitter outside [0, 1]", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = c.BaseURL
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RetryMaxDelay < c.RetryDelay {
		c.RetryMaxDelay = c.RetryDelay
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.KeepAlive.PingInterval == 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
