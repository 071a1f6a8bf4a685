// Package config loads the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hassbridge/hassbridge-go/pkg/service"
	"github.com/hassbridge/hassbridge-go/pkg/transport"
)

// TokenEnv names the environment variable that supplies an access token to
// servers configured without one.
const TokenEnv = "HASSBRIDGE_TOKEN"

// ErrInvalid is returned for configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the bridge configuration file.
type Config struct {
	Servers []Server `yaml:"servers"`
	Logging Logging  `yaml:"logging"`
}

// Server configures one hub connection.
type Server struct {
	Name        string `yaml:"name"`
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token,omitempty"`
	APIPassword string `yaml:"api_password,omitempty"`

	// Legacy authenticates with api_password. Implied when only a password
	// is set.
	Legacy bool `yaml:"legacy"`

	// RejectUnauthorized validates the hub certificate (default true).
	RejectUnauthorized *bool  `yaml:"reject_unauthorized,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`

	// ConnectionDelay waits before the first connect (default true).
	ConnectionDelay *bool `yaml:"connection_delay,omitempty"`

	// Discover finds the hub over mDNS when base_url is empty.
	Discover bool `yaml:"discover"`

	Events []string `yaml:"events,omitempty"`

	PingInterval time.Duration `yaml:"ping_interval,omitempty"`
	RetryDelay   time.Duration `yaml:"retry_delay,omitempty"`

	// Retry growth; unset keeps the fixed retry_delay interval.
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay,omitempty"`
	RetryMultiplier float64       `yaml:"retry_multiplier,omitempty"`
	RetryJitter     float64       `yaml:"retry_jitter,omitempty"`
}

// Logging configures operational and protocol logs.
type Logging struct {
	// Level is debug, info, warn or error (default info).
	Level string `yaml:"level"`

	// Format is text or json (default text).
	Format string `yaml:"format"`

	// ProtocolLog is a CBOR capture file path; empty disables capture.
	ProtocolLog string `yaml:"protocol_log,omitempty"`
}

// Load reads, defaults and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Finalize(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile reads and decodes a configuration file without defaults or
// validation, so callers can apply overrides first.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(data)
}

// Decode unmarshals configuration YAML.
func Decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Finalize fills tokens from the environment, applies defaults and
// validates.
func (c *Config) Finalize(getenv func(string) string) error {
	c.ApplyEnv(getenv)
	c.ApplyDefaults()
	return c.Validate()
}

// ApplyEnv fills missing access tokens from TokenEnv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	token := getenv(TokenEnv)
	if token == "" {
		return
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.AccessToken == "" && s.APIPassword == "" {
			s.AccessToken = token
		}
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.Name == "" {
			if s.BaseURL != "" {
				s.Name = s.BaseURL
			} else {
				s.Name = fmt.Sprintf("server-%d", i+1)
			}
		}
		if s.RejectUnauthorized == nil {
			s.RejectUnauthorized = boolPtr(true)
		}
		if s.ConnectionDelay == nil {
			s.ConnectionDelay = boolPtr(true)
		}
		if s.AccessToken == "" && s.APIPassword != "" {
			s.Legacy = true
		}
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Servers) == 0 {
		errs = append(errs, errors.New("no servers configured"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	names := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		prefix := fmt.Sprintf("servers[%d]", i)
		if names[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name %q", prefix, s.Name))
		}
		names[s.Name] = true

		if s.BaseURL == "" && !s.Discover {
			errs = append(errs, fmt.Errorf("%s: base_url is required unless discover is set", prefix))
		}
		if s.BaseURL != "" {
			if _, err := transport.WebSocketURL(s.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			}
		}
		if s.Credential() == "" {
			errs = append(errs, fmt.Errorf("%s: access_token or api_password is required (or set %s)", prefix, TokenEnv))
		}
		if s.PingInterval < 0 || s.RetryDelay < 0 || s.RetryMaxDelay < 0 {
			errs = append(errs, fmt.Errorf("%s: negative duration", prefix))
		}
		if s.RetryMultiplier != 0 && s.RetryMultiplier < 1 {
			errs = append(errs, fmt.Errorf("%s: retry_multiplier must be at least 1", prefix))
		}
		if s.RetryJitter < 0 || s.RetryJitter > 1 {
			errs = append(errs, fmt.Errorf("%s: retry_jitter must be within [0, 1]", prefix))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Credential returns the token, or the password for legacy servers.
func (s *Server) Credential() string {
	if s.Legacy && s.APIPassword != "" {
		return s.APIPassword
	}
	if s.AccessToken != "" {
		return s.AccessToken
	}
	return s.APIPassword
}

// ServiceConfig builds the hub client configuration for this server.
// baseURL overrides the configured URL, e.g. with a discovered one.
func (s *Server) ServiceConfig(baseURL string) service.Config {
	cfg := service.DefaultConfig()
	cfg.Name = s.Name
	cfg.BaseURL = s.BaseURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.Credential = s.Credential()
	cfg.Legacy = s.Legacy
	cfg.TLS = transport.TLSConfig{
		InsecureSkipVerify: s.RejectUnauthorized != nil && !*s.RejectUnauthorized,
		CAFile:             s.CAFile,
	}
	cfg.SkipInitialDelay = s.ConnectionDelay != nil && !*s.ConnectionDelay
	cfg.Events = s.Events
	if s.PingInterval > 0 {
		cfg.KeepAlive.PingInterval = s.PingInterval
	}
	if s.RetryDelay > 0 {
		cfg.RetryDelay = s.RetryDelay
	}
	cfg.RetryMaxDelay = s.RetryMaxDelay
	cfg.RetryMultiplier = s.RetryMultiplier
	cfg.RetryJitter = s.RetryJitter
	return cfg
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level: unknown level %q", level)
	}
}

// NewLogger builds the operational logger described by l.
func (l Logging) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func boolPtr(b bool) *bool {
	return &b
}
