package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hassbridge/hassbridge-go/pkg/log"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// DefaultHandshakeTimeout bounds socket open plus the auth exchange.
const DefaultHandshakeTimeout = 30 * time.Second

// DefaultMaxMessageSize is the read limit for a single frame. get_states on a
// large installation easily exceeds a few megabytes.
const DefaultMaxMessageSize = 64 << 20

// ClientConfig configures a hub connection attempt.
type ClientConfig struct {
	// BaseURL is the hub HTTP(S) base URL, e.g. http://homeassistant.local:8123.
	BaseURL string

	// Credential is the long-lived access token, or the API password in
	// legacy mode.
	Credential string

	// Legacy sends the credential as api_password instead of access_token.
	Legacy bool

	// TLS configures certificate validation for wss:// URLs.
	TLS TLSConfig

	// HandshakeTimeout bounds dial plus auth (default 30s).
	HandshakeTimeout time.Duration

	// MaxMessageSize limits a single inbound frame (default 64MB).
	MaxMessageSize int64

	// ServerName labels protocol capture events.
	ServerName string

	// Logger receives operational logs (default slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events (nil disables).
	ProtocolLogger log.Logger
}

// Client dials hub connections.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
	logger  *slog.Logger
	plog    log.Logger
}

// NewClient creates a new hub transport client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tlsConf, err := NewClientTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Client{
		config:  config,
		tlsConf: tlsConf,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
	}, nil
}

// Dial opens the socket, authenticates and returns an established
// connection. Failures are classified with the package sentinel errors.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	wsURL, err := WebSocketURL(c.config.BaseURL)
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
		TLSClientConfig:  c.tlsConf,
	}

	ws, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, classifyDialError(wsURL, resp, err)
	}
	ws.SetReadLimit(c.config.MaxMessageSize)

	conn := newConn(ws, uuid.NewString(), wsURL, c.config.ServerName, c.plog)
	c.logger.Debug("socket open", "url", wsURL, "conn_id", conn.ID())

	if err := c.authenticate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.logger.Info("authenticated", "url", wsURL, "hub_version", conn.HubVersion(), "conn_id", conn.ID())
	return conn, nil
}

// authenticate sends the auth frame and waits for auth_ok or auth_invalid.
// Other frames during the handshake are ignored.
func (c *Client) authenticate(ctx context.Context, conn *Conn) error {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.ws.SetReadDeadline(deadline)
	}

	conn.logControl(log.DirectionOut, log.ControlMsgAuth)
	if err := conn.Send(wire.NewAuthMessage(c.config.Credential, c.config.Legacy)); err != nil {
		return fmt.Errorf("%w: send auth: %v", ErrConnectionLost, err)
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				c.logger.Debug("ignoring malformed frame during handshake", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return fmt.Errorf("%w: handshake: %w", ErrConnectionLost, ctx.Err())
			}
			return err
		}

		switch frame.Type {
		case wire.TypeAuthRequired:
			conn.logControl(log.DirectionIn, log.ControlMsgAuthRequired)
			conn.setHubVersion(frame.HAVersion)

		case wire.TypeAuthInvalid:
			conn.logControl(log.DirectionIn, log.ControlMsgAuthInvalid)
			msg := frame.Message
			if msg == "" {
				msg = "credential rejected"
			}
			return fmt.Errorf("%w: %s", ErrInvalidAuth, msg)

		case wire.TypeAuthOK:
			conn.logControl(log.DirectionIn, log.ControlMsgAuthOK)
			if frame.HAVersion != "" {
				conn.setHubVersion(frame.HAVersion)
			}
			_ = conn.ws.SetReadDeadline(time.Time{})
			return nil

		default:
			c.logger.Debug("ignoring frame during handshake", "type", frame.Type)
		}
	}
}

// classifyDialError maps a failed WebSocket dial onto the handshake errors.
func classifyDialError(wsURL string, resp *http.Response, err error) error {
	var rhe tls.RecordHeaderError
	if errors.As(err, &rhe) {
		// wss:// against a plain HTTP listener
		return fmt.Errorf("%w: %s does not speak TLS: %v", ErrInsecureSchemeMismatch, wsURL, err)
	}

	if resp != nil {
		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			if loc, lerr := url.Parse(resp.Header.Get("Location")); lerr == nil {
				if !IsSecure(wsURL) && (loc.Scheme == "https" || loc.Scheme == "wss") {
					return fmt.Errorf("%w: hub redirects to %s", ErrInsecureSchemeMismatch, loc.Scheme)
				}
			}
		}
		if resp.StatusCode == http.StatusBadRequest && !IsSecure(wsURL) && resp.Body != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			if strings.Contains(strings.ToLower(string(body)), "https") {
				return fmt.Errorf("%w: hub requires TLS", ErrInsecureSchemeMismatch)
			}
		}
		return fmt.Errorf("%w: %s: HTTP %d", ErrCannotConnect, wsURL, resp.StatusCode)
	}

	return fmt.Errorf("%w: %s: %v", ErrCannotConnect, wsURL, err)
}
