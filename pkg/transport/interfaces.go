package transport

import (
	"context"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// FrameConn is an authenticated, frame-oriented hub socket.
// Implemented by Conn.
type FrameConn interface {
	// ID returns the connection id used in protocol capture.
	ID() string

	// HubVersion returns the version announced by the hub.
	HubVersion() string

	// Send encodes v as JSON and writes it as one frame.
	Send(v any) error

	// SendRaw writes an already encoded frame.
	SendRaw(data []byte) error

	// ReadFrame blocks for the next inbound frame.
	ReadFrame() (*wire.Frame, error)

	// Close tears the socket down.
	Close() error

	// Done is closed once Close has been called.
	Done() <-chan struct{}
}

// Dialer opens authenticated hub connections.
// Implemented by Client.
type Dialer interface {
	Dial(ctx context.Context) (*Conn, error)
}

// Compile-time interface satisfaction checks.
var (
	_ FrameConn = (*Conn)(nil)
	_ Dialer    = (*Client)(nil)
)
