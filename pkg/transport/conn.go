package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hassbridge/hassbridge-go/pkg/log"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// closeGracePeriod bounds the close handshake write.
const closeGracePeriod = time.Second

// Conn is an authenticated hub socket. It is owned by a single session and
// is never reused after Close.
type Conn struct {
	ws     *websocket.Conn
	id     string
	url    string
	server string
	plog   log.Logger

	mu         sync.RWMutex
	hubVersion string

	closeOnce sync.Once
	closeCh   chan struct{}
	writeMu   sync.Mutex
	readMu    sync.Mutex
}

func newConn(ws *websocket.Conn, id, url, server string, plog log.Logger) *Conn {
	return &Conn{
		ws:      ws,
		id:      id,
		url:     url,
		server:  server,
		plog:    log.OrNoop(plog),
		closeCh: make(chan struct{}),
	}
}

// ID returns the connection id used in protocol capture.
func (c *Conn) ID() string {
	return c.id
}

// URL returns the socket URL.
func (c *Conn) URL() string {
	return c.url
}

// HubVersion returns the version the hub announced during auth.
func (c *Conn) HubVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hubVersion
}

func (c *Conn) setHubVersion(v string) {
	c.mu.Lock()
	c.hubVersion = v
	c.mu.Unlock()
}

// Send encodes v as JSON and writes it as one text frame.
func (c *Conn) Send(v any) error {
	data, err := wire.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw writes pre-encoded JSON as one text frame.
func (c *Conn) SendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionLost
	default:
	}

	c.logFrame(log.DirectionOut, data)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnectionLost, err)
	}
	return nil
}

// ReadFrame blocks for the next frame. A frame that cannot be decoded
// returns ErrMalformedFrame and leaves the socket usable; any other error
// means the socket is gone.
func (c *Conn) ReadFrame() (*wire.Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	c.logFrame(log.DirectionIn, data)

	frame, err := wire.DecodeFrame(data)
	if err != nil {
		return nil, errors.Join(ErrMalformedFrame, err)
	}
	return frame, nil
}

// Close sends a close frame and tears the socket down. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

func (c *Conn) logFrame(dir log.Direction, data []byte) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Server:       c.server,
		RemoteAddr:   c.url,
		Frame:        log.NewFrameEvent(data),
	})
}

func (c *Conn) logControl(dir log.Direction, typ log.ControlMsgType) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryControl,
		Server:       c.server,
		RemoteAddr:   c.url,
		ControlMsg:   &log.ControlMsgEvent{Type: typ},
	})
}
