package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// Client errors.
var (
	ErrRequestTimeout  = errors.New("request timed out")
	ErrClientClosed    = errors.New("client is closed")
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// DefaultTimeout bounds a single command round trip.
const DefaultTimeout = 30 * time.Second

// FrameSender writes one encoded frame to the hub.
type FrameSender interface {
	SendRaw(data []byte) error
}

// EventHandler receives events delivered on a subscription. It runs on the
// session's reader goroutine and must not block.
type EventHandler func(id uint64, event *wire.EventMessage)

// ResultHook receives a successful result on the session's reader goroutine,
// before any later frame is routed. It must not block.
type ResultHook func(result json.RawMessage)

// pendingReply is a request waiting for its result frame.
type pendingReply struct {
	ch   chan *wire.Frame
	hook ResultHook
}

// Client issues commands over one hub session and routes the replies.
// Each command gets the next integer id; results and events are matched back
// by id in HandleFrame.
type Client struct {
	mu sync.RWMutex

	sender  FrameSender
	timeout time.Duration
	closed  bool

	nextID atomic.Uint64

	// Pending requests awaiting results
	pending   map[uint64]pendingReply
	pendingMu sync.Mutex

	// Event handlers by subscription id
	handlers   map[uint64]EventHandler
	handlersMu sync.RWMutex
}

// NewClient creates a command client writing through sender.
func NewClient(sender FrameSender) *Client {
	return &Client{
		sender:   sender,
		timeout:  DefaultTimeout,
		pending:  make(map[uint64]pendingReply),
		handlers: make(map[uint64]EventHandler),
	}
}

// SetTimeout sets the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Close fails all pending requests with ErrClientClosed and drops every
// event handler.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	c.pendingMu.Lock()
	for _, p := range c.pending {
		close(p.ch)
	}
	c.pending = make(map[uint64]pendingReply)
	c.pendingMu.Unlock()

	c.handlersMu.Lock()
	c.handlers = make(map[uint64]EventHandler)
	c.handlersMu.Unlock()

	return nil
}

// Pending returns the number of requests awaiting a result.
func (c *Client) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// HandleFrame routes an inbound frame. Results and pongs complete the
// matching request; events go to the subscription's handler. Frames that
// match nothing return ErrUnexpectedReply.
func (c *Client) HandleFrame(frame *wire.Frame) error {
	switch {
	case frame.IsResult():
		c.pendingMu.Lock()
		p, exists := c.pending[frame.ID]
		if exists {
			delete(c.pending, frame.ID)
		}
		c.pendingMu.Unlock()

		if !exists {
			return ErrUnexpectedReply
		}
		if p.hook != nil && frame.Type == wire.TypeResult && frame.Success {
			p.hook(frame.Result)
		}
		p.ch <- frame
		return nil

	case frame.Type == wire.TypeEvent:
		if frame.Event == nil {
			return ErrUnexpectedReply
		}
		c.handlersMu.RLock()
		handler, exists := c.handlers[frame.ID]
		c.handlersMu.RUnlock()

		if !exists {
			return ErrUnexpectedReply
		}
		handler(frame.ID, frame.Event)
		return nil

	default:
		return ErrUnexpectedReply
	}
}

// Send issues an arbitrary command and returns the raw result. A failed
// result is returned as *ResultError.
func (c *Client) Send(ctx context.Context, cmd wire.Command) (json.RawMessage, error) {
	_, result, err := c.send(ctx, cmd, nil, nil)
	return result, err
}

// SendOrdered is Send with hook run on a successful result in frame order,
// so whatever hook enqueues lands ahead of events read after the result.
func (c *Client) SendOrdered(ctx context.Context, cmd wire.Command, hook ResultHook) (json.RawMessage, error) {
	_, result, err := c.send(ctx, cmd, nil, hook)
	return result, err
}

// send assigns an id, registers the pending reply (and optionally an event
// handler under the same id) and waits for the result.
func (c *Client) send(ctx context.Context, cmd wire.Command, handler EventHandler, hook ResultHook) (uint64, json.RawMessage, error) {
	if err := cmd.Validate(); err != nil {
		return 0, nil, err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return 0, nil, ErrClientClosed
	}
	timeout := c.timeout
	id := c.nextID.Add(1)

	respCh := make(chan *wire.Frame, 1)
	c.pendingMu.Lock()
	c.pending[id] = pendingReply{ch: respCh, hook: hook}
	c.pendingMu.Unlock()

	if handler != nil {
		c.handlersMu.Lock()
		c.handlers[id] = handler
		c.handlersMu.Unlock()
	}
	c.mu.RUnlock()

	cleanup := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if handler != nil {
			c.removeHandler(id)
		}
	}

	data, err := wire.EncodeCommand(id, cmd)
	if err != nil {
		cleanup()
		return 0, nil, err
	}
	if err := c.sender.SendRaw(data); err != nil {
		cleanup()
		return 0, nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		cleanup()
		return 0, nil, ctx.Err()
	case <-timer.C:
		cleanup()
		return 0, nil, fmt.Errorf("%w: %s", ErrRequestTimeout, cmd.Type())
	case frame, ok := <-respCh:
		if !ok {
			return 0, nil, ErrClientClosed
		}
		if frame.Type == wire.TypePong {
			return id, nil, nil
		}
		if !frame.Success {
			if handler != nil {
				c.removeHandler(id)
			}
			return 0, nil, resultError(frame.Error)
		}
		return id, frame.Result, nil
	}
}

func (c *Client) removeHandler(id uint64) {
	c.handlersMu.Lock()
	delete(c.handlers, id)
	c.handlersMu.Unlock()
}

// SubscribeEvents subscribes to eventType, or to every event type when
// eventType is empty or wire.AllEvents. Events are passed to handler until
// the returned subscription is released.
func (c *Client) SubscribeEvents(ctx context.Context, eventType string, handler EventHandler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil event handler")
	}
	id, _, err := c.send(ctx, wire.SubscribeEvents(eventType), handler, nil)
	if err != nil {
		return nil, err
	}
	if eventType == "" {
		eventType = wire.AllEvents
	}
	return &Subscription{ID: id, EventType: eventType, client: c}, nil
}

// UnsubscribeEvents cancels the subscription with the given id. The local
// handler is removed even if the hub rejects the command.
func (c *Client) UnsubscribeEvents(ctx context.Context, subscriptionID uint64) error {
	c.removeHandler(subscriptionID)
	_, err := c.Send(ctx, wire.UnsubscribeEvents(subscriptionID))
	return err
}

// GetStates returns every entity state.
func (c *Client) GetStates(ctx context.Context) ([]wire.EntityState, error) {
	var states []wire.EntityState
	if err := c.query(ctx, wire.Simple(wire.CmdGetStates), &states); err != nil {
		return nil, err
	}
	return states, nil
}

// GetServices returns the service registry.
func (c *Client) GetServices(ctx context.Context) (wire.Services, error) {
	var services wire.Services
	if err := c.query(ctx, wire.Simple(wire.CmdGetServices), &services); err != nil {
		return nil, err
	}
	return services, nil
}

// GetConfig returns the hub configuration.
func (c *Client) GetConfig(ctx context.Context) (*wire.HubConfig, error) {
	var cfg wire.HubConfig
	if err := c.query(ctx, wire.Simple(wire.CmdGetConfig), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CallService invokes domain.service with optional service data.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) (json.RawMessage, error) {
	return c.Send(ctx, wire.CallService(domain, service, data))
}

// CurrentUser returns the user the session authenticated as.
func (c *Client) CurrentUser(ctx context.Context) (*wire.CurrentUser, error) {
	var user wire.CurrentUser
	if err := c.query(ctx, wire.Simple(wire.CmdCurrentUser), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Ping sends a ping command and waits for the pong.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Send(ctx, wire.Simple(wire.CmdPing))
	return err
}

// IntegrationVersion queries the companion integration's version.
func (c *Client) IntegrationVersion(ctx context.Context) (int, error) {
	var res wire.IntegrationVersionResult
	if err := c.query(ctx, wire.Simple(wire.CmdIntegrationVersion), &res); err != nil {
		return 0, err
	}
	return wire.ParseVersion(res.Version), nil
}

func (c *Client) query(ctx context.Context, cmd wire.Command, out any) error {
	raw, err := c.Send(ctx, cmd)
	if err != nil {
		return err
	}
	if wire.IsEmptyPayload(raw) {
		return nil
	}
	if err := wire.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnexpectedReply, cmd.Type(), err)
	}
	return nil
}

// ResultError is a failed command result reported by the hub.
type ResultError struct {
	Code    string
	Message string
}

func (e *ResultError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func resultError(info *wire.ErrorInfo) error {
	if info == nil {
		return &ResultError{Code: "unknown_error"}
	}
	return &ResultError{Code: info.Code, Message: info.Message}
}
