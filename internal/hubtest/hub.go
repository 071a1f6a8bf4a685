// Package hubtest provides an in-process fake hub WebSocket server for tests.
//
// The fake speaks enough of the hub's WebSocket API for the bridge: the auth
// handshake, subscribe/unsubscribe, bulk queries, call_service, current user,
// ping and the integration version command. Tests push events with Fire,
// break sessions with Drop and stall commands with Hold.
package hubtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// DefaultToken is the access token the hub accepts unless overridden.
const DefaultToken = "test-token"

// DefaultVersion is the ha_version the hub announces.
const DefaultVersion = "2026.10.1"

// Option configures a Hub.
type Option func(*Hub)

// WithToken sets the accepted credential.
func WithToken(token string) Option {
	return func(h *Hub) { h.token = token }
}

// WithLegacyPassword makes the hub expect api_password instead of access_token.
func WithLegacyPassword(password string) Option {
	return func(h *Hub) {
		h.token = password
		h.legacy = true
	}
}

// WithAdmin sets the is_admin flag reported by auth/current_user.
func WithAdmin(admin bool) Option {
	return func(h *Hub) { h.admin = admin }
}

// WithTLS serves over TLS with a self-signed certificate.
func WithTLS() Option {
	return func(h *Hub) { h.tls = true }
}

// WithoutPong makes the hub ignore ping commands.
func WithoutPong() Option {
	return func(h *Hub) { h.noPong = true }
}

// Hub is a fake hub server.
type Hub struct {
	t      testing.TB
	server *httptest.Server

	token  string
	legacy bool
	tls    bool
	noPong bool

	mu                 sync.Mutex
	admin              bool
	states             []wire.EntityState
	services           wire.Services
	config             wire.HubConfig
	integrationVersion any
	callServiceError   *wire.ErrorInfo
	sessions           map[*session]struct{}
	commands           []wire.Command
	authAttempts       int
	commandCh          chan wire.Command
	held               map[string]bool
	afterReply         map[string]func()
}

type session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[uint64]string
}

// New starts a fake hub and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Hub {
	t.Helper()

	h := &Hub{
		t:        t,
		token:    DefaultToken,
		admin:    true,
		services: wire.Services{},
		config: wire.HubConfig{
			Components:   []string{"http", "websocket_api"},
			Version:      DefaultVersion,
			LocationName: "Test Home",
			TimeZone:     "UTC",
			State:        "RUNNING",
		},
		sessions:   make(map[*session]struct{}),
		commandCh:  make(chan wire.Command, 256),
		held:       make(map[string]bool),
		afterReply: make(map[string]func()),
	}
	for _, opt := range opts {
		opt(h)
	}

	handler := http.NewServeMux()
	handler.HandleFunc("/api/websocket", h.serveWebSocket)

	if h.tls {
		h.server = httptest.NewTLSServer(handler)
	} else {
		h.server = httptest.NewServer(handler)
	}
	t.Cleanup(h.Close)
	return h
}

// URL returns the hub's HTTP(S) base URL.
func (h *Hub) URL() string {
	return h.server.URL
}

// Close drops all sessions and stops the server.
func (h *Hub) Close() {
	h.Drop()
	h.server.Close()
}

// SetAdmin changes the is_admin flag for subsequent current-user queries.
func (h *Hub) SetAdmin(admin bool) {
	h.mu.Lock()
	h.admin = admin
	h.mu.Unlock()
}

// SetStates sets the get_states result.
func (h *Hub) SetStates(states ...wire.EntityState) {
	h.mu.Lock()
	h.states = states
	h.mu.Unlock()
}

// SetServices sets the get_services result.
func (h *Hub) SetServices(services wire.Services) {
	h.mu.Lock()
	h.services = services
	h.mu.Unlock()
}

// SetComponents sets the components list reported by get_config.
func (h *Hub) SetComponents(components ...string) {
	h.mu.Lock()
	h.config.Components = components
	h.mu.Unlock()
}

// SetIntegrationVersion sets the nodered/version result. nil makes the
// command fail with unknown_command.
func (h *Hub) SetIntegrationVersion(v any) {
	h.mu.Lock()
	h.integrationVersion = v
	h.mu.Unlock()
}

// FailCallService makes call_service fail with the given code and message.
// An empty code restores success.
func (h *Hub) FailCallService(code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if code == "" {
		h.callServiceError = nil
		return
	}
	h.callServiceError = &wire.ErrorInfo{Code: code, Message: message}
}

// Hold makes the hub swallow commands of the given types without answering.
func (h *Hub) Hold(types ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, typ := range types {
		h.held[typ] = true
	}
}

// AfterReply runs fn right after the hub answers a command of type typ,
// before it reads the next command. Frames fn writes follow the reply on
// the wire.
func (h *Hub) AfterReply(typ string, fn func()) {
	h.mu.Lock()
	h.afterReply[typ] = fn
	h.mu.Unlock()
}

// AuthAttempts returns the number of auth frames received.
func (h *Hub) AuthAttempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authAttempts
}

// Sessions returns the number of authenticated open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Commands returns every command received so far, in arrival order.
func (h *Hub) Commands() []wire.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]wire.Command, len(h.commands))
	copy(out, h.commands)
	return out
}

// CommandsOfType returns the received commands with the given type.
func (h *Hub) CommandsOfType(typ string) []wire.Command {
	var out []wire.Command
	for _, cmd := range h.Commands() {
		if cmd.Type() == typ {
			out = append(out, cmd)
		}
	}
	return out
}

// ResetCommands clears the command log.
func (h *Hub) ResetCommands() {
	h.mu.Lock()
	h.commands = nil
	h.mu.Unlock()
	for {
		select {
		case <-h.commandCh:
		default:
			return
		}
	}
}

// WaitForCommand blocks until a command of the given type arrives and
// returns it. It fails the test on timeout.
func (h *Hub) WaitForCommand(typ string, timeout time.Duration) wire.Command {
	h.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case cmd := <-h.commandCh:
			if cmd.Type() == typ {
				return cmd
			}
		case <-deadline:
			h.t.Fatalf("timeout waiting for %q command", typ)
			return nil
		}
	}
}

// Subscriptions returns the event types subscribed across open sessions.
// A wildcard subscription is reported as wire.AllEvents.
func (h *Hub) Subscriptions() []string {
	var out []string
	for _, s := range h.snapshotSessions() {
		s.mu.Lock()
		for _, typ := range s.subs {
			if typ == "" {
				typ = wire.AllEvents
			}
			out = append(out, typ)
		}
		s.mu.Unlock()
	}
	return out
}

// Fire delivers an event to every matching subscription on every session.
// It returns the number of frames written.
func (h *Hub) Fire(eventType string, data any) int {
	raw, err := json.Marshal(data)
	if err != nil {
		h.t.Fatalf("marshal event data: %v", err)
	}

	sent := 0
	for _, s := range h.snapshotSessions() {
		s.mu.Lock()
		var ids []uint64
		for id, typ := range s.subs {
			if typ == "" || typ == eventType {
				ids = append(ids, id)
			}
		}
		s.mu.Unlock()

		for _, id := range ids {
			frame := map[string]any{
				"id":   id,
				"type": wire.TypeEvent,
				"event": map[string]any{
					"event_type": eventType,
					"data":       json.RawMessage(raw),
					"origin":     "LOCAL",
					"time_fired": time.Now().UTC().Format(time.RFC3339Nano),
				},
			}
			if s.write(frame) == nil {
				sent++
			}
		}
	}
	return sent
}

// FireStateChanged delivers a state_changed event for newState.
func (h *Hub) FireStateChanged(oldState, newState *wire.EntityState) int {
	entityID := ""
	switch {
	case newState != nil:
		entityID = newState.EntityID
	case oldState != nil:
		entityID = oldState.EntityID
	}
	return h.Fire(wire.EventStateChanged, wire.StateChangedData{
		EntityID: entityID,
		OldState: oldState,
		NewState: newState,
	})
}

// Drop closes every open session without a close handshake.
func (h *Hub) Drop() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.ws.Close()
	}
}

func (h *Hub) snapshotSessions() []*session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func (h *Hub) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.t.Logf("hubtest: upgrade error: %v", err)
		return
	}
	s := &session{ws: ws, subs: make(map[uint64]string)}
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
		_ = ws.Close()
	}()

	if err := s.write(map[string]any{"type": wire.TypeAuthRequired, "ha_version": DefaultVersion}); err != nil {
		return
	}
	if !h.authenticate(s) {
		return
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var cmd wire.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		h.record(cmd)

		h.mu.Lock()
		held := h.held[cmd.Type()]
		after := h.afterReply[cmd.Type()]
		h.mu.Unlock()
		if held {
			continue
		}
		h.handle(s, cmd)
		if after != nil {
			after()
		}
	}
}

func (h *Hub) authenticate(s *session) bool {
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return false
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil || msg["type"] != wire.TypeAuth {
		_ = s.write(map[string]any{"type": wire.TypeAuthInvalid, "message": "Auth message incorrectly formatted"})
		return false
	}

	h.mu.Lock()
	h.authAttempts++
	h.mu.Unlock()

	field := "access_token"
	if h.legacy {
		field = "api_password"
	}
	if cred, _ := msg[field].(string); cred != h.token {
		_ = s.write(map[string]any{"type": wire.TypeAuthInvalid, "message": "Invalid access token or password"})
		return false
	}

	return s.write(map[string]any{"type": wire.TypeAuthOK, "ha_version": DefaultVersion}) == nil
}

func (h *Hub) record(cmd wire.Command) {
	h.mu.Lock()
	h.commands = append(h.commands, cmd)
	h.mu.Unlock()
	select {
	case h.commandCh <- cmd:
	default:
	}
}

func (h *Hub) handle(s *session, cmd wire.Command) {
	id := commandID(cmd)

	switch cmd.Type() {
	case wire.CmdSubscribeEvents:
		eventType, _ := cmd["event_type"].(string)
		s.mu.Lock()
		s.subs[id] = eventType
		s.mu.Unlock()
		_ = s.result(id, nil)

	case wire.CmdUnsubscribeEvents:
		sub := uint64(0)
		if f, ok := cmd["subscription"].(float64); ok {
			sub = uint64(f)
		}
		s.mu.Lock()
		_, ok := s.subs[sub]
		delete(s.subs, sub)
		s.mu.Unlock()
		if !ok {
			_ = s.fail(id, "not_found", "Subscription not found.")
			return
		}
		_ = s.result(id, nil)

	case wire.CmdGetStates:
		h.mu.Lock()
		states := h.states
		h.mu.Unlock()
		if states == nil {
			states = []wire.EntityState{}
		}
		_ = s.result(id, states)

	case wire.CmdGetServices:
		h.mu.Lock()
		services := h.services
		h.mu.Unlock()
		_ = s.result(id, services)

	case wire.CmdGetConfig:
		h.mu.Lock()
		cfg := h.config
		h.mu.Unlock()
		_ = s.result(id, cfg)

	case wire.CmdCallService:
		h.mu.Lock()
		failure := h.callServiceError
		h.mu.Unlock()
		if failure != nil {
			_ = s.fail(id, failure.Code, failure.Message)
			return
		}
		_ = s.result(id, map[string]any{"context": map[string]any{"id": "ctx-" + strings.ToLower(time.Now().Format("150405.000000"))}})

	case wire.CmdCurrentUser:
		h.mu.Lock()
		admin := h.admin
		h.mu.Unlock()
		_ = s.result(id, wire.CurrentUser{ID: "user-1", Name: "bridge", IsOwner: admin, IsAdmin: admin})

	case wire.CmdPing:
		if h.noPong {
			return
		}
		_ = s.write(map[string]any{"id": id, "type": wire.TypePong})

	case wire.CmdIntegrationVersion:
		h.mu.Lock()
		v := h.integrationVersion
		h.mu.Unlock()
		if v == nil {
			_ = s.fail(id, "unknown_command", "Unknown command.")
			return
		}
		_ = s.result(id, wire.IntegrationVersionResult{Version: v})

	default:
		_ = s.fail(id, "unknown_command", "Unknown command.")
	}
}

func commandID(cmd wire.Command) uint64 {
	if f, ok := cmd["id"].(float64); ok {
		return uint64(f)
	}
	return 0
}

func (s *session) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *session) result(id uint64, result any) error {
	return s.write(map[string]any{"id": id, "type": wire.TypeResult, "success": true, "result": result})
}

func (s *session) fail(id uint64, code, message string) error {
	return s.write(map[string]any{
		"id":      id,
		"type":    wire.TypeResult,
		"success": false,
		"error":   map[string]any{"code": code, "message": message},
	})
}
