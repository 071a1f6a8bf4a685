package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// loopbackSender answers commands through a reply function, feeding the
// result back into the client the way a session reader would.
type loopbackSender struct {
	mu     sync.Mutex
	client *Client
	sent   []wire.Command
	reply  func(id uint64, cmd wire.Command) *wire.Frame
	err    error
}

func (s *loopbackSender) SendRaw(data []byte) error {
	if s.err != nil {
		return s.err
	}
	var cmd wire.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, cmd)
	s.mu.Unlock()

	id := uint64(cmd["id"].(float64))
	if s.reply == nil {
		return nil
	}
	frame := s.reply(id, cmd)
	if frame != nil {
		go func() { _ = s.client.HandleFrame(frame) }()
	}
	return nil
}

func (s *loopbackSender) commands() []wire.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.Command(nil), s.sent...)
}

func newLoopback(reply func(id uint64, cmd wire.Command) *wire.Frame) (*Client, *loopbackSender) {
	sender := &loopbackSender{reply: reply}
	client := NewClient(sender)
	sender.client = client
	return client, sender
}

func ok(id uint64, result any) *wire.Frame {
	raw, _ := json.Marshal(result)
	return &wire.Frame{ID: id, Type: wire.TypeResult, Success: true, Result: raw}
}

func fail(id uint64, code, msg string) *wire.Frame {
	return &wire.Frame{ID: id, Type: wire.TypeResult, Error: &wire.ErrorInfo{Code: code, Message: msg}}
}

func TestClientSend(t *testing.T) {
	client, sender := newLoopback(func(id uint64, cmd wire.Command) *wire.Frame {
		return ok(id, map[string]any{"echo": cmd.Type()})
	})

	raw, err := client.Send(context.Background(), wire.Command{"type": "config/area_registry/list"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got["echo"] != "config/area_registry/list" {
		t.Errorf("echo = %q", got["echo"])
	}

	cmds := sender.commands()
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1", len(cmds))
	}
	if cmds[0]["id"].(float64) != 1 {
		t.Errorf("first id = %v, want 1", cmds[0]["id"])
	}
	if client.Pending() != 0 {
		t.Errorf("pending = %d after completion", client.Pending())
	}
}

func TestClientIDsIncrease(t *testing.T) {
	client, sender := newLoopback(func(id uint64, _ wire.Command) *wire.Frame { return ok(id, nil) })

	for i := 0; i < 3; i++ {
		if _, err := client.Send(context.Background(), wire.Simple(wire.CmdGetConfig)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	var prev float64
	for _, cmd := range sender.commands() {
		id := cmd["id"].(float64)
		if id <= prev {
			t.Errorf("id %v not greater than %v", id, prev)
		}
		prev = id
	}
}

func TestClientResultError(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return fail(id, "service_not_found", "Service light.explode not found.")
	})

	_, err := client.CallService(context.Background(), "light", "explode", nil)
	var re *ResultError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *ResultError", err)
	}
	if re.Code != "service_not_found" {
		t.Errorf("Code = %q", re.Code)
	}
	if re.Error() != "service_not_found: Service light.explode not found." {
		t.Errorf("Error() = %q", re.Error())
	}
}

func TestClientResultErrorWithoutInfo(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return &wire.Frame{ID: id, Type: wire.TypeResult}
	})

	_, err := client.Send(context.Background(), wire.Simple(wire.CmdGetStates))
	var re *ResultError
	if !errors.As(err, &re) || re.Code != "unknown_error" {
		t.Errorf("error = %v, want unknown_error", err)
	}
}

func TestClientTimeout(t *testing.T) {
	client, _ := newLoopback(nil)
	client.SetTimeout(20 * time.Millisecond)

	_, err := client.Send(context.Background(), wire.Simple(wire.CmdGetStates))
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("error = %v, want ErrRequestTimeout", err)
	}
	if client.Pending() != 0 {
		t.Errorf("pending = %d after timeout", client.Pending())
	}
}

func TestClientContextCancel(t *testing.T) {
	client, _ := newLoopback(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Send(ctx, wire.Simple(wire.CmdGetStates))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClientClose(t *testing.T) {
	client, _ := newLoopback(nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Send(context.Background(), wire.Simple(wire.CmdGetStates))
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for client.Pending() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	_ = client.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClientClosed) {
			t.Errorf("error = %v, want ErrClientClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pending request not released by Close")
	}

	if _, err := client.Send(context.Background(), wire.Simple(wire.CmdPing)); !errors.Is(err, ErrClientClosed) {
		t.Errorf("send after close = %v, want ErrClientClosed", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClientSendOrdered(t *testing.T) {
	client, sender := newLoopback(nil)

	var mu sync.Mutex
	var order []string
	note := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	client.handlersMu.Lock()
	client.handlers[99] = func(uint64, *wire.EventMessage) { note("event") }
	client.handlersMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendOrdered(context.Background(), wire.Simple(wire.CmdGetStates), func(raw json.RawMessage) {
			note("result " + string(raw))
		})
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for len(sender.commands()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cmds := sender.commands()
	if len(cmds) != 1 {
		t.Fatalf("sent %d commands, want 1", len(cmds))
	}
	id := uint64(cmds[0]["id"].(float64))

	// result and the next event are routed back to back by one reader
	if err := client.HandleFrame(ok(id, []string{})); err != nil {
		t.Fatalf("HandleFrame result: %v", err)
	}
	if err := client.HandleFrame(&wire.Frame{ID: 99, Type: wire.TypeEvent, Event: &wire.EventMessage{EventType: wire.EventStateChanged}}); err != nil {
		t.Fatalf("HandleFrame event: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("SendOrdered: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "result []" || order[1] != "event" {
		t.Errorf("order = %v, want [result [] event]", order)
	}
}

func TestClientSendOrderedSkipsFailure(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return fail(id, "unknown_command", "Unknown command.")
	})

	called := false
	_, err := client.SendOrdered(context.Background(), wire.Simple(wire.CmdGetStates), func(json.RawMessage) {
		called = true
	})
	var resErr *ResultError
	if !errors.As(err, &resErr) {
		t.Fatalf("error = %v, want *ResultError", err)
	}
	if called {
		t.Error("hook must not run for a failed result")
	}
}

func TestClientSendError(t *testing.T) {
	client, sender := newLoopback(nil)
	sender.err = errors.New("socket gone")

	_, err := client.Send(context.Background(), wire.Simple(wire.CmdPing))
	if err == nil || err.Error() != "socket gone" {
		t.Errorf("error = %v", err)
	}
	if client.Pending() != 0 {
		t.Errorf("pending = %d after send failure", client.Pending())
	}
}

func TestClientInvalidCommand(t *testing.T) {
	client, sender := newLoopback(nil)

	if _, err := client.Send(context.Background(), wire.Command{"domain": "light"}); err == nil {
		t.Error("expected error for command without type")
	}
	if len(sender.commands()) != 0 {
		t.Error("invalid command must not be sent")
	}
}

func TestClientPing(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return &wire.Frame{ID: id, Type: wire.TypePong}
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestClientQueries(t *testing.T) {
	client, _ := newLoopback(func(id uint64, cmd wire.Command) *wire.Frame {
		switch cmd.Type() {
		case wire.CmdGetStates:
			return ok(id, []wire.EntityState{{EntityID: "light.kitchen", State: "on"}})
		case wire.CmdGetServices:
			return ok(id, wire.Services{"light": {"turn_on": {Description: "Turn on"}}})
		case wire.CmdGetConfig:
			return ok(id, wire.HubConfig{Components: []string{"nodered"}, Version: "2026.10.1"})
		case wire.CmdCurrentUser:
			return ok(id, wire.CurrentUser{ID: "u1", IsAdmin: true})
		case wire.CmdIntegrationVersion:
			return ok(id, map[string]any{"version": "4.1.2"})
		}
		return fail(id, "unknown_command", "Unknown command.")
	})
	ctx := context.Background()

	states, err := client.GetStates(ctx)
	if err != nil || len(states) != 1 || states[0].EntityID != "light.kitchen" {
		t.Errorf("GetStates = %v, %v", states, err)
	}

	services, err := client.GetServices(ctx)
	if err != nil || services["light"]["turn_on"].Description != "Turn on" {
		t.Errorf("GetServices = %v, %v", services, err)
	}

	cfg, err := client.GetConfig(ctx)
	if err != nil || !cfg.HasComponent("nodered") {
		t.Errorf("GetConfig = %+v, %v", cfg, err)
	}

	user, err := client.CurrentUser(ctx)
	if err != nil || !user.IsAdmin {
		t.Errorf("CurrentUser = %+v, %v", user, err)
	}

	version, err := client.IntegrationVersion(ctx)
	if err != nil || version != 4 {
		t.Errorf("IntegrationVersion = %d, %v", version, err)
	}
}

func TestClientMalformedResult(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return ok(id, "not a list")
	})

	_, err := client.GetStates(context.Background())
	if !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("error = %v, want ErrUnexpectedReply", err)
	}
}

func TestClientSubscribeEvents(t *testing.T) {
	client, sender := newLoopback(func(id uint64, _ wire.Command) *wire.Frame { return ok(id, nil) })
	ctx := context.Background()

	events := make(chan string, 4)
	sub, err := client.SubscribeEvents(ctx, wire.EventStateChanged, func(_ uint64, ev *wire.EventMessage) {
		events <- ev.EventType
	})
	if err != nil {
		t.Fatalf("SubscribeEvents: %v", err)
	}
	if sub.EventType != wire.EventStateChanged {
		t.Errorf("EventType = %q", sub.EventType)
	}

	frame := &wire.Frame{ID: sub.ID, Type: wire.TypeEvent, Event: &wire.EventMessage{EventType: wire.EventStateChanged}}
	if err := client.HandleFrame(frame); err != nil {
		t.Fatalf("HandleFrame: %v", err)
	}
	if got := <-events; got != wire.EventStateChanged {
		t.Errorf("event = %q", got)
	}

	other := &wire.Frame{ID: sub.ID + 100, Type: wire.TypeEvent, Event: &wire.EventMessage{EventType: "x"}}
	if err := client.HandleFrame(other); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("unknown subscription = %v, want ErrUnexpectedReply", err)
	}

	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe(ctx); err != nil {
		t.Fatalf("second Unsubscribe: %v", err)
	}
	if err := client.HandleFrame(frame); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("event after unsubscribe = %v, want ErrUnexpectedReply", err)
	}

	var unsubs int
	for _, cmd := range sender.commands() {
		if cmd.Type() == wire.CmdUnsubscribeEvents {
			unsubs++
			if uint64(cmd["subscription"].(float64)) != sub.ID {
				t.Errorf("unsubscribe id = %v, want %d", cmd["subscription"], sub.ID)
			}
		}
	}
	if unsubs != 1 {
		t.Errorf("unsubscribe sent %d times, want 1", unsubs)
	}
}

func TestClientSubscribeWildcard(t *testing.T) {
	client, sender := newLoopback(func(id uint64, _ wire.Command) *wire.Frame { return ok(id, nil) })

	sub, err := client.SubscribeEvents(context.Background(), wire.AllEvents, func(uint64, *wire.EventMessage) {})
	if err != nil {
		t.Fatalf("SubscribeEvents: %v", err)
	}
	if sub.EventType != wire.AllEvents {
		t.Errorf("EventType = %q", sub.EventType)
	}
	if _, has := sender.commands()[0]["event_type"]; has {
		t.Error("wildcard subscribe must omit event_type")
	}
}

func TestClientSubscribeRejected(t *testing.T) {
	client, _ := newLoopback(func(id uint64, _ wire.Command) *wire.Frame {
		return fail(id, "unauthorized", "Unauthorized")
	})

	_, err := client.SubscribeEvents(context.Background(), "secret", func(uint64, *wire.EventMessage) {})
	var re *ResultError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *ResultError", err)
	}

	frame := &wire.Frame{ID: 1, Type: wire.TypeEvent, Event: &wire.EventMessage{EventType: "secret"}}
	if err := client.HandleFrame(frame); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("handler kept after rejected subscribe: %v", err)
	}
}

func TestHandleFrameUnexpected(t *testing.T) {
	client, _ := newLoopback(nil)

	if err := client.HandleFrame(&wire.Frame{ID: 42, Type: wire.TypeResult, Success: true}); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("unmatched result = %v", err)
	}
	if err := client.HandleFrame(&wire.Frame{Type: "auth_ok"}); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("non-command frame = %v", err)
	}
	if err := client.HandleFrame(&wire.Frame{ID: 1, Type: wire.TypeEvent}); !errors.Is(err, ErrUnexpectedReply) {
		t.Errorf("event without body = %v", err)
	}
}
