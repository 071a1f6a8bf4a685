package interactive

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassbridge/hassbridge-go/pkg/events"
	"github.com/hassbridge/hassbridge-go/pkg/service"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

func newTestConsole(t *testing.T, names ...string) (*Console, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c := &Console{out: &buf, listeners: make(map[string]listener)}
	for _, name := range names {
		cfg := service.DefaultConfig()
		cfg.Name = name
		cfg.BaseURL = "http://127.0.0.1:1"
		cfg.Credential = "token"
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		client, err := service.NewHubClient(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		c.Attach(client)
	}
	return c, &buf
}

func TestParseServiceCall(t *testing.T) {
	domain, svc, data, err := parseServiceCall(`light.turn_on {"entity_id": "light.kitchen", "brightness": 120}`)
	require.NoError(t, err)
	assert.Equal(t, "light", domain)
	assert.Equal(t, "turn_on", svc)
	assert.Equal(t, map[string]any{"entity_id": "light.kitchen", "brightness": float64(120)}, data)

	_, _, data, err = parseServiceCall("homeassistant.restart")
	require.NoError(t, err)
	assert.Nil(t, data)

	_, _, _, err = parseServiceCall("no_dot")
	assert.Error(t, err)
	_, _, _, err = parseServiceCall(`light.turn_on {broken`)
	assert.ErrorContains(t, err, "invalid service data")
}

func TestParseCommand(t *testing.T) {
	cmd, err := parseCommand(`{"id": 99, "type": "get_config"}`)
	require.NoError(t, err)
	assert.Equal(t, "get_config", cmd.Type())
	assert.NotContains(t, cmd, "id")

	_, err = parseCommand(`{"foo": 1}`)
	assert.Error(t, err)
	_, err = parseCommand("")
	assert.Error(t, err)
	_, err = parseCommand("not json")
	assert.ErrorContains(t, err, "invalid command")
}

func TestFormatPayload(t *testing.T) {
	assert.Equal(t, `state_changed light.kitchen {"a":1}`,
		formatPayload(events.Envelope{EventType: "state_changed", EntityID: "light.kitchen", Data: map[string]any{"a": 1}}))
	assert.Equal(t, `custom null`, formatPayload(events.Envelope{EventType: "custom"}))
	assert.Equal(t, "loaded version=3", formatPayload(events.IntegrationStatus{Type: "loaded", Version: 3}))
	assert.Equal(t, "config refreshed after core_config_updated",
		formatPayload(events.ConfigUpdate{Cause: "core_config_updated", Config: &wire.HubConfig{}}))
	assert.Equal(t, "", formatPayload(nil))
	assert.Equal(t, "42", formatPayload(42))
}

func TestExecuteWithoutHub(t *testing.T) {
	c, buf := newTestConsole(t)
	ctx := context.Background()

	assert.False(t, c.Execute(ctx, "status"))
	assert.Contains(t, buf.String(), "No hub configured")

	buf.Reset()
	assert.False(t, c.Execute(ctx, "frobnicate"))
	assert.Contains(t, buf.String(), "Unknown command: frobnicate")

	assert.False(t, c.Execute(ctx, "   "))
	assert.True(t, c.Execute(ctx, "quit"))
}

func TestExecuteDisconnectedHub(t *testing.T) {
	c, buf := newTestConsole(t, "home", "cabin")
	ctx := context.Background()

	c.Execute(ctx, "servers")
	assert.Contains(t, buf.String(), "* 1. home")
	assert.Contains(t, buf.String(), "  2. cabin")

	buf.Reset()
	c.Execute(ctx, "use cabin")
	assert.Contains(t, buf.String(), "Using cabin")
	c.Execute(ctx, "use 1")
	assert.Contains(t, buf.String(), "Using home")
	c.Execute(ctx, "use nowhere")
	assert.Contains(t, buf.String(), "Unknown server: nowhere")

	buf.Reset()
	c.Execute(ctx, "status")
	assert.Contains(t, buf.String(), "State:        DISCONNECTED")

	buf.Reset()
	c.Execute(ctx, "states")
	assert.Contains(t, buf.String(), "No matching entities")

	buf.Reset()
	c.Execute(ctx, "call light.turn_on")
	assert.Contains(t, buf.String(), "Call failed")

	buf.Reset()
	c.Execute(ctx, `send {"type": "ping"}`)
	assert.Contains(t, buf.String(), "Send failed")

	buf.Reset()
	c.Execute(ctx, "subscribe door_open")
	assert.Contains(t, buf.String(), "door_open")
	c.Execute(ctx, "events")
	assert.Contains(t, buf.String(), "Desired: door_open")
}

func TestListenUnlisten(t *testing.T) {
	c, buf := newTestConsole(t, "home")
	ctx := context.Background()
	client := c.client()

	c.Execute(ctx, "listen custom")
	assert.Equal(t, 1, client.Bus().Count("custom"))

	c.Execute(ctx, "listen custom")
	assert.Contains(t, buf.String(), "Already listening on custom")

	client.Bus().Publish("custom", "hello")
	assert.Contains(t, buf.String(), "[custom] hello")

	c.Execute(ctx, "unlisten custom")
	assert.Equal(t, 0, client.Bus().Count("custom"))

	buf.Reset()
	c.Execute(ctx, "unlisten custom")
	assert.Contains(t, buf.String(), "Not listening on custom")
}
