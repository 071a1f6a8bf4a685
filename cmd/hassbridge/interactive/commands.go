package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/events"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

const commandTimeout = 10 * time.Second

func (c *Console) cmdServers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.clients) == 0 {
		fmt.Fprintln(c.out, "No hub configured")
		return
	}
	for i, client := range c.clients {
		marker := " "
		if i == c.current {
			marker = "*"
		}
		fmt.Fprintf(c.out, " %s %d. %-24s %s\n", marker, i+1, client.Name(), client.ConnectionState())
	}
}

func (c *Console) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: use <name|index>")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 && n <= len(c.clients) {
		c.current = n - 1
		fmt.Fprintf(c.out, "Using %s\n", c.clients[c.current].Name())
		return
	}
	for i, client := range c.clients {
		if client.Name() == args[0] {
			c.current = i
			fmt.Fprintf(c.out, "Using %s\n", client.Name())
			return
		}
	}
	fmt.Fprintf(c.out, "Unknown server: %s\n", args[0])
}

func (c *Console) cmdStatus() {
	client := c.requireClient()
	if client == nil {
		return
	}

	fmt.Fprintf(c.out, "\nServer:       %s\n", client.Name())
	fmt.Fprintf(c.out, "State:        %s\n", client.ConnectionState())
	if v := client.HubVersion(); v != "" {
		fmt.Fprintf(c.out, "Hub version:  %s\n", v)
	}
	if v := client.IntegrationVersion(); v > 0 {
		fmt.Fprintf(c.out, "Integration:  v%d\n", v)
	} else {
		fmt.Fprintln(c.out, "Integration:  not loaded")
	}
	fmt.Fprintf(c.out, "Entities:     %d\n", len(client.States()))
	fmt.Fprintf(c.out, "Domains:      %d\n", len(client.Services()))
	fmt.Fprintf(c.out, "Events:       %s\n", strings.Join(client.ActiveEvents(), ", "))
	if err := client.LastError(); err != nil {
		fmt.Fprintf(c.out, "Last error:   %v\n", err)
	}
}

func (c *Console) cmdStates(args []string) {
	client := c.requireClient()
	if client == nil {
		return
	}

	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	states := client.States()
	ids := make([]string, 0, len(states))
	for id := range states {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	if len(ids) == 0 {
		fmt.Fprintln(c.out, "No matching entities")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(c.out, "  %-48s %s\n", id, states[id].State)
	}
	fmt.Fprintf(c.out, "(%d entities)\n", len(ids))
}

func (c *Console) cmdState(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: state <entity_id>")
		return
	}
	client := c.requireClient()
	if client == nil {
		return
	}

	state, ok := client.State(args[0])
	if !ok {
		fmt.Fprintf(c.out, "Unknown entity: %s\n", args[0])
		return
	}
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(out))
}

func (c *Console) cmdServices(args []string) {
	client := c.requireClient()
	if client == nil {
		return
	}

	services := client.Services()
	if len(args) > 0 {
		svcs, ok := services[args[0]]
		if !ok {
			fmt.Fprintf(c.out, "Unknown domain: %s\n", args[0])
			return
		}
		names := make([]string, 0, len(svcs))
		for name := range svcs {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			fmt.Fprintf(c.out, "  %s.%-32s %s\n", args[0], name, svcs[name].Description)
		}
		return
	}

	domains := make([]string, 0, len(services))
	for domain := range services {
		domains = append(domains, domain)
	}
	slices.Sort(domains)
	for _, domain := range domains {
		fmt.Fprintf(c.out, "  %-24s %d services\n", domain, len(services[domain]))
	}
}

func (c *Console) cmdCall(ctx context.Context, rest string) {
	domain, svc, data, err := parseServiceCall(rest)
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		fmt.Fprintln(c.out, `  Example: call light.turn_on {"entity_id": "light.kitchen"}`)
		return
	}
	client := c.requireClient()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := client.CallService(ctx, domain, svc, data)
	if err != nil {
		fmt.Fprintf(c.out, "Call failed: %v\n", err)
		return
	}
	c.printResult(result)
}

func (c *Console) cmdSend(ctx context.Context, rest string) {
	cmd, err := parseCommand(rest)
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		fmt.Fprintln(c.out, `  Example: send {"type": "get_config"}`)
		return
	}
	client := c.requireClient()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	result, err := client.Send(ctx, cmd)
	if err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	c.printResult(result)
}

func (c *Console) cmdSubscribe(ctx context.Context, args []string) {
	client := c.requireClient()
	if client == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := client.SubscribeEvents(ctx, args); err != nil {
		fmt.Fprintf(c.out, "Subscribe failed: %v\n", err)
	}
	fmt.Fprintf(c.out, "Desired: %s\n", strings.Join(client.DesiredEvents(), ", "))
}

func (c *Console) cmdEvents() {
	client := c.requireClient()
	if client == nil {
		return
	}
	fmt.Fprintf(c.out, "Desired: %s\n", strings.Join(client.DesiredEvents(), ", "))
	fmt.Fprintf(c.out, "Active:  %s\n", strings.Join(client.ActiveEvents(), ", "))
}

func (c *Console) cmdListen(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: listen <topic>")
		return
	}
	client := c.requireClient()
	if client == nil {
		return
	}

	topic := args[0]
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.listeners[topic]; exists {
		fmt.Fprintf(c.out, "Already listening on %s\n", topic)
		return
	}
	id := client.On(topic, func(topic string, payload any) {
		fmt.Fprintf(c.out, "[%s] %s\n", topic, formatPayload(payload))
	})
	c.listeners[topic] = listener{client: client, id: id}
	fmt.Fprintf(c.out, "Listening on %s\n", topic)
}

func (c *Console) cmdUnlisten(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: unlisten <topic>")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listeners[args[0]]
	if !ok {
		fmt.Fprintf(c.out, "Not listening on %s\n", args[0])
		return
	}
	l.client.Off(args[0], l.id)
	delete(c.listeners, args[0])
}

func (c *Console) printResult(result json.RawMessage) {
	if len(result) == 0 || string(result) == "null" {
		fmt.Fprintln(c.out, "OK")
		return
	}
	var pretty any
	if err := json.Unmarshal(result, &pretty); err != nil {
		fmt.Fprintln(c.out, string(result))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Fprintln(c.out, string(out))
}

// parseServiceCall parses "<domain>.<service> [json object]".
func parseServiceCall(input string) (domain, svc string, data map[string]any, err error) {
	target, payload, _ := strings.Cut(strings.TrimSpace(input), " ")
	domain, svc, ok := strings.Cut(target, ".")
	if !ok || domain == "" || svc == "" {
		return "", "", nil, errors.New("usage: call <domain.service> [json]")
	}
	if payload = strings.TrimSpace(payload); payload != "" {
		if err := json.Unmarshal([]byte(payload), &data); err != nil {
			return "", "", nil, fmt.Errorf("invalid service data: %w", err)
		}
	}
	return domain, svc, data, nil
}

// parseCommand parses a raw command object. The id is assigned on send.
func parseCommand(input string) (wire.Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errors.New("usage: send <json>")
	}
	var cmd wire.Command
	if err := json.Unmarshal([]byte(input), &cmd); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}
	delete(cmd, "id")
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// formatPayload renders a bus payload on one line.
func formatPayload(payload any) string {
	switch p := payload.(type) {
	case events.Envelope:
		if p.EntityID != "" {
			return fmt.Sprintf("%s %s %s", p.EventType, p.EntityID, compactJSON(p.Data))
		}
		return fmt.Sprintf("%s %s", p.EventType, compactJSON(p.Data))
	case events.IntegrationStatus:
		return fmt.Sprintf("%s version=%d", p.Type, p.Version)
	case events.ConfigUpdate:
		return fmt.Sprintf("config refreshed after %s", p.Cause)
	case error:
		return p.Error()
	case nil:
		return ""
	default:
		return fmt.Sprint(p)
	}
}

func compactJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
