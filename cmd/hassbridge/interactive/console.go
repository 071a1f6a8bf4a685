// Package interactive provides the readline console for hassbridge.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/hassbridge/hassbridge-go/pkg/events"
	"github.com/hassbridge/hassbridge-go/pkg/service"
)

// Console handles interactive mode for hassbridge.
type Console struct {
	rl  *readline.Instance
	out io.Writer

	mu        sync.Mutex
	clients   []*service.HubClient
	current   int
	listeners map[string]listener
}

type listener struct {
	client *service.HubClient
	id     events.ListenerID
}

// New creates a console. Attach the hub clients before calling Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hass> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{
		rl:        rl,
		out:       rl.Stdout(),
		listeners: make(map[string]listener),
	}, nil
}

// Attach adds hub clients to the console. The first one becomes current.
func (c *Console) Attach(clients ...*service.HubClient) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = append(c.clients, clients...)
}

// Stdout returns a writer that coordinates with the readline prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that coordinates with the readline prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(ctx, line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "servers":
		c.cmdServers()

	case "use":
		c.cmdUse(args)

	case "status":
		c.cmdStatus()

	case "states", "ls":
		c.cmdStates(args)

	case "state", "get":
		c.cmdState(args)

	case "services":
		c.cmdServices(args)

	case "call":
		c.cmdCall(ctx, rest)

	case "send":
		c.cmdSend(ctx, rest)

	case "subscribe", "sub":
		c.cmdSubscribe(ctx, args)

	case "events":
		c.cmdEvents()

	case "listen":
		c.cmdListen(args)

	case "unlisten":
		c.cmdUnlisten(args)

	case "quit", "exit", "q":
		return true

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
hassbridge Commands:
  Servers:
    servers                           - List configured hubs
    use <name|index>                  - Select the hub the commands act on
    status                            - Show connection status

  Snapshot:
    states [prefix]                   - List cached entity states
    state <entity_id>                 - Show one entity with attributes
    services [domain]                 - List cached services

  Commands:
    call <domain.service> [json]      - Call a service with optional data
    send <json>                       - Send a raw command frame

  Events:
    subscribe <type> [type...]        - Replace the subscribed event types
    events                            - Show desired and active event types
    listen <topic>                    - Print everything published on a topic
    unlisten <topic>                  - Stop printing a topic

  General:
    help                              - Show this help
    quit                              - Exit

  Topics:
    events:all, events:<type>, events:<type>:<entity_id>, integration,
    client:open, client:close, client:error, states_loaded, services_loaded`)
}

// client returns the selected hub client, or nil if none is attached.
func (c *Console) client() *service.HubClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.clients) == 0 {
		return nil
	}
	return c.clients[c.current]
}

func (c *Console) requireClient() *service.HubClient {
	client := c.client()
	if client == nil {
		fmt.Fprintln(c.out, "No hub configured")
	}
	return client
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("servers"),
		readline.PcItem("use"),
		readline.PcItem("status"),
		readline.PcItem("states"),
		readline.PcItem("state"),
		readline.PcItem("services"),
		readline.PcItem("call"),
		readline.PcItem("send"),
		readline.PcItem("subscribe"),
		readline.PcItem("events"),
		readline.PcItem("listen",
			readline.PcItem(events.TopicAll),
			readline.PcItem(events.TopicIntegration),
			readline.PcItem(events.TopicConfigUpdate),
		),
		readline.PcItem("unlisten"),
		readline.PcItem("quit"),
	)
}
