// Command hassbridge connects to one or more hubs and relays their events.
//
// Usage:
//
//	hassbridge [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-url string           Hub base URL (overrides the config file)
//	-token string         Access token (default $HASSBRIDGE_TOKEN)
//	-events string        Comma separated event types to subscribe
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write a CBOR protocol capture to this file
//	-discover             Find the hub over mDNS when no URL is given
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Connect to one hub and follow state changes
//	hassbridge -url http://homeassistant.local:8123 -token $TOKEN -log-level debug
//
//	# Run every server in a config file
//	hassbridge -config /etc/hassbridge.yaml
//
//	# Interactive console with protocol capture
//	hassbridge -discover -interactive -protocol-log /tmp/hass.cbor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/hassbridge/hassbridge-go/cmd/hassbridge/interactive"
	"github.com/hassbridge/hassbridge-go/pkg/config"
	"github.com/hassbridge/hassbridge-go/pkg/discovery"
	"github.com/hassbridge/hassbridge-go/pkg/events"
	"github.com/hassbridge/hassbridge-go/pkg/log"
	"github.com/hassbridge/hassbridge-go/pkg/service"
)

// Flags holds the command line settings.
type Flags struct {
	ConfigFile  string
	URL         string
	Token       string
	Events      string
	LogLevel    string
	ProtocolLog string
	Discover    bool
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.URL, "url", "", "Hub base URL (overrides the config file)")
	flag.StringVar(&flags.Token, "token", "", "Access token (default $"+config.TokenEnv+")")
	flag.StringVar(&flags.Events, "events", "", "Comma separated event types to subscribe")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a CBOR protocol capture to this file")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the hub over mDNS when no URL is given")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hassbridge: %v\n", err)
		os.Exit(2)
	}

	var console *interactive.Console
	logOut := io.Writer(os.Stderr)
	if flags.Interactive {
		console, err = interactive.New()
		if err != nil {
			fmt.Fprintf(os.Stderr, "hassbridge: failed to create interactive console: %v\n", err)
			os.Exit(1)
		}
		// Route logs through readline so they do not clobber the prompt.
		logOut = console.Stderr()
	}

	logger := cfg.Logging.NewLogger(logOut)
	slog.SetDefault(logger)

	var protocolLogger log.Logger
	if cfg.Logging.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			logger.Error("failed to open protocol log", "path", cfg.Logging.ProtocolLog, "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = fileLogger.Close()
			logger.Info("protocol log closed", "path", cfg.Logging.ProtocolLog, "events", fileLogger.Written())
		}()
		protocolLogger = fileLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clients := make([]*service.HubClient, 0, len(cfg.Servers))
	for i := range cfg.Servers {
		client, err := newClient(ctx, &cfg.Servers[i], logger, protocolLogger)
		if err != nil {
			logger.Error("failed to create hub client", "server", cfg.Servers[i].Name, "error", err)
			os.Exit(1)
		}
		attachLogging(client, logger)
		clients = append(clients, client)
	}

	var wg sync.WaitGroup
	for _, client := range clients {
		wg.Add(1)
		go func(c *service.HubClient) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("hub client stopped", "server", c.Name(), "error", err)
			}
		}(client)
	}

	if console != nil {
		console.Attach(clients...)
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancel()
	wg.Wait()
}

// loadConfig merges the config file with command line overrides.
func loadConfig(f Flags) (*config.Config, error) {
	cfg := &config.Config{}
	if f.ConfigFile != "" {
		loaded, err := config.ReadFile(f.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.URL != "" || f.Discover || len(cfg.Servers) == 0 {
		if len(cfg.Servers) == 0 {
			cfg.Servers = append(cfg.Servers, config.Server{})
		}
		server := &cfg.Servers[0]
		if f.URL != "" {
			server.BaseURL = f.URL
		}
		server.Discover = server.Discover || f.Discover
	}
	if f.Token != "" {
		for i := range cfg.Servers {
			cfg.Servers[i].AccessToken = f.Token
		}
	}
	if f.Events != "" {
		types := splitList(f.Events)
		for i := range cfg.Servers {
			cfg.Servers[i].Events = types
		}
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	if f.ProtocolLog != "" {
		cfg.Logging.ProtocolLog = f.ProtocolLog
	}

	if err := cfg.Finalize(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(ctx context.Context, server *config.Server, logger *slog.Logger, protocolLogger log.Logger) (*service.HubClient, error) {
	baseURL := ""
	if server.BaseURL == "" && server.Discover {
		found, err := discoverHub(ctx, logger)
		if err != nil {
			return nil, err
		}
		baseURL = found
	}

	svcConfig := server.ServiceConfig(baseURL)
	svcConfig.Logger = logger.With("server", server.Name)
	svcConfig.ProtocolLogger = protocolLogger
	return service.NewHubClient(svcConfig)
}

func discoverHub(ctx context.Context, logger *slog.Logger) (string, error) {
	logger.Info("browsing for hubs", "service", discovery.ServiceType)
	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	defer browser.Stop()

	hub, err := browser.FindFirst(ctx)
	if err != nil {
		return "", fmt.Errorf("discovery: %w", err)
	}
	url := hub.URL()
	if url == "" {
		return "", fmt.Errorf("discovery: hub %q advertises no usable URL", hub.InstanceName)
	}
	logger.Info("discovered hub", "name", hub.LocationName, "version", hub.Version, "url", url)
	return url, nil
}

// attachLogging logs lifecycle and event topics.
func attachLogging(client *service.HubClient, logger *slog.Logger) {
	logger = logger.With("server", client.Name())

	client.On(events.TopicConnecting, func(string, any) {
		logger.Info("connecting")
	})
	client.On(events.TopicOpen, func(_ string, payload any) {
		logger.Info("connected", "version", payload)
	})
	client.On(events.TopicClose, func(_ string, payload any) {
		logger.Warn("connection closed", "error", payload)
	})
	client.On(events.TopicError, func(_ string, payload any) {
		logger.Error("connection error", "error", payload)
	})
	client.On(events.TopicStatesLoaded, func(_ string, payload any) {
		logger.Info("states loaded", "entities", payload)
	})
	client.On(events.TopicServicesLoaded, func(string, any) {
		logger.Info("services loaded", "domains", len(client.Services()))
	})
	client.On(events.TopicIntegration, func(_ string, payload any) {
		if status, ok := payload.(events.IntegrationStatus); ok {
			logger.Info("integration status", "type", status.Type, "version", status.Version)
		}
	})
	client.On(events.TopicAll, func(_ string, payload any) {
		if env, ok := payload.(events.Envelope); ok {
			logger.Debug("event", "type", env.EventType, "entity", env.EntityID)
		}
	})
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
