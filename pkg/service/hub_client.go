package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hassbridge/hassbridge-go/pkg/connection"
	"github.com/hassbridge/hassbridge-go/pkg/events"
	"github.com/hassbridge/hassbridge-go/pkg/interaction"
	"github.com/hassbridge/hassbridge-go/pkg/snapshot"
	"github.com/hassbridge/hassbridge-go/pkg/subscription"
	"github.com/hassbridge/hassbridge-go/pkg/transport"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// housekeepingEvents are subscribed on every session, independently of the
// desired set, to keep the cached config and services current.
var housekeepingEvents = []string{
	wire.EventCoreConfigUpdated,
	wire.EventComponentLoaded,
	wire.EventServiceRegistered,
	wire.EventServiceRemoved,
}

// HubClient is the bridge's connection to one hub.
type HubClient struct {
	config Config
	logger *slog.Logger

	dialer     transport.Dialer
	machine    *connection.Machine
	supervisor *connection.Supervisor
	bus        *events.Bus
	cache      *snapshot.Cache
	dispatcher *events.Dispatcher
	mux        *subscription.Multiplexer

	mu         sync.RWMutex
	session    *hubSession
	hubVersion string
	closed     bool

	runStop context.CancelFunc
	runDone chan struct{}
}

// NewHubClient creates a client for one hub. Nothing is dialed until
// Connect, Start or Run.
func NewHubClient(config Config) (*HubClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()
	logger := config.Logger.With("server", config.Name)

	dialer, err := transport.NewClient(transport.ClientConfig{
		BaseURL:          config.BaseURL,
		Credential:       config.Credential,
		Legacy:           config.Legacy,
		TLS:              config.TLS,
		HandshakeTimeout: config.HandshakeTimeout,
		ServerName:       config.Name,
		Logger:           logger,
		ProtocolLogger:   config.ProtocolLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return newHubClient(config, logger, dialer), nil
}

func newHubClient(config Config, logger *slog.Logger, dialer transport.Dialer) *HubClient {
	c := &HubClient{
		config:  config,
		logger:  logger,
		dialer:  dialer,
		machine: connection.NewMachine(),
		bus:     events.NewBus(logger),
		cache:   snapshot.New(),
		runDone: make(chan struct{}),
	}
	c.dispatcher = events.NewDispatcher(c.bus, c.cache, logger)
	c.mux = subscription.NewMultiplexer(eventHandler(c.dispatcher.Enqueue), logger)
	if len(config.Events) > 0 {
		_ = c.mux.SetDesired(context.Background(), config.Events)
	}

	c.supervisor = connection.NewSupervisor(connection.SupervisorConfig{
		InitialDelay:     config.InitialDelay,
		SkipInitialDelay: config.SkipInitialDelay,
		Backoff: connection.NewBackoffWithConfig(connection.BackoffConfig{
			Initial:    config.RetryDelay,
			Max:        config.RetryMaxDelay,
			Multiplier: config.RetryMultiplier,
			Jitter:     config.RetryJitter,
		}),
		Logger: logger,
	}, c.machine, c.connectOnce)

	c.machine.OnTransition(c.handleTransition)
	c.cache.OnLoaded(func(kind snapshot.Kind) {
		switch kind {
		case snapshot.KindStates:
			c.bus.Publish(events.TopicStatesLoaded, c.cache.Len())
		case snapshot.KindServices:
			c.bus.Publish(events.TopicServicesLoaded, nil)
		}
	})

	return c
}

// Name returns the configured server name.
func (c *HubClient) Name() string {
	return c.config.Name
}

// Start launches the reconnect loop and the event dispatcher without
// waiting for a connection.
func (c *HubClient) Start() error {
	if err := c.startDispatcher(); err != nil {
		return err
	}
	c.supervisor.Start()
	return nil
}

// Connect starts the client if needed and waits for the first CONNECTED
// state. Retryable failures keep retrying in the background; a terminal
// failure (invalid auth, insufficient privilege, scheme mismatch, no host)
// is returned. Calling Connect again after a terminal failure starts over.
func (c *HubClient) Connect(ctx context.Context) error {
	if err := c.startDispatcher(); err != nil {
		return err
	}
	return c.supervisor.Connect(ctx)
}

// Run connects and blocks until ctx is done, then closes the client.
// It returns early with the error of a terminal connect failure.
func (c *HubClient) Run(ctx context.Context) error {
	defer c.Close()

	if err := c.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	<-ctx.Done()
	return nil
}

func (c *HubClient) startDispatcher() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.runStop != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.runStop = cancel
	go func() {
		defer close(c.runDone)
		c.dispatcher.Run(ctx)
	}()
	return nil
}

// Close stops reconnecting, closes the current session and stops event
// dispatch. Safe to call more than once.
func (c *HubClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stop := c.runStop
	c.mu.Unlock()

	err := c.supervisor.Close()
	if stop != nil {
		stop()
		<-c.runDone
	}

	c.logger.Info("hub client closed")
	return err
}

// ConnectionState returns the connection state.
func (c *HubClient) ConnectionState() connection.State {
	return c.machine.State()
}

// LastError returns the most recent connection error.
func (c *HubClient) LastError() error {
	return c.machine.LastError()
}

// HubVersion returns the version announced by the hub on the current or
// last session.
func (c *HubClient) HubVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hubVersion
}

// IntegrationVersion returns the companion integration version, 0 when it
// is not installed or not loaded.
func (c *HubClient) IntegrationVersion() int {
	return c.dispatcher.IntegrationVersion()
}

// State returns a copy of one entity's cached state.
func (c *HubClient) State(entityID string) (*wire.EntityState, bool) {
	return c.cache.State(entityID)
}

// States returns a copy of all cached entity states.
func (c *HubClient) States() map[string]*wire.EntityState {
	return c.cache.States()
}

// Services returns a copy of the cached service registry.
func (c *HubClient) Services() wire.Services {
	return c.cache.Services()
}

// On registers a listener on topic.
func (c *HubClient) On(topic string, handler events.Handler) events.ListenerID {
	return c.bus.On(topic, handler)
}

// Once registers a listener that fires at most once.
func (c *HubClient) Once(topic string, handler events.Handler) events.ListenerID {
	return c.bus.Once(topic, handler)
}

// Off removes a listener.
func (c *HubClient) Off(topic string, id events.ListenerID) bool {
	return c.bus.Off(topic, id)
}

// Bus returns the client's event bus.
func (c *HubClient) Bus() *events.Bus {
	return c.bus
}

// SubscribeEvents sets the desired event types. When connected the hub
// subscriptions are converged immediately; otherwise the set is applied on
// the next connect.
func (c *HubClient) SubscribeEvents(ctx context.Context, types []string) error {
	return c.mux.SetDesired(ctx, types)
}

// DesiredEvents returns the effective desired event set.
func (c *HubClient) DesiredEvents() []string {
	return c.mux.Desired()
}

// ActiveEvents returns the event types subscribed on the current session.
func (c *HubClient) ActiveEvents() []string {
	return c.mux.Active()
}

// Send issues a raw command. It fails with ErrNotConnected unless the
// client is CONNECTED. A failed result is returned as
// *interaction.ResultError and does not affect the connection.
func (c *HubClient) Send(ctx context.Context, cmd wire.Command) (json.RawMessage, error) {
	client, err := c.activeClient()
	if err != nil {
		return nil, err
	}
	return client.Send(ctx, cmd)
}

// CallService calls a hub service.
func (c *HubClient) CallService(ctx context.Context, domain, service string, data map[string]any) (json.RawMessage, error) {
	client, err := c.activeClient()
	if err != nil {
		return nil, err
	}
	return client.CallService(ctx, domain, service, data)
}

func (c *HubClient) activeClient() (*interaction.Client, error) {
	if c.machine.State() != connection.StateConnected {
		return nil, ErrNotConnected
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, ErrNotConnected
	}
	return c.session.client, nil
}

// connectOnce dials, authenticates and checks the user's privileges. It is
// the supervisor's ConnectFunc.
func (c *HubClient) connectOnce(ctx context.Context) (connection.Session, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	sess := newHubSession(ctx, conn, c.config.RequestTimeout, c.logger)
	sess.start()

	user, err := sess.client.CurrentUser(ctx)
	if err != nil {
		_ = sess.Close()
		<-sess.Done()
		return nil, fmt.Errorf("%w: current user: %w", transport.ErrConnectionLost, err)
	}
	if !user.IsAdmin {
		_ = sess.Close()
		<-sess.Done()
		c.logger.Error("user is not an administrator", "user", user.Name)
		return nil, fmt.Errorf("%w: user %q is not an administrator", connection.ErrInsufficientPrivilege, user.Name)
	}

	if !c.config.DisableKeepAlive {
		sess.startKeepAlive(c.config.KeepAlive)
	}

	c.mu.Lock()
	c.session = sess
	c.hubVersion = conn.HubVersion()
	c.mu.Unlock()

	return sess, nil
}

func (c *HubClient) handleTransition(t connection.Transition) {
	c.logger.Debug("connection state", "from", t.From, "to", t.To, "error", t.Err)

	switch t.To {
	case connection.StateConnecting:
		c.dispatcher.SetIntegrationVersion(0)
		c.bus.Publish(events.TopicConnecting, nil)

	case connection.StateConnected:
		c.bus.Publish(events.TopicOpen, c.HubVersion())
		c.activate()

	case connection.StateDisconnected:
		if t.From == connection.StateConnected {
			c.deactivate()
		}
		c.bus.Publish(events.TopicClose, t.Err)

	case connection.StateError:
		if t.From == connection.StateConnected {
			c.deactivate()
		}
		c.logger.Warn("connection error", "error", t.Err)
		c.bus.Publish(events.TopicError, t.Err)
	}
}

// activate brings a fresh session up to date: subscriptions, housekeeping,
// bulk state and service load, hub config. Failures are logged; the
// session stays up. It runs on the supervisor goroutine with a context
// that Close cancels.
func (c *HubClient) activate() {
	c.mu.RLock()
	sess := c.session
	c.mu.RUnlock()
	if sess == nil {
		return
	}
	ctx := sess.ctx
	client := sess.client

	c.dispatcher.Bind(client)

	if err := c.mux.Replay(ctx, sessionSubscriber{client: client}); err != nil {
		c.logger.Warn("replaying subscriptions", "error", err)
	}

	housekeep := eventHandler(c.dispatcher.EnqueueHousekeeping)
	for _, eventType := range housekeepingEvents {
		if _, err := client.SubscribeEvents(ctx, eventType, housekeep); err != nil {
			c.logger.Debug("housekeeping subscription failed", "event_type", eventType, "error", err)
		}
	}

	c.loadSnapshot(ctx, client, snapshot.KindStates, wire.CmdGetStates)
	c.loadSnapshot(ctx, client, snapshot.KindServices, wire.CmdGetServices)

	cfg, err := client.GetConfig(ctx)
	if err != nil {
		c.logger.Warn("loading hub config", "error", err)
		return
	}
	if !cfg.HasComponent(wire.IntegrationComponent) {
		c.logger.Debug("companion integration not installed")
		return
	}
	version, err := client.IntegrationVersion(ctx)
	if err != nil {
		c.logger.Debug("integration version query failed", "error", err)
		return
	}
	c.dispatcher.SetIntegrationVersion(version)
	c.logger.Info("companion integration", "version", version)
}

// loadSnapshot issues a bulk query whose result is queued on the dispatcher
// by the session reader, ahead of any event read after it, and waits until
// the cache holds it.
func (c *HubClient) loadSnapshot(ctx context.Context, client *interaction.Client, kind snapshot.Kind, cmdType string) {
	applied := make(chan struct{})
	_, err := client.SendOrdered(ctx, wire.Simple(cmdType), func(result json.RawMessage) {
		c.dispatcher.EnqueueSnapshot(kind, result, applied)
	})
	if err != nil {
		c.logger.Warn("loading "+kind.String(), "error", err)
		return
	}
	select {
	case <-applied:
	case <-ctx.Done():
	}
}

// deactivate drops everything bound to the ended session.
func (c *HubClient) deactivate() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	c.mux.Reset()
	c.dispatcher.Bind(nil)
	c.dispatcher.SetIntegrationVersion(0)
	c.cache.ResetLoaded()
}
