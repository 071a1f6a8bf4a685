package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hassbridge/hassbridge-go/pkg/snapshot"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// Envelope is the payload published for a hub event.
type Envelope struct {
	EventType string
	EntityID  string
	Event     *wire.EventMessage

	// Data is the decoded event payload; objects are map[string]any.
	Data any
}

// IntegrationStatus is the payload of the integration topic.
type IntegrationStatus struct {
	Type    string
	Version int
}

// ConfigUpdate is the payload of the config update topic.
type ConfigUpdate struct {
	Cause  string
	Config *wire.HubConfig
}

// HubQuerier re-reads hub data for housekeeping events. It is satisfied by
// *interaction.Client.
type HubQuerier interface {
	GetConfig(ctx context.Context) (*wire.HubConfig, error)
	GetServices(ctx context.Context) (wire.Services, error)
	IntegrationVersion(ctx context.Context) (int, error)
}

type item struct {
	event        *wire.EventMessage
	housekeeping bool

	// bulk load, applied in queue order with events
	load    bool
	kind    snapshot.Kind
	payload json.RawMessage
	applied chan struct{}
}

// Dispatcher turns event frames into cache updates and bus publications.
type Dispatcher struct {
	bus    *Bus
	cache  *snapshot.Cache
	logger *slog.Logger

	version atomic.Int64

	mu      sync.Mutex
	queue   []item
	signal  chan struct{}
	querier HubQuerier

	dispatched atomic.Uint64
	dropped    atomic.Uint64
}

// NewDispatcher creates a dispatcher publishing on bus and updating cache.
func NewDispatcher(bus *Bus, cache *snapshot.Cache, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:    bus,
		cache:  cache,
		logger: logger,
		signal: make(chan struct{}, 1),
	}
}

// Bind sets the querier used for housekeeping refreshes. Pass nil on
// disconnect.
func (d *Dispatcher) Bind(q HubQuerier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.querier = q
}

// IntegrationVersion returns the companion integration version, 0 when it
// is not loaded.
func (d *Dispatcher) IntegrationVersion() int {
	return int(d.version.Load())
}

// SetIntegrationVersion overrides the integration version.
func (d *Dispatcher) SetIntegrationVersion(v int) {
	d.version.Store(int64(v))
}

// Stats returns the number of dispatched and dropped events.
func (d *Dispatcher) Stats() (dispatched, dropped uint64) {
	return d.dispatched.Load(), d.dropped.Load()
}

// Enqueue queues an event from a subscriber-facing subscription. It never
// blocks and is safe to call from the connection's reader goroutine.
func (d *Dispatcher) Enqueue(event *wire.EventMessage) {
	d.push(item{event: event})
}

// EnqueueHousekeeping queues an event from an internal subscription. These
// trigger refreshes and are not published as events.
func (d *Dispatcher) EnqueueHousekeeping(event *wire.EventMessage) {
	d.push(item{event: event, housekeeping: true})
}

// EnqueueSnapshot queues a bulk get_states or get_services result. It is
// applied after every event queued before it and before every event queued
// after it. applied, if not nil, is closed once the cache holds the result.
func (d *Dispatcher) EnqueueSnapshot(kind snapshot.Kind, payload json.RawMessage, applied chan struct{}) {
	d.push(item{load: true, kind: kind, payload: payload, applied: applied})
}

func (d *Dispatcher) push(it item) {
	if it.event == nil && !it.load {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, it)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run processes queued events in order until ctx is cancelled. Only one Run
// may be active at a time.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		for {
			it, ok := d.pop()
			if !ok {
				break
			}
			switch {
			case it.load:
				d.applySnapshot(it)
			case it.housekeeping:
				d.housekeep(ctx, it.event)
			default:
				d.Dispatch(it.event)
			}
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-d.signal:
		}
	}
}

func (d *Dispatcher) pop() (item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return item{}, false
	}
	it := d.queue[0]
	d.queue[0] = item{}
	d.queue = d.queue[1:]
	return it, true
}

// Dispatch handles one event synchronously: every listener has returned
// when it does.
func (d *Dispatcher) Dispatch(event *wire.EventMessage) {
	if event == nil || wire.IsEmptyPayload(event.Data) {
		d.dropped.Add(1)
		return
	}

	if event.EventType == wire.EventIntegration {
		d.handleIntegration(event)
		return
	}

	env := Envelope{EventType: event.EventType, Event: event}
	if data, err := wire.DecodePayload(event.Data); err == nil {
		env.Data = data
	}

	if event.EventType == wire.EventStateChanged {
		var sc wire.StateChangedData
		if err := json.Unmarshal(event.Data, &sc); err != nil {
			d.logger.Debug("malformed state_changed", "error", err)
		} else {
			env.EntityID = sc.EntityID
			if sc.NewState != nil {
				d.cache.ApplyDelta(sc.EntityID, sc.NewState)
			}
		}
	} else if m, ok := env.Data.(map[string]any); ok {
		if id, ok := m["entity_id"].(string); ok {
			env.EntityID = id
		}
	}

	d.dispatched.Add(1)
	d.bus.Publish(EventTopic(env.EventType), env)
	if env.EntityID != "" {
		d.bus.Publish(EntityTopic(env.EventType, env.EntityID), env)
	}
	d.bus.Publish(TopicAll, env)
}

func (d *Dispatcher) handleIntegration(event *wire.EventMessage) {
	var data wire.IntegrationData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		d.logger.Debug("malformed integration event", "error", err)
		d.dropped.Add(1)
		return
	}

	switch data.Type {
	case wire.IntegrationLoaded:
		d.SetIntegrationVersion(wire.ParseVersion(data.Version))
	case wire.IntegrationUnloaded:
		d.SetIntegrationVersion(0)
	default:
		d.logger.Debug("ignoring integration event", "type", data.Type)
		d.dropped.Add(1)
		return
	}

	d.logger.Info("integration status", "type", data.Type, "version", d.IntegrationVersion())
	d.bus.Publish(TopicIntegration, IntegrationStatus{Type: data.Type, Version: d.IntegrationVersion()})
}

func (d *Dispatcher) applySnapshot(it item) {
	if it.applied != nil {
		defer close(it.applied)
	}

	switch it.kind {
	case snapshot.KindStates:
		var states []wire.EntityState
		if !wire.IsEmptyPayload(it.payload) {
			if err := wire.Unmarshal(it.payload, &states); err != nil {
				d.logger.Warn("malformed get_states result", "error", err)
				return
			}
		}
		d.cache.ApplyStateList(states)
	case snapshot.KindServices:
		var services wire.Services
		if !wire.IsEmptyPayload(it.payload) {
			if err := wire.Unmarshal(it.payload, &services); err != nil {
				d.logger.Warn("malformed get_services result", "error", err)
				return
			}
		}
		d.cache.ApplyServices(services)
	}
}

// housekeep refreshes cached hub data. Query errors are logged and
// otherwise ignored.
func (d *Dispatcher) housekeep(ctx context.Context, event *wire.EventMessage) {
	d.mu.Lock()
	q := d.querier
	d.mu.Unlock()
	if q == nil {
		return
	}

	switch event.EventType {
	case wire.EventCoreConfigUpdated, wire.EventComponentLoaded:
		d.refreshConfig(ctx, q, event.EventType)
	case wire.EventServiceRegistered, wire.EventServiceRemoved:
		d.refreshServices(ctx, q)
	}
}

func (d *Dispatcher) refreshConfig(ctx context.Context, q HubQuerier, cause string) {
	cfg, err := q.GetConfig(ctx)
	if err != nil {
		d.logger.Debug("config refresh failed", "cause", cause, "error", err)
		return
	}
	d.bus.Publish(TopicConfigUpdate, ConfigUpdate{Cause: cause, Config: cfg})

	if !cfg.HasComponent(wire.IntegrationComponent) {
		return
	}
	d.SetIntegrationVersion(0)
	v, err := q.IntegrationVersion(ctx)
	if err != nil {
		d.logger.Debug("integration version query failed", "error", err)
		return
	}
	d.SetIntegrationVersion(v)
}

func (d *Dispatcher) refreshServices(ctx context.Context, q HubQuerier) {
	services, err := q.GetServices(ctx)
	if err != nil {
		d.logger.Debug("services refresh failed", "error", err)
		return
	}
	d.cache.ApplyServices(services)
}
