package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hassbridge/hassbridge-go/pkg/interaction"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// Handle releases one hub subscription.
type Handle interface {
	Unsubscribe(ctx context.Context) error
}

// Subscriber opens hub subscriptions on the current session. An empty
// eventType or wire.AllEvents subscribes to every event.
type Subscriber interface {
	SubscribeEvents(ctx context.Context, eventType string, handler interaction.EventHandler) (Handle, error)
}

// Stats counts hub operations issued by a Multiplexer.
type Stats struct {
	Subscribes   int
	Unsubscribes int
}

// Multiplexer converges the active hub subscriptions to the desired set.
// All methods are safe for concurrent use; convergence runs are serialized.
type Multiplexer struct {
	mu sync.Mutex

	handler    interaction.EventHandler
	subscriber Subscriber
	desired    EventSet
	active     map[string]Handle
	stats      Stats
	logger     *slog.Logger
}

// NewMultiplexer creates a multiplexer whose subscriptions deliver events to
// handler. The initial desired set is Always.
func NewMultiplexer(handler interaction.EventHandler, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		handler: handler,
		desired: Normalize(nil),
		active:  make(map[string]Handle),
		logger:  logger,
	}
}

// Desired returns the effective desired set, sorted.
func (m *Multiplexer) Desired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.desired.Sorted()
}

// Active returns the event types with a live hub subscription, sorted.
func (m *Multiplexer) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(EventSet, len(m.active))
	for t := range m.active {
		out[t] = struct{}{}
	}
	return out.Sorted()
}

// Stats returns the operation counters.
func (m *Multiplexer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// SetDesired records the desired event types and, when a session is bound,
// converges the hub subscriptions to them. Subscribe failures are returned
// joined; the failed types stay inactive and are retried on the next call.
func (m *Multiplexer) SetDesired(ctx context.Context, types []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.desired = Normalize(types)
	if m.subscriber == nil {
		return nil
	}
	return m.converge(ctx)
}

// Replay binds a new session and subscribes the desired set on it. Any
// active bookkeeping from a previous session is discarded first.
func (m *Multiplexer) Replay(ctx context.Context, subscriber Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]Handle)
	m.subscriber = subscriber
	return m.converge(ctx)
}

// Reset unbinds the session and forgets the active subscriptions without
// unsubscribing; they died with the socket. The desired set is kept.
func (m *Multiplexer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriber = nil
	m.active = make(map[string]Handle)
}

func (m *Multiplexer) converge(ctx context.Context) error {
	if m.desired.IsWildcard() {
		if _, ok := m.active[wire.AllEvents]; ok {
			return nil
		}
		for _, t := range m.activeSet().Sorted() {
			m.unsubscribe(ctx, t)
		}
		return m.subscribe(ctx, wire.AllEvents)
	}

	// leaving the wildcard: nothing concrete is remembered, rebuild from desired
	if _, ok := m.active[wire.AllEvents]; ok {
		m.unsubscribe(ctx, wire.AllEvents)
	}

	active := m.activeSet()
	for _, t := range active.Minus(m.desired) {
		m.unsubscribe(ctx, t)
	}

	var errs []error
	for _, t := range m.desired.Minus(active) {
		if err := m.subscribe(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multiplexer) activeSet() EventSet {
	set := make(EventSet, len(m.active))
	for t := range m.active {
		set[t] = struct{}{}
	}
	return set
}

func (m *Multiplexer) subscribe(ctx context.Context, eventType string) error {
	m.stats.Subscribes++
	h, err := m.subscriber.SubscribeEvents(ctx, eventType, m.handler)
	if err != nil {
		m.logger.Warn("subscribe failed", "event_type", eventType, "error", err)
		return fmt.Errorf("subscribe %s: %w", eventType, err)
	}
	m.active[eventType] = h
	m.logger.Debug("subscribed", "event_type", eventType)
	return nil
}

// unsubscribe releases and forgets the handle. Errors are logged only; the
// entry is gone either way.
func (m *Multiplexer) unsubscribe(ctx context.Context, eventType string) {
	h := m.active[eventType]
	delete(m.active, eventType)
	m.stats.Unsubscribes++
	if h == nil {
		return
	}
	if err := h.Unsubscribe(ctx); err != nil {
		m.logger.Debug("unsubscribe failed", "event_type", eventType, "error", err)
		return
	}
	m.logger.Debug("unsubscribed", "event_type", eventType)
}
