package snapshot

import (
	"sync"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// Kind identifies the part of the snapshot a bulk load replaced.
type Kind uint8

const (
	// KindStates is the entity state table.
	KindStates Kind = iota

	// KindServices is the service registry.
	KindServices
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStates:
		return "states"
	case KindServices:
		return "services"
	default:
		return "unknown"
	}
}

// LoadedFunc is called after the first non-empty bulk load of a kind in a
// connection cycle.
type LoadedFunc func(Kind)

// Cache is the entity snapshot and service registry.
type Cache struct {
	mu sync.RWMutex

	states   map[string]*wire.EntityState
	services wire.Services
	loaded   [2]bool

	onLoaded []LoadedFunc
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		states:   make(map[string]*wire.EntityState),
		services: make(wire.Services),
	}
}

// OnLoaded registers a load callback. Callbacks run on the goroutine that
// applied the load, after the cache lock is released.
func (c *Cache) OnLoaded(fn LoadedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLoaded = append(c.onLoaded, fn)
}

// State returns a copy of one entity's state.
func (c *Cache) State(entityID string) (*wire.EntityState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[entityID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// States returns a copy of the whole state table.
func (c *Cache) States() map[string]*wire.EntityState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*wire.EntityState, len(c.states))
	for id, s := range c.states {
		out[id] = s.Clone()
	}
	return out
}

// Services returns a copy of the service registry.
func (c *Cache) Services() wire.Services {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services.Clone()
}

// Len returns the number of cached entities.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

// Loaded reports whether kind has been loaded in the current cycle.
func (c *Cache) Loaded(kind Kind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[kind]
}

// ApplyStates replaces the state table. An empty payload is ignored and
// reports false.
func (c *Cache) ApplyStates(states map[string]*wire.EntityState) bool {
	if len(states) == 0 {
		return false
	}
	next := make(map[string]*wire.EntityState, len(states))
	for id, s := range states {
		if s == nil {
			continue
		}
		next[id] = s.Clone()
	}

	c.mu.Lock()
	c.states = next
	fire := c.markLoaded(KindStates)
	c.mu.Unlock()

	c.notify(fire, KindStates)
	return true
}

// ApplyStateList replaces the state table from a get_states result.
func (c *Cache) ApplyStateList(states []wire.EntityState) bool {
	return c.ApplyStates(Index(states))
}

// ApplyServices replaces the service registry. An empty payload is ignored
// and reports false.
func (c *Cache) ApplyServices(services wire.Services) bool {
	if len(services) == 0 {
		return false
	}
	next := services.Clone()

	c.mu.Lock()
	c.services = next
	fire := c.markLoaded(KindServices)
	c.mu.Unlock()

	c.notify(fire, KindServices)
	return true
}

// ApplyDelta overwrites one entity. A nil state is ignored.
func (c *Cache) ApplyDelta(entityID string, state *wire.EntityState) {
	if entityID == "" || state == nil {
		return
	}
	s := state.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[entityID] = s
}

// ResetLoaded re-arms the loaded notifications for the next connection
// cycle. Cached data is kept.
func (c *Cache) ResetLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = [2]bool{}
}

// markLoaded must be called with c.mu held. It returns the callbacks to run
// if this is the first load of kind in the cycle.
func (c *Cache) markLoaded(kind Kind) []LoadedFunc {
	if c.loaded[kind] {
		return nil
	}
	c.loaded[kind] = true
	return append([]LoadedFunc(nil), c.onLoaded...)
}

func (c *Cache) notify(fns []LoadedFunc, kind Kind) {
	for _, fn := range fns {
		fn(kind)
	}
}

// Index keys a state list by entity id. Entries without an id are dropped.
func Index(states []wire.EntityState) map[string]*wire.EntityState {
	out := make(map[string]*wire.EntityState, len(states))
	for i := range states {
		if states[i].EntityID == "" {
			continue
		}
		out[states[i].EntityID] = &states[i]
	}
	return out
}
