package subscription

import (
	"slices"
	"strings"

	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// Always lists the types included in every non-wildcard set.
var Always = []string{wire.EventStateChanged, wire.EventIntegration}

// EventSet is a set of event types.
type EventSet map[string]struct{}

// Normalize builds the effective desired set: the wildcard alone if it was
// requested, otherwise the requested types plus Always. Blank entries are
// dropped.
func Normalize(types []string) EventSet {
	set := make(EventSet, len(types)+len(Always))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if t == wire.AllEvents {
			return EventSet{wire.AllEvents: {}}
		}
		set[t] = struct{}{}
	}
	for _, t := range Always {
		set[t] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s EventSet) Has(t string) bool {
	_, ok := s[t]
	return ok
}

// IsWildcard reports whether the set is the wildcard alone.
func (s EventSet) IsWildcard() bool {
	return s.Has(wire.AllEvents)
}

// Minus returns the members of s not in other, sorted.
func (s EventSet) Minus(other EventSet) []string {
	var out []string
	for t := range s {
		if !other.Has(t) {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return out
}

// Sorted returns the members in order.
func (s EventSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Equal reports whether both sets have the same members.
func (s EventSet) Equal(other EventSet) bool {
	if len(s) != len(other) {
		return false
	}
	for t := range s {
		if !other.Has(t) {
			return false
		}
	}
	return true
}
