package interaction

import (
	"context"
	"sync"
)

// Subscription is an active event subscription on one session.
type Subscription struct {
	// ID is the subscribe_events command id; events arrive under it.
	ID uint64

	// EventType is the subscribed type, wire.AllEvents for the wildcard.
	EventType string

	client *Client
	once   sync.Once
	err    error
}

// Unsubscribe cancels the subscription. Only the first call sends the
// unsubscribe command; later calls return its result.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.client.UnsubscribeEvents(ctx, s.ID)
	})
	return s.err
}
