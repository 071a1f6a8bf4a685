package subscription_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hassbridge/hassbridge-go/pkg/interaction"
	"github.com/hassbridge/hassbridge-go/pkg/subscription"
	"github.com/hassbridge/hassbridge-go/pkg/subscription/mocks"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

// countingSubscriber records subscribe and unsubscribe operations.
type countingSubscriber struct {
	mu     sync.Mutex
	subs   []string
	unsubs []string
	fail   map[string]error
}

type countingHandle struct {
	owner     *countingSubscriber
	eventType string
}

func (h *countingHandle) Unsubscribe(context.Context) error {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	h.owner.unsubs = append(h.owner.unsubs, h.eventType)
	return nil
}

func (c *countingSubscriber) SubscribeEvents(_ context.Context, eventType string, _ interaction.EventHandler) (subscription.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fail[eventType]; err != nil {
		return nil, err
	}
	c.subs = append(c.subs, eventType)
	return &countingHandle{owner: c, eventType: eventType}, nil
}

func (c *countingSubscriber) ops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) + len(c.unsubs)
}

func (c *countingSubscriber) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = nil
	c.unsubs = nil
}

func noopHandler(uint64, *wire.EventMessage) {}

func TestNormalize(t *testing.T) {
	t.Run("AddsAlways", func(t *testing.T) {
		set := subscription.Normalize([]string{"lights_on"})
		assert.Equal(t, []string{"lights_on", wire.EventIntegration, wire.EventStateChanged}, set.Sorted())
	})

	t.Run("WildcardAlone", func(t *testing.T) {
		set := subscription.Normalize([]string{"a", wire.AllEvents, "b"})
		assert.True(t, set.IsWildcard())
		assert.Len(t, set, 1)
	})

	t.Run("DropsBlank", func(t *testing.T) {
		set := subscription.Normalize([]string{"", "  ", "a"})
		assert.Equal(t, []string{"a", wire.EventIntegration, wire.EventStateChanged}, set.Sorted())
	})

	t.Run("Empty", func(t *testing.T) {
		set := subscription.Normalize(nil)
		assert.Equal(t, []string{wire.EventIntegration, wire.EventStateChanged}, set.Sorted())
	})
}

func TestMultiplexerReplaySubscribesDesired(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	// no session bound: nothing is sent
	require.NoError(t, m.SetDesired(ctx, []string{"lights_on"}))

	for _, typ := range []string{"lights_on", wire.EventStateChanged, wire.EventIntegration} {
		sub.EXPECT().SubscribeEvents(mock.Anything, typ, mock.Anything).
			Return(mocks.NewMockHandle(t), nil).Once()
	}

	require.NoError(t, m.Replay(ctx, sub))
	assert.Equal(t, []string{"lights_on", wire.EventIntegration, wire.EventStateChanged}, m.Active())
}

func TestMultiplexerIdempotent(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	sub.EXPECT().SubscribeEvents(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, string, interaction.EventHandler) (subscription.Handle, error) {
			return mocks.NewMockHandle(t), nil
		}).Times(3)

	require.NoError(t, m.Replay(ctx, sub))
	require.NoError(t, m.SetDesired(ctx, []string{"door_open"}))
	require.NoError(t, m.SetDesired(ctx, []string{"door_open"}))

	assert.Equal(t, subscription.Stats{Subscribes: 3}, m.Stats())
}

func TestMultiplexerHandlerPassedThrough(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	var got []string
	handler := func(_ uint64, ev *wire.EventMessage) { got = append(got, ev.EventType) }
	m := subscription.NewMultiplexer(handler, nil)

	sub.EXPECT().SubscribeEvents(mock.Anything, mock.Anything, mock.Anything).
		Run(func(_ context.Context, eventType string, h interaction.EventHandler) {
			h(1, &wire.EventMessage{EventType: eventType})
		}).
		Return(mocks.NewMockHandle(t), nil).Times(2)

	require.NoError(t, m.Replay(context.Background(), sub))
	assert.ElementsMatch(t, []string{wire.EventStateChanged, wire.EventIntegration}, got)
}

func TestMultiplexerWildcard(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	for _, typ := range []string{"a", "b", wire.EventStateChanged, wire.EventIntegration} {
		h := mocks.NewMockHandle(t)
		h.EXPECT().Unsubscribe(mock.Anything).Return(nil).Once()
		sub.EXPECT().SubscribeEvents(mock.Anything, typ, mock.Anything).Return(h, nil).Once()
	}
	require.NoError(t, m.SetDesired(ctx, []string{"a", "b"}))
	require.NoError(t, m.Replay(ctx, sub))

	wildcard := mocks.NewMockHandle(t)
	sub.EXPECT().SubscribeEvents(mock.Anything, wire.AllEvents, mock.Anything).Return(wildcard, nil).Once()

	require.NoError(t, m.SetDesired(ctx, []string{"a", wire.AllEvents, "c"}))
	assert.Equal(t, []string{wire.AllEvents}, m.Active())

	// already wildcard: no-op regardless of the other types
	require.NoError(t, m.SetDesired(ctx, []string{wire.AllEvents, "zzz"}))
	assert.Equal(t, []string{wire.AllEvents}, m.Active())
}

func TestMultiplexerWildcardToConcrete(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	wildcard := mocks.NewMockHandle(t)
	sub.EXPECT().SubscribeEvents(mock.Anything, wire.AllEvents, mock.Anything).Return(wildcard, nil).Once()

	require.NoError(t, m.SetDesired(ctx, []string{wire.AllEvents}))
	require.NoError(t, m.Replay(ctx, sub))
	assert.Equal(t, []string{wire.AllEvents}, m.Active())

	wildcard.EXPECT().Unsubscribe(mock.Anything).Return(nil).Once()
	for _, typ := range []string{"lights_on", wire.EventStateChanged, wire.EventIntegration} {
		sub.EXPECT().SubscribeEvents(mock.Anything, typ, mock.Anything).Return(mocks.NewMockHandle(t), nil).Once()
	}

	before := m.Stats()
	require.NoError(t, m.SetDesired(ctx, []string{"lights_on"}))
	after := m.Stats()

	assert.Equal(t, 1, after.Unsubscribes-before.Unsubscribes)
	assert.Equal(t, 3, after.Subscribes-before.Subscribes)
	assert.Equal(t, []string{"lights_on", wire.EventIntegration, wire.EventStateChanged}, m.Active())
}

func TestMultiplexerSymmetricDifference(t *testing.T) {
	sequence := [][]string{
		{"a"},
		{"a", "b"},
		{"b", "c"},
		{},
		{"c", "d", "e"},
		{wire.AllEvents},
		{wire.AllEvents, "x"},
		{"x"},
		{"x"},
	}

	sub := &countingSubscriber{}
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)
	require.NoError(t, m.Replay(ctx, sub))

	prev := subscription.Normalize(nil)
	for i, types := range sequence {
		sub.reset()
		require.NoError(t, m.SetDesired(ctx, types))

		next := subscription.Normalize(types)
		want := len(prev.Minus(next)) + len(next.Minus(prev))
		assert.Equal(t, want, sub.ops(), "step %d: %v", i, types)
		assert.Equal(t, next.Sorted(), m.Active(), "step %d", i)
		prev = next
	}
}

func TestMultiplexerResetKeepsDesired(t *testing.T) {
	sub := &countingSubscriber{}
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	require.NoError(t, m.SetDesired(ctx, []string{"garage"}))
	require.NoError(t, m.Replay(ctx, sub))
	assert.Equal(t, 3, sub.ops())

	m.Reset()
	assert.Empty(t, m.Active())
	assert.Equal(t, []string{"garage", wire.EventIntegration, wire.EventStateChanged}, m.Desired())

	// while disconnected only the desired set changes
	sub.reset()
	require.NoError(t, m.SetDesired(ctx, []string{"garage", "porch"}))
	assert.Equal(t, 0, sub.ops())

	next := &countingSubscriber{}
	require.NoError(t, m.Replay(ctx, next))
	assert.Equal(t, 4, next.ops())
	assert.Empty(t, next.unsubs, "old-session handles must not be released on the new session")
	assert.Equal(t, []string{"garage", wire.EventIntegration, "porch", wire.EventStateChanged}, m.Active())
}

func TestMultiplexerSubscribeFailure(t *testing.T) {
	boom := errors.New("boom")
	sub := &countingSubscriber{fail: map[string]error{"flaky": boom}}
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)
	require.NoError(t, m.Replay(ctx, sub))

	err := m.SetDesired(ctx, []string{"flaky", "solid"})
	require.ErrorIs(t, err, boom)
	assert.NotContains(t, m.Active(), "flaky")
	assert.Contains(t, m.Active(), "solid")

	// retried on the next call once the hub accepts it
	sub.mu.Lock()
	delete(sub.fail, "flaky")
	sub.mu.Unlock()
	sub.reset()

	require.NoError(t, m.SetDesired(ctx, []string{"flaky", "solid"}))
	assert.Equal(t, []string{"flaky"}, sub.subs)
}

func TestMultiplexerUnsubscribeErrorForgets(t *testing.T) {
	sub := mocks.NewMockSubscriber(t)
	ctx := context.Background()
	m := subscription.NewMultiplexer(noopHandler, nil)

	h := mocks.NewMockHandle(t)
	h.EXPECT().Unsubscribe(mock.Anything).Return(errors.New("not_found")).Once()
	sub.EXPECT().SubscribeEvents(mock.Anything, "gone", mock.Anything).Return(h, nil).Once()
	sub.EXPECT().SubscribeEvents(mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewMockHandle(t), nil).Times(2)

	require.NoError(t, m.SetDesired(ctx, []string{"gone"}))
	require.NoError(t, m.Replay(ctx, sub))
	require.NoError(t, m.SetDesired(ctx, nil))

	assert.NotContains(t, m.Active(), "gone")
}
