package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents(base time.Time) []Event {
	success := true
	rtt := 12 * time.Millisecond
	return []Event{
		{
			Timestamp:    base,
			ConnectionID: "conn-a",
			Direction:    DirectionOut,
			Layer:        LayerTransport,
			Category:     CategoryControl,
			Server:       "home",
			Frame:        NewFrameEvent([]byte(`{"type":"auth"}`)),
		},
		{
			Timestamp:    base.Add(time.Second),
			ConnectionID: "conn-a",
			Direction:    DirectionIn,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			Server:       "home",
			Message: &MessageEvent{
				Type:      MessageTypeResult,
				MessageID: 4,
				Success:   &success,
				RoundTrip: &rtt,
			},
		},
		{
			Timestamp:    base.Add(2 * time.Second),
			ConnectionID: "conn-b",
			Direction:    DirectionIn,
			Layer:        LayerWire,
			Category:     CategoryMessage,
			Server:       "cabin",
			Message: &MessageEvent{
				Type:      MessageTypeEvent,
				MessageID: 2,
				EventType: "state_changed",
			},
		},
		{
			Timestamp:    base.Add(3 * time.Second),
			ConnectionID: "conn-b",
			Layer:        LayerService,
			Category:     CategoryState,
			Server:       "cabin",
			StateChange:  &StateChangeEvent{OldState: "CONNECTING", NewState: "CONNECTED"},
		},
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)
	for _, ev := range sampleEvents(base) {
		data, err := EncodeEvent(ev)
		require.NoError(t, err)

		decoded, err := DecodeEvent(data)
		require.NoError(t, err)

		assert.True(t, ev.Timestamp.Equal(decoded.Timestamp), "timestamp precision lost")
		assert.Equal(t, ev.ConnectionID, decoded.ConnectionID)
		assert.Equal(t, ev.Layer, decoded.Layer)
		assert.Equal(t, ev.Category, decoded.Category)
		assert.Equal(t, ev.Server, decoded.Server)
		if ev.Message != nil {
			require.NotNil(t, decoded.Message)
			assert.Equal(t, ev.Message.MessageID, decoded.Message.MessageID)
			assert.Equal(t, ev.Message.EventType, decoded.Message.EventType)
		}
	}
}

func TestNewFrameEventTruncates(t *testing.T) {
	big := bytes.Repeat([]byte("x"), MaxFrameCapture+10)
	fe := NewFrameEvent(big)
	assert.Equal(t, MaxFrameCapture+10, fe.Size)
	assert.Len(t, fe.Data, MaxFrameCapture)
	assert.True(t, fe.Truncated)

	small := NewFrameEvent([]byte("abc"))
	assert.False(t, small.Truncated)
	assert.Equal(t, []byte("abc"), small.Data)
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.hlog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	base := time.Now()
	events := sampleEvents(base)
	for _, ev := range events {
		fl.Log(ev)
	}
	assert.Equal(t, len(events), fl.Written())
	require.NoError(t, fl.Close())

	// Logging after close is ignored.
	fl.Log(events[0])
	require.NoError(t, fl.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}
	assert.Len(t, got, len(events))
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.hlog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, ev := range sampleEvents(time.Now()) {
		fl.Log(ev)
	}
	require.NoError(t, fl.Close())

	layer := LayerWire
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"All", Filter{}, 4},
		{"ConnPrefix", Filter{ConnectionID: "conn-b"}, 2},
		{"Server", Filter{Server: "home"}, 2},
		{"Layer", Filter{Layer: &layer}, 2},
		{"EventType", Filter{EventType: "state_changed"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()

			n := 0
			for {
				_, err := r.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				n++
			}
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.hlog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				fl.Log(Event{Timestamp: time.Now(), ConnectionID: "c", Category: CategoryMessage})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 200, fl.Written())
	require.NoError(t, fl.Close())
}

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b)
	assert.Equal(t, 2, m.Len())

	m.Log(Event{ConnectionID: "x"})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(logger)

	for _, ev := range sampleEvents(time.Now()) {
		adapter.Log(ev)
	}

	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "msg=protocol"))
	assert.Contains(t, out, "event_type=state_changed")
	assert.Contains(t, out, "new_state=CONNECTED")
}

func TestOrNoop(t *testing.T) {
	assert.IsType(t, NoopLogger{}, OrNoop(nil))
	r := &recordingLogger{}
	assert.Same(t, r, OrNoop(r))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "SERVICE", LayerService.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "EVENT", MessageTypeEvent.String())
	assert.Equal(t, "AUTH_INVALID", ControlMsgAuthInvalid.String())
	assert.Equal(t, "UNKNOWN", Layer(99).String())
}
