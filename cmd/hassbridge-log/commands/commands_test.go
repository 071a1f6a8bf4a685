package commands

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/log"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	ok, failed := true, false
	rtt := 4 * time.Millisecond
	return []log.Event{
		{
			Timestamp: ts, ConnectionID: "abc12345-0000", Server: "home", RemoteAddr: "ws://hass/api/websocket",
			Layer: log.LayerService, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{OldState: "CONNECTING", NewState: "CONNECTED"},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: "abc12345-0000", Server: "home",
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeCommand, MessageID: 1, CommandType: "get_states"},
		},
		{
			Timestamp: ts.Add(2 * time.Second), ConnectionID: "abc12345-0000", Server: "home",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResult, MessageID: 1, Success: &ok, RoundTrip: &rtt},
		},
		{
			Timestamp: ts.Add(3 * time.Second), ConnectionID: "abc12345-0000", Server: "home",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResult, MessageID: 2, Success: &failed, ErrorCode: "not_found"},
		},
		{
			Timestamp: ts.Add(4 * time.Second), ConnectionID: "def67890-1111", Server: "cabin",
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeEvent, MessageID: 3, EventType: "state_changed"},
		},
		{
			Timestamp: ts.Add(5 * time.Second), ConnectionID: "def67890-1111", Server: "cabin",
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: log.NewFrameEvent([]byte(`{"type":"pong","id":4}`)),
		},
		{
			Timestamp: ts.Add(6 * time.Second), ConnectionID: "def67890-1111", Server: "cabin",
			Layer: log.LayerService, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerService, Message: "keep-alive timeout", Context: "ping"},
		},
	}
}

func TestFormatEvents(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range sampleEvents() {
		formatEvent(&buf, e)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:00:00.000000Z [conn:abc12345]",
		"SERVICE State (home)",
		"CONNECTING -> CONNECTED",
		"COMMAND",
		"Command: get_states",
		"Success: true",
		"Duration: 4.000ms",
		"Success: false (not_found)",
		"Event: state_changed",
		`Data: {"type":"pong","id":4}`,
		"Message: keep-alive timeout",
		"Context: ping",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatControlUsesCTRL(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		ConnectionID: "short",
		Layer:        log.LayerWire,
		Category:     log.CategoryControl,
		ControlMsg:   &log.ControlMsgEvent{Type: log.ControlMsgAuthOK},
	})
	if !strings.Contains(buf.String(), "[conn:short] IN  CTRL AUTH_OK") {
		t.Errorf("unexpected header: %s", buf.String())
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Server: "cabin", EventType: "state_changed"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Count(output, "[conn:") != 1 {
		t.Errorf("expected exactly one event, got:\n%s", output)
	}

	buf.Reset()
	out := log.DirectionOut
	if err := RunView(path, ViewFilter{Direction: &out}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if !strings.Contains(buf.String(), "get_states") || strings.Count(buf.String(), "[conn:") != 1 {
		t.Errorf("expected only the outgoing command, got:\n%s", buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.cbor"), ViewFilter{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "failed to open log file") {
		t.Errorf("expected open error, got %v", err)
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("WIRE"); err != nil || l != log.LayerWire {
		t.Errorf("ParseLayerFlag(WIRE) = %v, %v", l, err)
	}
	if d, err := ParseDirectionFlag("out"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(out) = %v, %v", d, err)
	}
	if c, err := ParseCategoryFlag("Error"); err != nil || c != log.CategoryError {
		t.Errorf("ParseCategoryFlag(Error) = %v, %v", c, err)
	}
	if _, err := ParseLayerFlag("session"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if _, err := ParseCategoryFlag("snapshot"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	output := filepath.Join(t.TempDir(), "filtered.cbor")

	count, err := RunFilter(path, FilterOptions{Output: output, ConnID: "abc1", Layer: "wire"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 events, got %d", count)
	}

	reader, err := log.NewReader(output)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	defer reader.Close()
	for i := 0; i < count; i++ {
		event, err := reader.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if event.Server != "home" || event.Layer != log.LayerWire {
			t.Errorf("event %d did not match the filter: %+v", i, event)
		}
	}
}

func TestRunFilterTimeRange(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	output := filepath.Join(t.TempDir(), "filtered.cbor")

	count, err := RunFilter(path, FilterOptions{
		Output:    output,
		TimeStart: "2026-01-28T10:00:02Z",
		TimeEnd:   "2026-01-28T10:00:05Z",
	})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 events in range, got %d", count)
	}

	if _, err := RunFilter(path, FilterOptions{Output: output, TimeStart: "yesterday"}); err == nil {
		t.Error("expected error for bad time-start")
	}
	if _, err := RunFilter(path, FilterOptions{Output: output, Category: "bogus"}); err == nil {
		t.Error("expected error for bad category")
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	output := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", output); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("failed to open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != len(sampleEvents())+1 {
		t.Fatalf("expected %d rows, got %d", len(sampleEvents())+1, len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][2] != "server" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	if rows[2][6] != "COMMAND" || rows[2][7] != "1" || rows[2][8] != "get_states" {
		t.Errorf("unexpected command row: %v", rows[2])
	}
	if rows[4][8] != "not_found" {
		t.Errorf("expected error code in failed result row: %v", rows[4])
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	output := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", output); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(sampleEvents()) {
		t.Errorf("expected %d lines, got %d", len(sampleEvents()), len(lines))
	}
	if !strings.Contains(lines[1], `"CommandType":"get_states"`) {
		t.Errorf("expected command type in %s", lines[1])
	}

	if err := RunExport(path, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	stats, err := CollectStats(path)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.TotalEvents != 7 {
		t.Errorf("expected 7 events, got %d", stats.TotalEvents)
	}
	if stats.Commands["get_states"] != 1 || stats.HubEvents["state_changed"] != 1 {
		t.Errorf("unexpected message counts: %v %v", stats.Commands, stats.HubEvents)
	}
	if stats.FailedResults != 1 || stats.Errors != 1 {
		t.Errorf("expected 1 failed result and 1 error, got %d and %d", stats.FailedResults, stats.Errors)
	}
	if stats.AverageRoundTrip() != 4*time.Millisecond {
		t.Errorf("unexpected average round trip %s", stats.AverageRoundTrip())
	}
	if len(stats.Connections) != 2 || stats.Connections["abc12345-0000"].LastState != "CONNECTED" {
		t.Errorf("unexpected connections: %+v", stats.Connections)
	}

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()
	for _, want := range []string{"Total Events: 7", "WIRE:", "get_states:", "state_changed:", "Failed Results: 1", "Server: home", "Errors: 1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in stats output:\n%s", want, output)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
