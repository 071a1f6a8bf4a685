package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Commands          map[string]int
	HubEvents         map[string]int
	FailedResults     int
	RoundTrips        int
	RoundTripTotal    time.Duration
	Connections       map[string]*ConnectionStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	Server     string
	RemoteAddr string
	LastState  string
}

// CollectStats reads the log file and aggregates it.
func CollectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Commands:          make(map[string]int),
		HubEvents:         make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.Server == "" {
		conn.Server = event.Server
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}
	if event.StateChange != nil {
		conn.LastState = event.StateChange.NewState
	}

	if m := event.Message; m != nil {
		switch m.Type {
		case log.MessageTypeCommand:
			if m.CommandType != "" {
				s.Commands[m.CommandType]++
			}
		case log.MessageTypeEvent:
			if m.EventType != "" {
				s.HubEvents[m.EventType]++
			}
		case log.MessageTypeResult:
			if m.Success != nil && !*m.Success {
				s.FailedResults++
			}
			if m.RoundTrip != nil {
				s.RoundTrips++
				s.RoundTripTotal += *m.RoundTrip
			}
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// AverageRoundTrip returns the mean command round trip.
func (s *Stats) AverageRoundTrip() time.Duration {
	if s.RoundTrips == 0 {
		return 0
	}
	return s.RoundTripTotal / time.Duration(s.RoundTrips)
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := CollectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Hub Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	printCounts(w, "Commands:", stats.Commands)
	printCounts(w, "Hub Events:", stats.HubEvents)

	if stats.RoundTrips > 0 {
		fmt.Fprintf(w, "Round Trip: avg %s over %d results\n", formatDuration(stats.AverageRoundTrip()), stats.RoundTrips)
	}
	if stats.FailedResults > 0 {
		fmt.Fprintf(w, "Failed Results: %d\n", stats.FailedResults)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.Server != "" {
				fmt.Fprintf(w, "           Server: %s\n", c.stats.Server)
			}
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           URL: %s\n", c.stats.RemoteAddr)
			}
			if c.stats.LastState != "" {
				fmt.Fprintf(w, "           Last state: %s\n", c.stats.LastState)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

// printCounts writes a count table sorted by descending count.
func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	fmt.Fprintln(w, title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-28s %d\n", k+":", counts[k])
	}
	fmt.Fprintln(w)
}
