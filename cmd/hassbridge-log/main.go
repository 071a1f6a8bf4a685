// Command hassbridge-log views and analyzes hub protocol capture files.
//
// Capture files are written by hassbridge with the -protocol-log flag or the
// logging.protocol_log config setting.
//
// Usage:
//
//	hassbridge-log <command> [flags] <file.cbor>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View only incoming wire-layer events
//	hassbridge-log view -layer wire -direction in hass.cbor
//
//	# Follow one event type
//	hassbridge-log view -event-type state_changed hass.cbor
//
//	# Keep one server's traffic
//	hassbridge-log filter -server home -o home.cbor hass.cbor
//
//	# Show statistics
//	hassbridge-log stats hass.cbor
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hassbridge/hassbridge-go/cmd/hassbridge-log/commands"
)

const usage = `hassbridge-log - Hub Protocol Capture Analyzer

Usage:
  hassbridge-log <command> [flags] <file.cbor>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "hassbridge-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, summary, usageLine string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "hassbridge-log %s - %s\n\nUsage:\n  %s\n\nFlags:\n", name, summary, usageLine)
		fs.PrintDefaults()
	}
	return fs
}

// requirePath parses args and returns the capture file argument.
func requirePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture file in human-readable format", "hassbridge-log view [flags] <file.cbor>")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (message, control, state, error)")
	server := fs.String("server", "", "Filter by server name")
	eventType := fs.String("event-type", "", "Filter by hub event type")

	path := requirePath(fs, args)

	filter := commands.ViewFilter{Server: *server, EventType: *eventType}
	if *layer != "" {
		l, err := commands.ParseLayerFlag(*layer)
		if err != nil {
			fail(err)
		}
		filter.Layer = &l
	}
	if *direction != "" {
		d, err := commands.ParseDirectionFlag(*direction)
		if err != nil {
			fail(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := commands.ParseCategoryFlag(*category)
		if err != nil {
			fail(err)
		}
		filter.Category = &c
	}

	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture file to JSONL or CSV", "hassbridge-log export [flags] <file.cbor>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	path := requirePath(fs, args)
	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture file and write to new file", "hassbridge-log filter [flags] <file.cbor>")
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID prefix")
	fs.StringVar(&opts.Server, "server", "", "Filter by server name")
	fs.StringVar(&opts.EventType, "event-type", "", "Filter by hub event type")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")

	path := requirePath(fs, args)
	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	count, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture file", "hassbridge-log stats <file.cbor>")
	path := requirePath(fs, args)
	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
