// Package log provides protocol capture for hub connections.
//
// Protocol capture is separate from operational logging (slog). It records
// every frame exchanged with a hub, the decoded command/result/event summary
// and connection state transitions as a machine-readable trace.
//
// # Basic Usage
//
//	// Development: print protocol events through slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a CBOR capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/hassbridge/hub.hlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(adapter, fileLogger)
//
// # Event Layers
//
//   - Transport: raw JSON frames (FrameEvent)
//   - Wire: decoded commands, results and events (MessageEvent)
//   - Service: connection state transitions (StateChangeEvent)
//
// # File Format
//
// Capture files are a stream of CBOR-encoded Event records with integer keys.
// The hassbridge-log tool views, filters and summarizes them.
package log
