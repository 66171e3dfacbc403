// Package log provides the recovery event journal for meshbridge.
//
// The journal is a machine-readable trace of what the connection supervisor,
// the transports and the retry helpers did: every observed state change,
// every scheduled and issued reconnect attempt, and every failure that was
// swallowed on the way. It is separate from operational logging (slog), which
// stays human-oriented.
//
// # Basic Usage
//
//	// For development: journal to console via slog
//	cfg.EventLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.EventLogger, _ = log.NewFileLogger("/var/log/meshbridge/session.mjl")
//
//	// Both
//	cfg.EventLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - StateChangeEvent: supervisor or gateway state transitions
//   - AttemptEvent: reconnect attempt lifecycle (scheduled, issued, result)
//   - ErrorEventData: transport failures, operation timeouts and errors
//
// # File Format
//
// Journal files are a stream of CBOR-encoded events with integer keys
// (.mjl extension). The meshbridge-log tool views and summarizes them.
package log
