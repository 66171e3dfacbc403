package log

// Logger is the interface components use to journal recovery events.
// Pass nil or NoopLogger to disable journaling.
type Logger interface {
	// Log records an event. Implementations must be thread-safe and must not
	// block: the supervisor calls Log while holding its lock.
	Log(event Event)
}

// NoopLogger discards all events.
// NoopLogger is safe for concurrent use and usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
