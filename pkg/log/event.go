package log

import (
	"time"
)

// Event represents a journaled recovery event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the mesh session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Component that produced the event.
	Component Component `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Target is the transport target, e.g. the gateway address (if known).
	Target string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"`
	Attempt     *AttemptEvent     `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Component identifies which part of the bridge produced an event.
type Component uint8

const (
	// ComponentSupervisor is the connection-recovery supervisor.
	ComponentSupervisor Component = 0
	// ComponentTransport is a mesh transport (e.g. the gateway client).
	ComponentTransport Component = 1
	// ComponentSession is the session owner.
	ComponentSession Component = 2
	// ComponentRetry is the retry/timeout helper.
	ComponentRetry Component = 3
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case ComponentSupervisor:
		return "SUPERVISOR"
	case ComponentTransport:
		return "TRANSPORT"
	case ComponentSession:
		return "SESSION"
	case ComponentRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a state change.
	CategoryState Category = 0
	// CategoryAttempt indicates a reconnect attempt lifecycle event.
	CategoryAttempt Category = 1
	// CategoryError indicates a swallowed or reported failure.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryAttempt:
		return "ATTEMPT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a connection state transition.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Connected is the transport state reported with the change.
	Connected bool `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// AttemptPhase is the lifecycle stage of a reconnect attempt.
type AttemptPhase uint8

const (
	// AttemptScheduled means the attempt timer was armed.
	AttemptScheduled AttemptPhase = 0
	// AttemptIssued means the connect call was made.
	AttemptIssued AttemptPhase = 1
	// AttemptSucceeded means the link was up when the result window closed.
	AttemptSucceeded AttemptPhase = 2
	// AttemptFailed means the connect call failed or the window closed while disconnected.
	AttemptFailed AttemptPhase = 3
	// AttemptsExhausted means the cycle gave up after the maximum attempt count.
	AttemptsExhausted AttemptPhase = 4
)

// String returns the phase name.
func (p AttemptPhase) String() string {
	switch p {
	case AttemptScheduled:
		return "SCHEDULED"
	case AttemptIssued:
		return "ISSUED"
	case AttemptSucceeded:
		return "SUCCEEDED"
	case AttemptFailed:
		return "FAILED"
	case AttemptsExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// AttemptEvent captures one step of a reconnect cycle.
type AttemptEvent struct {
	// Phase of the attempt.
	Phase AttemptPhase `cbor:"1,keyasint"`

	// Number is the 1-based attempt number within the cycle.
	Number int `cbor:"2,keyasint"`

	// Max is the configured maximum attempt count.
	Max int `cbor:"3,keyasint"`

	// Delay is the wait before the attempt (scheduled) or the result window (issued).
	// Stored as nanoseconds.
	Delay time.Duration `cbor:"4,keyasint,omitempty"`
}

// ErrorKind classifies journaled failures.
type ErrorKind uint8

const (
	// ErrorTransportFailure is a connect call that failed or was rejected.
	ErrorTransportFailure ErrorKind = 0
	// ErrorOperationTimeout is an operation that did not finish in time.
	ErrorOperationTimeout ErrorKind = 1
	// ErrorOperationError is an operation that returned an error or panicked.
	ErrorOperationError ErrorKind = 2
)

// String returns the error kind name.
func (k ErrorKind) String() string {
	switch k {
	case ErrorTransportFailure:
		return "TRANSPORT_FAILURE"
	case ErrorOperationTimeout:
		return "OPERATION_TIMEOUT"
	case ErrorOperationError:
		return "OPERATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures a failure.
type ErrorEventData struct {
	// Kind classifies the failure.
	Kind ErrorKind `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
