package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/log"
	"github.com/meshbridge/meshbridge-go/pkg/scheduler"
)

// ErrTransportFailure wraps every error returned by MeshTransport.AutoConnect.
// It never escapes the supervisor; it appears only in logs and the journal.
var ErrTransportFailure = errors.New("transport failure")

// MeshTransport is the capability the supervisor drives.
type MeshTransport interface {
	// AutoConnect asks the transport to scan for and connect to any proxy
	// node of the mesh. It returns an error only on immediate rejection;
	// the outcome of an accepted request arrives later through
	// Supervisor.OnConnectionStateChanged.
	AutoConnect(ctx context.Context) error
}

// Listener receives every observed connection-state change.
type Listener func(connected bool)

// State represents the supervisor state.
type State uint8

const (
	// StateIdle indicates no transport signal has been observed yet.
	StateIdle State = iota

	// StateConnected indicates the transport reported a connection.
	StateConnected

	// StateDisconnected indicates the link is down and no cycle is running.
	StateDisconnected

	// StateReconnecting indicates a reconnect cycle is in flight.
	StateReconnecting
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Supervisor. Zero fields take the defaults.
type Config struct {
	// MaxAttempts is the number of attempts in one reconnect cycle.
	MaxAttempts int

	// BaseDelay is the linear backoff unit.
	BaseDelay time.Duration

	// ResultWait is the window after AutoConnect before checking the link.
	ResultWait time.Duration

	// Scheduler arms retry timers. Nil means scheduler.Real.
	Scheduler scheduler.Scheduler

	// SessionID tags journal events.
	SessionID string

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// EventLogger receives journal events. Nil disables journaling.
	EventLogger log.Logger
}

// DefaultConfig returns a Config with the standard reconnect policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		ResultWait:  DefaultResultWait,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.ResultWait <= 0 {
		c.ResultWait = DefaultResultWait
	}
}

// Supervisor tracks one mesh-proxy connection and recovers it when it drops.
type Supervisor struct {
	mu sync.Mutex

	// notifyMu serializes OnConnectionStateChanged so notifications leave in
	// the order state changes were applied. Lock order: notifyMu, then mu.
	notifyMu sync.Mutex

	transport MeshTransport
	config    Config
	timers    *scheduler.Group
	events    log.Logger
	logger    *slog.Logger

	// Observed state
	observed     bool
	connected    bool
	reconnecting bool
	attempts     int

	// epoch invalidates callbacks armed before the last reset.
	epoch uint64

	// cancelAttempt aborts an AutoConnect call in flight.
	cancelAttempt context.CancelFunc

	listener Listener
}

// New creates a supervisor for transport.
func New(transport MeshTransport, config Config) *Supervisor {
	config.applyDefaults()
	return &Supervisor{
		transport: transport,
		config:    config,
		timers:    scheduler.NewGroup(config.Scheduler),
		events:    log.OrNoop(config.EventLogger),
		logger:    config.Logger,
	}
}

// SetListener replaces the state-change listener. Nil clears it.
func (s *Supervisor) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// OnConnectionStateChanged records a transition reported by the transport.
// A disconnect while no cycle is running starts one. The listener is always
// called afterwards. It never blocks on reconnect work.
//
// The listener must not call OnConnectionStateChanged synchronously.
func (s *Supervisor) OnConnectionStateChanged(connected bool) {
	// notifyMu is taken before mu so a listener can query the supervisor
	// while another push waits.
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()

	oldState := s.stateLocked()
	s.observed = true
	s.connected = connected

	reason := ""
	if !connected && !s.reconnecting {
		s.warnLog("connection lost, attempting automatic reconnection")
		reason = "connection lost"
		s.attemptReconnectLocked()
	}

	s.journalState(oldState, s.stateLocked(), reason)
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(connected)
	}
}

// Reset clears the reconnect bookkeeping and cancels pending timers.
// The connected flag and the listener are left alone.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ForceReconnect discards any cycle in progress and starts a new one.
func (s *Supervisor) ForceReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldState := s.stateLocked()
	s.resetLocked()
	s.attemptReconnectLocked()
	s.journalState(oldState, s.stateLocked(), "forced")
}

// IsConnected returns the last reported transport state.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsReconnecting returns true while a reconnect cycle is in flight.
func (s *Supervisor) IsReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// Attempts returns the number of attempts made in the current cycle.
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config {
	return s.config
}

// Cleanup cancels pending timers, resets, and drops the listener. The
// supervisor returns to IDLE and reports not connected until the transport
// pushes again. It is safe to call multiple times and from any state.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.listener = nil
	s.observed = false
	s.connected = false
}

func (s *Supervisor) stateLocked() State {
	switch {
	case s.reconnecting:
		return StateReconnecting
	case !s.observed:
		return StateIdle
	case s.connected:
		return StateConnected
	default:
		return StateDisconnected
	}
}

func (s *Supervisor) resetLocked() {
	s.reconnecting = false
	s.attempts = 0

	s.epoch++
	s.timers.StopAll()
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
}

// attemptReconnectLocked runs one step of the reconnect cycle.
func (s *Supervisor) attemptReconnectLocked() {
	if s.reconnecting || s.attempts >= s.config.MaxAttempts {
		if s.attempts >= s.config.MaxAttempts {
			s.errorLog("max reconnection attempts reached, giving up", "attempts", s.attempts)
			s.journalAttempt(log.AttemptsExhausted, s.attempts, 0)
			s.resetLocked()
		}
		return
	}

	s.reconnecting = true
	s.attempts++

	attempt := s.attempts
	epoch := s.epoch
	delay := LinearDelay(s.config.BaseDelay, attempt)

	s.debugLog("reconnection attempt scheduled", "attempt", attempt, "delay", delay)
	s.journalAttempt(log.AttemptScheduled, attempt, delay)

	s.timers.AfterFunc(delay, func() {
		s.issueAttempt(epoch, attempt)
	})
}

// issueAttempt calls AutoConnect outside the lock and arms the result check.
func (s *Supervisor) issueAttempt(epoch uint64, attempt int) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelAttempt = cancel
	s.debugLog("attempting to reconnect", "attempt", attempt)
	s.journalAttempt(log.AttemptIssued, attempt, s.config.ResultWait)
	s.mu.Unlock()

	err := s.autoConnect(ctx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return
	}
	s.cancelAttempt = nil

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		s.errorLog("reconnection attempt failed", "attempt", attempt, "error", err)
		s.journalError(err, fmt.Sprintf("attempt %d", attempt))
		s.journalAttempt(log.AttemptFailed, attempt, 0)
		s.reconnecting = false
		s.attemptReconnectLocked()
		return
	}

	s.timers.AfterFunc(s.config.ResultWait, func() {
		s.evaluateAttempt(epoch, attempt)
	})
}

// evaluateAttempt runs when the result window closes.
func (s *Supervisor) evaluateAttempt(epoch uint64, attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch {
		return
	}

	if s.connected {
		s.infoLog("reconnection successful", "attempt", attempt)
		s.journalAttempt(log.AttemptSucceeded, attempt, 0)
		s.resetLocked()
		return
	}

	s.journalAttempt(log.AttemptFailed, attempt, 0)
	s.reconnecting = false
	s.attemptReconnectLocked()
}

// autoConnect shields the supervisor from a panicking transport.
func (s *Supervisor) autoConnect(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autoconnect panicked: %v", r)
		}
	}()
	return s.transport.AutoConnect(ctx)
}

// debugLog logs a debug message if logging is enabled.
func (s *Supervisor) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Supervisor) infoLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Supervisor) warnLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Supervisor) errorLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}
