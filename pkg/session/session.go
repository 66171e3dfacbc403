// Package session owns one mesh transport and the supervisor that keeps it
// connected.
//
// A Session replaces process-wide SDK access with an explicit lifecycle:
// New wires a transport to a fresh supervisor, Open performs the initial
// connect, Close tears both down. State changes fan out to any number of
// subscribers in the order the transport reported them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meshbridge/meshbridge-go/pkg/errcode"
	"github.com/meshbridge/meshbridge-go/pkg/log"
	"github.com/meshbridge/meshbridge-go/pkg/retry"
	"github.com/meshbridge/meshbridge-go/pkg/supervisor"
	"github.com/meshbridge/meshbridge-go/pkg/transport"
)

// Session errors.
var (
	ErrAlreadyOpen   = errors.New("session already open")
	ErrClosed        = errors.New("session closed")
	ErrConnectFailed = errors.New("initial connect failed")
)

// Defaults for Config.
const (
	DefaultConnectRetries = 3
	DefaultConnectDelay   = 1 * time.Second
	DefaultCloseTimeout   = 10 * time.Second
)

// Transport is the mesh link a session drives.
type Transport interface {
	supervisor.MeshTransport

	// SetStateHandler registers the receiver of state pushes.
	SetStateHandler(h transport.StateHandler)

	// Close releases the link.
	Close() error
}

// Config configures a Session.
type Config struct {
	// ID identifies the session in logs and journal events. Empty
	// generates a UUID.
	ID string

	// Supervisor configures reconnection. SessionID, Logger and
	// EventLogger are filled from the session when unset.
	Supervisor supervisor.Config

	// ConnectRetries is the number of initial connect attempts.
	ConnectRetries int

	// ConnectDelay is the first wait between initial attempts; it doubles.
	ConnectDelay time.Duration

	// ConnectWait is how long each initial attempt waits for the link.
	// Zero uses the supervisor's result window.
	ConnectWait time.Duration

	// CloseTimeout bounds Transport.Close.
	CloseTimeout time.Duration

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// EventLogger receives journal events. Nil disables journaling.
	EventLogger log.Logger
}

// Status is a snapshot of the session.
type Status struct {
	ID           string
	Open         bool
	State        supervisor.State
	Connected    bool
	Reconnecting bool
	Attempts     int
}

type lifecycle uint8

const (
	lifecycleNew lifecycle = iota
	lifecycleOpening
	lifecycleOpen
	lifecycleClosed
)

func (l lifecycle) String() string {
	switch l {
	case lifecycleNew:
		return "NEW"
	case lifecycleOpening:
		return "OPENING"
	case lifecycleOpen:
		return "OPEN"
	case lifecycleClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session owns a transport and its supervisor.
type Session struct {
	id        string
	config    Config
	transport Transport
	sup       *supervisor.Supervisor
	retry     *retry.Executor
	logger    *slog.Logger
	events    log.Logger

	// fwdMu orders forwarding of transport state into the supervisor.
	fwdMu sync.Mutex

	mu      sync.Mutex
	state   lifecycle
	linkUp  bool
	upCh    chan struct{}
	subs    map[uint64]func(bool)
	nextSub uint64
}

// New creates a session for t. The transport's state handler is claimed
// by the session.
func New(t Transport, config Config) *Session {
	if config.ConnectRetries <= 0 {
		config.ConnectRetries = DefaultConnectRetries
	}
	if config.ConnectDelay <= 0 {
		config.ConnectDelay = DefaultConnectDelay
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}

	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	supCfg := config.Supervisor
	if supCfg.SessionID == "" {
		supCfg.SessionID = id
	}
	if supCfg.Logger == nil {
		supCfg.Logger = config.Logger
	}
	if supCfg.EventLogger == nil {
		supCfg.EventLogger = config.EventLogger
	}

	s := &Session{
		id:        id,
		config:    config,
		transport: t,
		sup:       supervisor.New(t, supCfg),
		retry: retry.New(retry.Config{
			SessionID:   id,
			Logger:      config.Logger,
			EventLogger: config.EventLogger,
		}),
		logger: config.Logger,
		events: log.OrNoop(config.EventLogger),
		upCh:   make(chan struct{}, 1),
		subs:   make(map[uint64]func(bool)),
	}
	if s.config.ConnectWait <= 0 {
		s.config.ConnectWait = s.sup.Config().ResultWait
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Supervisor returns the session's supervisor.
func (s *Session) Supervisor() *supervisor.Supervisor {
	return s.sup
}

// Open connects the transport, retrying with backoff. Once the link is up
// the supervisor takes over recovery. A failed Open leaves the session
// closed to further recovery but Open may be called again.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case lifecycleOpening, lifecycleOpen:
		s.mu.Unlock()
		return ErrAlreadyOpen
	case lifecycleClosed:
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = lifecycleOpening
	s.linkUp = false
	s.mu.Unlock()

	s.journalLifecycle(lifecycleNew, lifecycleOpening, "")
	s.sup.SetListener(s.notify)
	s.transport.SetStateHandler(s.onTransportState)

	var ok bool
	s.retry.RetryWithBackoff(ctx, s.config.ConnectRetries, s.config.ConnectDelay,
		func(ctx context.Context) (bool, error) {
			if err := s.transport.AutoConnect(ctx); err != nil {
				return false, err
			}
			return s.waitLinkUp(ctx), nil
		},
		func() { ok = true },
		nil,
	)

	if !ok {
		s.mu.Lock()
		if s.state == lifecycleOpening {
			s.state = lifecycleNew
		}
		s.mu.Unlock()
		s.journalLifecycle(lifecycleOpening, lifecycleNew, "initial connect failed")
		err := fmt.Errorf("%w after %d attempts", ErrConnectFailed, s.config.ConnectRetries)
		return errcode.Handle(s.logger, err, errcode.ConnectionError, nil)
	}

	// Hand over to the supervisor with whatever the link reports now.
	s.fwdMu.Lock()
	defer s.fwdMu.Unlock()

	s.mu.Lock()
	if s.state != lifecycleOpening {
		s.mu.Unlock()
		return ErrClosed
	}
	s.state = lifecycleOpen
	up := s.linkUp
	s.mu.Unlock()

	s.infoLog("session open", "session", s.id)
	s.journalLifecycle(lifecycleOpening, lifecycleOpen, "")
	s.sup.OnConnectionStateChanged(up)
	return nil
}

// Close stops recovery and releases the transport. The transport close is
// bounded by CloseTimeout. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == lifecycleClosed {
		s.mu.Unlock()
		return nil
	}
	old := s.state
	s.state = lifecycleClosed
	s.subs = make(map[uint64]func(bool))
	s.mu.Unlock()

	s.sup.Cleanup()
	s.transport.SetStateHandler(nil)

	err := s.retry.Do(ctx, s.config.CloseTimeout, func(context.Context) error {
		return s.transport.Close()
	})

	s.journalLifecycle(old, lifecycleClosed, "")
	if err != nil {
		return errcode.Handle(s.logger, fmt.Errorf("close transport: %w", err), errcode.DisposeError, nil)
	}
	s.infoLog("session closed", "session", s.id)
	return nil
}

// Reconnect discards any recovery in progress and starts a new cycle.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != lifecycleOpen {
		return errcode.New(errcode.NotInitialized, "session is not open")
	}
	s.sup.ForceReconnect()
	return nil
}

// ResetRecovery abandons any reconnect cycle in progress. The next reported
// disconnect starts a new one.
func (s *Session) ResetRecovery() {
	s.sup.Reset()
}

// Subscribe registers fn for connection-state changes and returns a
// function that removes it. fn must not block.
func (s *Session) Subscribe(fn func(connected bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	open := s.state == lifecycleOpen
	s.mu.Unlock()

	return Status{
		ID:           s.id,
		Open:         open,
		State:        s.sup.State(),
		Connected:    s.sup.IsConnected(),
		Reconnecting: s.sup.IsReconnecting(),
		Attempts:     s.sup.Attempts(),
	}
}

// onTransportState receives pushes from the transport.
func (s *Session) onTransportState(connected bool) {
	s.fwdMu.Lock()
	defer s.fwdMu.Unlock()

	s.mu.Lock()
	state := s.state
	if state == lifecycleOpening {
		s.linkUp = connected
		if connected {
			select {
			case s.upCh <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()

	if state == lifecycleOpen {
		s.sup.OnConnectionStateChanged(connected)
	}
}

// notify fans supervisor notifications out to subscribers.
func (s *Session) notify(connected bool) {
	s.mu.Lock()
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(connected)
	}
}

// waitLinkUp waits up to ConnectWait for the transport to report a link.
func (s *Session) waitLinkUp(ctx context.Context) bool {
	timer := time.NewTimer(s.config.ConnectWait)
	defer timer.Stop()

	for {
		s.mu.Lock()
		up := s.linkUp
		s.mu.Unlock()
		if up {
			return true
		}

		select {
		case <-s.upCh:
		case <-timer.C:
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.linkUp
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Session) journalLifecycle(from, to lifecycle, reason string) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Component: log.ComponentSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (s *Session) infoLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
