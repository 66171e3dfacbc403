package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/meshbridge/meshbridge-go/pkg/log"
)

// Defaults used when a zero value is passed.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 1 * time.Second
)

// ErrOperationTimeout is returned by Do when the operation overran its timeout.
var ErrOperationTimeout = errors.New("operation timed out")

// OperationError reports an operation that returned an error or panicked.
type OperationError struct {
	// Err is the returned error, or nil if the operation panicked.
	Err error

	// Panic is the recovered panic value, if any.
	Panic any
}

func (e *OperationError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("operation panicked: %v", e.Panic)
	}
	return fmt.Sprintf("operation failed: %v", e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Operation is a unit of work bounded by ExecuteWithTimeout.
type Operation func(ctx context.Context) error

// Attempt is a unit of work retried by RetryWithBackoff.
// It reports whether it succeeded.
type Attempt func(ctx context.Context) (bool, error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config configures an Executor.
type Config struct {
	// Sleep waits between retry attempts. Nil uses a timer.
	Sleep SleepFunc

	// SessionID tags journal events.
	SessionID string

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// EventLogger receives journal events. Nil disables journaling.
	EventLogger log.Logger
}

// Executor runs bounded and retried operations.
// An Executor is safe for concurrent use.
type Executor struct {
	sleep     SleepFunc
	sessionID string
	logger    *slog.Logger
	events    log.Logger
}

// New creates an Executor.
func New(config Config) *Executor {
	sleep := config.Sleep
	if sleep == nil {
		sleep = contextSleep
	}
	return &Executor{
		sleep:     sleep,
		sessionID: config.SessionID,
		logger:    config.Logger,
		events:    log.OrNoop(config.EventLogger),
	}
}

var defaultExecutor = New(Config{})

// ExecuteWithTimeout runs op with the default executor.
func ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op Operation, onTimeout func(), onError func(error)) {
	defaultExecutor.ExecuteWithTimeout(ctx, timeout, op, onTimeout, onError)
}

// RetryWithBackoff retries op with the default executor.
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, op Attempt, onSuccess, onFailure func()) {
	defaultExecutor.RetryWithBackoff(ctx, maxRetries, initialDelay, op, onSuccess, onFailure)
}

// Do runs op with the default executor and returns its outcome as an error.
func Do(ctx context.Context, timeout time.Duration, op Operation) error {
	return defaultExecutor.Do(ctx, timeout, op)
}

// ExecuteWithTimeout runs op on a new goroutine and blocks until it returns
// or timeout elapses. If op overruns, its context is cancelled and onTimeout
// is called. If op returns an error or panics, onError is called with an
// *OperationError. At most one of the callbacks fires; neither fires on
// normal completion. Nil callbacks are skipped.
//
// Cancelling ctx before op returns is reported through onError.
func (e *Executor) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op Operation, onTimeout func(), onError func(error)) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned operation can still finish and exit.
	done := make(chan error, 1)
	go func() {
		done <- runOperation(opCtx, op)
	}()

	var err error
	select {
	case err = <-done:
	case <-opCtx.Done():
		// Completion and expiry can race; a finished result wins.
		select {
		case err = <-done:
		default:
			if ctx.Err() != nil {
				err = &OperationError{Err: ctx.Err()}
				break
			}
			e.warnLog("operation timed out", "timeout", timeout)
			e.journalError(log.ErrorOperationTimeout, ErrOperationTimeout, timeout.String())
			if onTimeout != nil {
				onTimeout()
			}
			return
		}
	}

	if err == nil {
		return
	}
	e.warnLog("operation failed", "error", err)
	e.journalError(log.ErrorOperationError, err, "")
	if onError != nil {
		onError(err)
	}
}

// RetryWithBackoff calls op up to maxRetries times. On the first success it
// calls onSuccess and returns. Between failed attempts it waits, starting at
// initialDelay and doubling each time; no wait follows the last attempt.
// After maxRetries failures it calls onFailure. Errors and panics from op
// count as failures. If ctx ends during a wait, onFailure is called.
//
// Exactly one of onSuccess and onFailure is called. Zero arguments take
// DefaultMaxRetries and DefaultInitialDelay.
func (e *Executor) RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, op Attempt, onSuccess, onFailure func()) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}

	b := newDoublingBackoff(initialDelay)

	made := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		made = attempt
		ok, err := runAttempt(ctx, op)
		if ok {
			e.debugLog("retry succeeded", "attempt", attempt)
			e.journalAttempt(log.AttemptSucceeded, attempt, maxRetries, 0)
			if onSuccess != nil {
				onSuccess()
			}
			return
		}
		if err != nil {
			e.warnLog("retry attempt failed", "attempt", attempt, "error", err)
			e.journalError(log.ErrorOperationError, err, fmt.Sprintf("attempt %d", attempt))
		}

		// Don't sleep after the last attempt.
		if attempt == maxRetries {
			e.journalAttempt(log.AttemptFailed, attempt, maxRetries, 0)
			break
		}

		delay := b.NextBackOff()
		e.journalAttempt(log.AttemptFailed, attempt, maxRetries, delay)
		if err := e.sleep(ctx, delay); err != nil {
			e.debugLog("retry wait interrupted", "attempt", attempt, "error", err)
			break
		}
	}

	e.journalAttempt(log.AttemptsExhausted, made, maxRetries, 0)
	if onFailure != nil {
		onFailure()
	}
}

// Do runs op under ExecuteWithTimeout and returns nil on normal completion,
// ErrOperationTimeout on timeout, or the *OperationError.
func (e *Executor) Do(ctx context.Context, timeout time.Duration, op Operation) error {
	var result error
	e.ExecuteWithTimeout(ctx, timeout, op,
		func() { result = fmt.Errorf("%w after %s", ErrOperationTimeout, timeoutOrDefault(timeout)) },
		func(err error) { result = err },
	)
	return result
}

// newDoublingBackoff returns an unjittered, uncapped exponential backoff.
func newDoublingBackoff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.RandomizationFactor = 0
	b.Multiplier = 2.0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.Reset()
	return b
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

func runOperation(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &OperationError{Panic: r}
		}
	}()
	if err := op(ctx); err != nil {
		return &OperationError{Err: err}
	}
	return nil
}

func runAttempt(ctx context.Context, op Attempt) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, &OperationError{Panic: r}
		}
	}()
	return op(ctx)
}

// contextSleep waits for the given duration or until the context is done,
// whichever comes first. Returns ctx.Err() if the context was cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) journalError(kind log.ErrorKind, err error, what string) {
	e.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Component: log.ComponentRetry,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Kind:    kind,
			Message: err.Error(),
			Context: what,
		},
	})
}

func (e *Executor) journalAttempt(phase log.AttemptPhase, number, max int, delay time.Duration) {
	e.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Component: log.ComponentRetry,
		Category:  log.CategoryAttempt,
		Attempt: &log.AttemptEvent{
			Phase:  phase,
			Number: number,
			Max:    max,
			Delay:  delay,
		},
	})
}

func (e *Executor) debugLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Executor) warnLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
