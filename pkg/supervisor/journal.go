package supervisor

import (
	"time"

	"github.com/meshbridge/meshbridge-go/pkg/log"
)

func (s *Supervisor) journalState(oldState, newState State, reason string) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.config.SessionID,
		Component: log.ComponentSupervisor,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState:  oldState.String(),
			NewState:  newState.String(),
			Connected: s.connected,
			Reason:    reason,
		},
	})
}

func (s *Supervisor) journalAttempt(phase log.AttemptPhase, attempt int, delay time.Duration) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.config.SessionID,
		Component: log.ComponentSupervisor,
		Category:  log.CategoryAttempt,
		Attempt: &log.AttemptEvent{
			Phase:  phase,
			Number: attempt,
			Max:    s.config.MaxAttempts,
			Delay:  delay,
		},
	})
}

func (s *Supervisor) journalError(err error, context string) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.config.SessionID,
		Component: log.ComponentSupervisor,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Kind:    log.ErrorTransportFailure,
			Message: err.Error(),
			Context: context,
		},
	})
}
