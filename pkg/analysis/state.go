package analysis

import (
	"errors"

	"github.com/osvaldoandrade/gaitkeepr/pkg/domain"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhasePolling    Phase = "polling"
	PhaseDone       Phase = "done"
	PhaseError      Phase = "error"
	PhaseTimedOut   Phase = "timed_out"
	PhaseFailed     Phase = "failed"
)

// Finished reports whether the phase ends a run.
func (p Phase) Finished() bool {
	switch p {
	case PhaseDone, PhaseError, PhaseTimedOut, PhaseFailed:
		return true
	}
	return false
}

// State is what a view renders. Result is always the latest snapshot
// returned by the backend, never a merge of several polls.
type State struct {
	Phase       Phase
	Loading     bool
	JobID       string
	Attempt     int
	MaxAttempts int
	Result      *domain.ScoreResult
	Err         error
}

// Message is the single user-visible error line for the state, or "".
func (s State) Message() string {
	if s.Err != nil {
		return s.Err.Error()
	}
	if s.Phase == PhaseError {
		if msg := s.Result.ErrorMessage(); msg != "" {
			return msg
		}
		return "Analysis failed"
	}
	return ""
}

// TimedOut reports whether the run gave up waiting for a terminal status.
func (s State) TimedOut() bool {
	return errors.Is(s.Err, ErrTimeout)
}
