package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// StepOutcome is the recorded result of one step.
type StepOutcome string

const (
	OutcomePending            StepOutcome = "pending"
	OutcomeSucceeded          StepOutcome = "succeeded"
	OutcomeFailed             StepOutcome = "failed"
	OutcomeCompensated        StepOutcome = "compensated"
	OutcomeCompensationFailed StepOutcome = "compensation_failed"
)

// FailureKind tags a failure with its place in the error taxonomy.
type FailureKind string

const (
	FailureRetryable         FailureKind = "retryable"
	FailureFatal             FailureKind = "fatal"
	FailureExhausted         FailureKind = "exhausted"
	FailureDenied            FailureKind = "denied"
	FailureInvalidTransition FailureKind = "invalid_transition"
	FailureCancelled         FailureKind = "cancelled"
	FailureTimeout           FailureKind = "timeout"
	FailureCompensation      FailureKind = "compensation"
)

// Failure is the observable record of why a step (or its compensation) failed.
type Failure struct {
	StepIndex int         `json:"step_index"`
	Step      string      `json:"step"`
	Kind      FailureKind `json:"kind"`
	Reason    string      `json:"reason"`
	Rule      string      `json:"rule,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	At        time.Time   `json:"at"`
}

// StepRecord is the per-step outcome stored in the saga record.
type StepRecord struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	Outcome     StepOutcome `json:"outcome"`
	Attempts    int         `json:"attempts"`
	Compensable bool        `json:"compensable"`
	LastError   string      `json:"last_error,omitempty"`
}

// TransitionRecord is one accepted transition, either of the saga's own table
// (Kind "step") or of the lifecycle table (Kind "lifecycle").
type TransitionRecord struct {
	Kind  string    `json:"kind"`
	From  string    `json:"from"`
	Input string    `json:"input"`
	To    string    `json:"to"`
	Event string    `json:"event,omitempty"`
	At    time.Time `json:"at"`
}

// Saga is the durable record of a saga instance.
type Saga struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Status      Status       `json:"status"`
	Current     string       `json:"current"`
	ActiveIndex int          `json:"active_index"`
	Steps       []StepRecord `json:"steps"`

	// Context holds values produced by steps, visible to later steps.
	Context map[string]any `json:"context,omitempty"`

	Failure            *Failure           `json:"failure,omitempty"`
	CompensationErrors []Failure          `json:"compensation_errors,omitempty"`
	Transitions        []TransitionRecord `json:"transitions,omitempty"`
	CancelRequested    bool               `json:"cancel_requested,omitempty"`

	// Version increases on every durable mutation.
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewSaga creates a running saga record for def.
func NewSaga(id string, def *Definition, initialContext map[string]any, now time.Time) *Saga {
	s := &Saga{
		ID:        id,
		Name:      def.Name,
		Status:    StatusRunning,
		Current:   def.Initial,
		Steps:     make([]StepRecord, len(def.Steps)),
		Context:   make(map[string]any, len(initialContext)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	maps.Copy(s.Context, initialContext)
	for i, st := range def.Steps {
		s.Steps[i] = StepRecord{
			Index:       i,
			Name:        st.Name,
			Outcome:     OutcomePending,
			Compensable: st.Compensate != nil,
		}
	}
	return s
}

// IsTerminal reports whether the saga reached a terminal status.
func (s *Saga) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Clone returns a deep copy. Context values are copied one level deep.
func (s *Saga) Clone() *Saga {
	if s == nil {
		return nil
	}
	c := *s
	c.Steps = slices.Clone(s.Steps)
	c.Context = maps.Clone(s.Context)
	c.CompensationErrors = slices.Clone(s.CompensationErrors)
	c.Transitions = slices.Clone(s.Transitions)
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Succeeded returns the indexes of steps whose outcome is Succeeded, ascending.
func (s *Saga) Succeeded() []int {
	var out []int
	for _, st := range s.Steps {
		if st.Outcome == OutcomeSucceeded {
			out = append(out, st.Index)
		}
	}
	return out
}

// HasPendingCompensation reports whether any succeeded step can be compensated.
func (s *Saga) HasPendingCompensation() bool {
	for _, st := range s.Steps {
		if st.Outcome == OutcomeSucceeded && st.Compensable {
			return true
		}
	}
	return false
}

// FailurePoint is the index where forward progress stopped.
func (s *Saga) FailurePoint() int {
	if s.Failure != nil {
		return s.Failure.StepIndex
	}
	return s.ActiveIndex
}

// CheckInvariants verifies the lifecycle invariants of the record.
func (s *Saga) CheckInvariants() error {
	switch s.Status {
	case StatusCommitted:
		for _, st := range s.Steps {
			if st.Outcome != OutcomeSucceeded {
				return fmt.Errorf("%w: committed saga %s has step %q in outcome %s", ErrInvariant, s.ID, st.Name, st.Outcome)
			}
		}
	case StatusFailed, StatusCancelled:
		point := s.FailurePoint()
		for _, st := range s.Steps {
			if st.Index >= point {
				break
			}
			if st.Outcome == OutcomeCompensated {
				continue
			}
			if st.Outcome == OutcomeSucceeded && !st.Compensable {
				continue
			}
			return fmt.Errorf("%w: %s saga %s has step %q in outcome %s below failure point %d", ErrInvariant, s.Status, s.ID, st.Name, st.Outcome, point)
		}
	case StatusFailedWithCompensationErrors:
		if len(s.CompensationErrors) == 0 {
			return fmt.Errorf("%w: saga %s is %s without compensation errors", ErrInvariant, s.ID, s.Status)
		}
	}
	return nil
}
