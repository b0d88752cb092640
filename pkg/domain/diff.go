package domain

import (
	"reflect"
)

// SagaDiff represents the changes between two versions of a saga record.
// It is designed to be serialized to JSON for partial updates on the client.
type SagaDiff struct {
	// SagaID is always present to identify the target.
	SagaID  string `json:"saga_id"`
	Version int    `json:"version"`

	Status      *Status `json:"status,omitempty"`
	Current     *string `json:"current,omitempty"`
	ActiveIndex *int    `json:"active_index,omitempty"`

	// Steps contains only step records whose outcome or attempts changed.
	Steps []StepRecord `json:"steps,omitempty"`

	// Context contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Context map[string]any `json:"context,omitempty"`

	// Transitions contains records appended since the old version.
	Transitions []TransitionRecord `json:"transitions,omitempty"`

	Failure *Failure `json:"failure,omitempty"`
}

// Diff calculates the difference between oldSaga and newSaga.
// If oldSaga is nil, it returns a diff representing the entire newSaga (initial load).
// It returns nil when nothing changed.
func Diff(oldSaga, newSaga *Saga) *SagaDiff {
	if newSaga == nil {
		return nil
	}

	diff := &SagaDiff{
		SagaID:  newSaga.ID,
		Version: newSaga.Version,
	}

	if oldSaga == nil || oldSaga.Status != newSaga.Status {
		diff.Status = &newSaga.Status
	}
	if oldSaga == nil || oldSaga.Current != newSaga.Current {
		diff.Current = &newSaga.Current
	}
	if oldSaga == nil || oldSaga.ActiveIndex != newSaga.ActiveIndex {
		diff.ActiveIndex = &newSaga.ActiveIndex
	}
	if newSaga.Failure != nil && (oldSaga == nil || oldSaga.Failure == nil) {
		diff.Failure = newSaga.Failure
	}

	diff.Steps = diffSteps(oldSaga, newSaga)
	diff.Context = diffContext(oldSaga, newSaga)
	diff.Transitions = diffTransitions(oldSaga, newSaga)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffSteps(old, new *Saga) []StepRecord {
	var out []StepRecord
	for i, st := range new.Steps {
		if old == nil || i >= len(old.Steps) || old.Steps[i] != st {
			out = append(out, st)
		}
	}
	return out
}

func diffContext(old, new *Saga) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Context {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range new.Context {
		oldVal, exists := old.Context[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Context {
		if _, exists := new.Context[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffTransitions assumes the transition log is append-only.
func diffTransitions(old, new *Saga) []TransitionRecord {
	if old == nil {
		if len(new.Transitions) == 0 {
			return nil
		}
		return new.Transitions
	}
	if len(new.Transitions) > len(old.Transitions) {
		return new.Transitions[len(old.Transitions):]
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SagaDiff) IsEmpty() bool {
	return d.Status == nil &&
		d.Current == nil &&
		d.ActiveIndex == nil &&
		d.Failure == nil &&
		len(d.Steps) == 0 &&
		len(d.Context) == 0 &&
		len(d.Transitions) == 0
}
