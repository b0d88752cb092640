package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	running := StatusRunning
	committed := StatusCommitted

	tests := []struct {
		name     string
		old      *Saga
		new      *Saga
		wantDiff *SagaDiff // nil means we expect no diff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Saga{
				ID:      "saga-1",
				Status:  StatusRunning,
				Current: "start",
				Context: map[string]any{"a": 1},
			},
			wantDiff: &SagaDiff{
				SagaID:      "saga-1",
				Status:      &running,
				Current:     &[]string{"start"}[0],
				ActiveIndex: &[]int{0}[0],
				Context:     map[string]any{"a": 1},
			},
		},
		{
			name: "No Changes",
			old: &Saga{
				ID:      "saga-1",
				Status:  StatusRunning,
				Current: "start",
				Context: map[string]any{"a": 1},
			},
			new: &Saga{
				ID:      "saga-1",
				Status:  StatusRunning,
				Current: "start",
				Context: map[string]any{"a": 1},
			},
			wantDiff: nil,
		},
		{
			name: "Status Change",
			old: &Saga{
				ID:      "saga-1",
				Status:  StatusRunning,
				Current: "ship",
			},
			new: &Saga{
				ID:      "saga-1",
				Status:  StatusCommitted,
				Current: "ship",
			},
			wantDiff: &SagaDiff{
				SagaID: "saga-1",
				Status: &committed,
			},
		},
		{
			name: "Step Advance",
			old: &Saga{
				ID:      "saga-1",
				Current: "start",
				Steps:   []StepRecord{{Index: 0, Name: "reserve", Outcome: OutcomePending}},
			},
			new: &Saga{
				ID:          "saga-1",
				Current:     "reserve",
				ActiveIndex: 1,
				Steps:       []StepRecord{{Index: 0, Name: "reserve", Outcome: OutcomeSucceeded, Attempts: 1}},
				Transitions: []TransitionRecord{{Kind: "step", From: "start", Input: "reserve", To: "reserve"}},
			},
			wantDiff: &SagaDiff{
				SagaID:      "saga-1",
				Current:     &[]string{"reserve"}[0],
				ActiveIndex: &[]int{1}[0],
				Steps:       []StepRecord{{Index: 0, Name: "reserve", Outcome: OutcomeSucceeded, Attempts: 1}},
				Transitions: []TransitionRecord{{Kind: "step", From: "start", Input: "reserve", To: "reserve"}},
			},
		},
		{
			name: "Context Added & Modified",
			old: &Saga{
				ID:      "saga-1",
				Context: map[string]any{"a": 1, "b": "old"},
			},
			new: &Saga{
				ID:      "saga-1",
				Context: map[string]any{"a": 1, "b": "new", "c": true},
			},
			wantDiff: &SagaDiff{
				SagaID:  "saga-1",
				Context: map[string]any{"b": "new", "c": true},
			},
		},
		{
			name: "Context Deletion",
			old: &Saga{
				Context: map[string]any{"a": 1, "b": 2},
			},
			new: &Saga{
				Context: map[string]any{"a": 1},
			},
			wantDiff: &SagaDiff{
				Context: map[string]any{"b": nil},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %v", tt.wantDiff)
			}

			if got.SagaID != tt.wantDiff.SagaID {
				t.Errorf("Diff().SagaID = %v, want %v", got.SagaID, tt.wantDiff.SagaID)
			}
			if !reflect.DeepEqual(got.Context, tt.wantDiff.Context) {
				t.Errorf("Diff().Context = %v, want %v", got.Context, tt.wantDiff.Context)
			}
			if !reflect.DeepEqual(got.Steps, tt.wantDiff.Steps) {
				t.Errorf("Diff().Steps = %v, want %v", got.Steps, tt.wantDiff.Steps)
			}
			if !reflect.DeepEqual(got.Transitions, tt.wantDiff.Transitions) {
				t.Errorf("Diff().Transitions = %v, want %v", got.Transitions, tt.wantDiff.Transitions)
			}
			if !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
			if !equalPtr(got.Current, tt.wantDiff.Current) {
				t.Errorf("Diff().Current = %v, want %v", got.Current, tt.wantDiff.Current)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Empty Context Omitted", func(t *testing.T) {
		s1 := &Saga{Status: StatusRunning, Context: map[string]any{"a": 1}}
		s2 := &Saga{Status: StatusCommitted, Context: map[string]any{"a": 1}}
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}
		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"context"`) {
			t.Errorf("JSON should not contain 'context' when empty, got: %s", string(bytes))
		}
	})

	t.Run("Deletions as Null", func(t *testing.T) {
		s1 := &Saga{Context: map[string]any{"a": 1, "b": 2}}
		s2 := &Saga{Context: map[string]any{"a": 1}} // 'b' deleted
		diff := Diff(s1, s2)

		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"b":null`) {
			t.Errorf("JSON should contain 'b':null for deletion, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
