package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// Clock is a controllable ports.Clock.
// In auto mode every After fires immediately; otherwise waits block until Advance.
type Clock struct {
	mu      sync.Mutex
	now     time.Time
	auto    bool
	waits   []time.Duration
	pending []timer
	waiting chan struct{}
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// NewClock returns a manual clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		waiting: make(chan struct{}, 64),
	}
}

// NewAutoClock returns a clock whose waits elapse instantly.
func NewAutoClock() *Clock {
	c := NewClock()
	c.auto = true
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if c.auto {
		c.now = c.now.Add(d)
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, timer{at: c.now.Add(d), ch: ch})
	select {
	case c.waiting <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves the clock forward and fires every elapsed wait.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.pending[:0]
	for _, t := range c.pending {
		if !t.at.After(c.now) {
			t.ch <- c.now
			continue
		}
		kept = append(kept, t)
	}
	c.pending = kept
}

// BlockUntilWaiting returns once some goroutine is blocked in After, or ctx ends.
func (c *Clock) BlockUntilWaiting(ctx context.Context) error {
	select {
	case <-c.waiting:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Waits returns every duration passed to After, in call order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// Recorder counts invocations of fake actions by name.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

// Calls returns the invocation log in order.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many times name was invoked.
func (r *Recorder) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (r *Recorder) record(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Succeed returns an action that records name and returns data.
func (r *Recorder) Succeed(name string, data map[string]any) domain.Action {
	return func(context.Context, domain.StepContext) (domain.StepResult, error) {
		r.record(name)
		return domain.StepResult{Data: data}, nil
	}
}

// Fail returns an action that records name and always returns err.
func (r *Recorder) Fail(name string, err error) domain.Action {
	return func(context.Context, domain.StepContext) (domain.StepResult, error) {
		r.record(name)
		return domain.StepResult{}, err
	}
}

// FailTimes returns an action that fails with err on its first n calls and then succeeds.
func (r *Recorder) FailTimes(name string, n int, err error) domain.Action {
	return func(context.Context, domain.StepContext) (domain.StepResult, error) {
		if r.record(name) <= n {
			return domain.StepResult{}, err
		}
		return domain.StepResult{}, nil
	}
}

// Block returns an action that records name, signals started and waits for ctx.
func (r *Recorder) Block(name string, started chan<- struct{}) domain.Action {
	return func(ctx context.Context, _ domain.StepContext) (domain.StepResult, error) {
		r.record(name)
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return domain.StepResult{}, ctx.Err()
	}
}

// Step builds a linear step named name with the given forward and compensating actions.
func Step(name string, do, undo domain.Action) domain.Step {
	return domain.Step{Name: name, Action: do, Compensate: undo}
}

// Definition builds a linear definition over steps.
func Definition(name string, steps ...domain.Step) *domain.Definition {
	return &domain.Definition{Name: name, Initial: "start", Steps: steps}
}

// Undo names the compensation of step name in Recorder logs.
func Undo(name string) string {
	return fmt.Sprintf("undo:%s", name)
}
