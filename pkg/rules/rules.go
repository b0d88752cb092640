package rules

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// DefaultPriority is the priority of rules added without one.
const DefaultPriority = 50

// Func adapts a function to ports.RuleEvaluator.
type Func func(ctx context.Context, rc domain.RuleContext) (domain.Decision, error)

func (f Func) Evaluate(ctx context.Context, rc domain.RuleContext) (domain.Decision, error) {
	return f(ctx, rc)
}

// AllowAll allows every step.
func AllowAll() ports.RuleEvaluator {
	return Func(func(context.Context, domain.RuleContext) (domain.Decision, error) {
		return domain.Allow(), nil
	})
}

// DenyOperations denies steps whose operation is one of ops.
func DenyOperations(ops ...string) ports.RuleEvaluator {
	return Func(func(_ context.Context, rc domain.RuleContext) (domain.Decision, error) {
		if slices.Contains(ops, rc.Operation) {
			return domain.Deny("deny_operations", fmt.Sprintf("operation %q is not permitted", rc.Operation)), nil
		}
		return domain.Allow(), nil
	})
}

// RequireContext denies steps when any of keys is missing from the saga context.
func RequireContext(keys ...string) ports.RuleEvaluator {
	return Func(func(_ context.Context, rc domain.RuleContext) (domain.Decision, error) {
		var missing []string
		for _, k := range keys {
			if _, ok := rc.Data[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return domain.Deny("require_context", "missing context keys: "+strings.Join(missing, ", ")), nil
		}
		return domain.Allow(), nil
	})
}

// Rule is a named evaluator registered in a Chain.
type Rule struct {
	Name string
	// Priority orders evaluation; higher runs first, ties keep insertion order.
	Priority int
	// Domains limits the rule to steps of these domains. Empty means all.
	Domains   []string
	Evaluator ports.RuleEvaluator
}

func (r Rule) applies(rc domain.RuleContext) bool {
	return len(r.Domains) == 0 || slices.Contains(r.Domains, rc.Domain)
}

// Chain evaluates rules by priority; the first denial wins.
type Chain struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewChain creates a chain holding rules.
func NewChain(rules ...Rule) *Chain {
	c := &Chain{}
	for _, r := range rules {
		c.Add(r)
	}
	return c
}

// Add registers a rule. A zero Priority is replaced by DefaultPriority.
func (c *Chain) Add(r Rule) {
	if r.Priority == 0 {
		r.Priority = DefaultPriority
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, r)
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].Priority > c.rules[j].Priority
	})
}

// Names lists the registered rules in evaluation order.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

// Evaluate implements ports.RuleEvaluator.
// An evaluator error is reported as a denial by that rule.
func (c *Chain) Evaluate(ctx context.Context, rc domain.RuleContext) (domain.Decision, error) {
	c.mu.RLock()
	rules := slices.Clone(c.rules)
	c.mu.RUnlock()

	for _, r := range rules {
		if !r.applies(rc) {
			continue
		}
		d, err := r.Evaluator.Evaluate(ctx, rc)
		if err != nil {
			return domain.Deny(r.Name, err.Error()), nil
		}
		if !d.Allowed {
			if d.Rule == "" {
				d.Rule = r.Name
			}
			return d, nil
		}
	}
	return domain.Allow(), nil
}
