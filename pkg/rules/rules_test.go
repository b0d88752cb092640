package rules_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenyOperations(t *testing.T) {
	ev := rules.DenyOperations("refund")
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, domain.RuleContext{Operation: "charge"})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = ev.Evaluate(ctx, domain.RuleContext{Operation: "refund"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "deny_operations", d.Rule)
	assert.Contains(t, d.Reason, "refund")
}

func TestRequireContext(t *testing.T) {
	ev := rules.RequireContext("customer", "amount")
	ctx := context.Background()

	d, err := ev.Evaluate(ctx, domain.RuleContext{Data: map[string]any{"customer": "c-1"}})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "missing context keys: amount", d.Reason)

	d, err = ev.Evaluate(ctx, domain.RuleContext{Data: map[string]any{"customer": "c-1", "amount": 10}})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestChain_PriorityAndFirstDenial(t *testing.T) {
	var order []string
	track := func(name string, allow bool) rules.Func {
		return func(context.Context, domain.RuleContext) (domain.Decision, error) {
			order = append(order, name)
			if allow {
				return domain.Allow(), nil
			}
			return domain.Decision{Reason: name + " says no"}, nil
		}
	}

	chain := rules.NewChain(
		rules.Rule{Name: "low", Priority: 10, Evaluator: track("low", false)},
		rules.Rule{Name: "default", Evaluator: track("default", true)},
		rules.Rule{Name: "high", Priority: 90, Evaluator: track("high", true)},
		rules.Rule{Name: "default-2", Evaluator: track("default-2", false)},
	)
	assert.Equal(t, []string{"high", "default", "default-2", "low"}, chain.Names())

	d, err := chain.Evaluate(context.Background(), domain.RuleContext{})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "default-2", d.Rule, "rule name is filled in when the evaluator omits it")
	assert.Equal(t, []string{"high", "default", "default-2"}, order, "evaluation stops at the first denial")
}

func TestChain_DomainsAndErrors(t *testing.T) {
	chain := rules.NewChain(
		rules.Rule{Name: "billing-only", Domains: []string{"billing"}, Evaluator: rules.DenyOperations("charge")},
		rules.Rule{Name: "broken", Evaluator: rules.Func(func(context.Context, domain.RuleContext) (domain.Decision, error) {
			return domain.Decision{}, errors.New("policy store offline")
		})},
	)
	ctx := context.Background()

	d, err := chain.Evaluate(ctx, domain.RuleContext{Domain: "billing", Operation: "charge"})
	require.NoError(t, err)
	assert.Equal(t, "deny_operations", d.Rule)

	d, err = chain.Evaluate(ctx, domain.RuleContext{Domain: "inventory", Operation: "charge"})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "broken", d.Rule)
	assert.Equal(t, "policy store offline", d.Reason)
}

func TestAllowAll(t *testing.T) {
	d, err := rules.AllowAll().Evaluate(context.Background(), domain.RuleContext{})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, rules.NewChain().Names())
}
