package ports

import (
	"context"

	"github.com/aretw0/sagaflow/pkg/domain"
)

// RuleEvaluator is consulted once per step, before the forward action.
// An error is treated as a denial carrying the error text as reason.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, rc domain.RuleContext) (domain.Decision, error)
}
