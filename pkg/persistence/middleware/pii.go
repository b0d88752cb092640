package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/aretw0/sagaflow/pkg/ports"
)

// Mask replaces the value of every context key matching a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	next     ports.SagaStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks context values whose keys match the patterns.
// The in-memory record handed to Save is never modified.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SagaStore) ports.SagaStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, saga *domain.Saga) error {
	cloned := saga.Clone()
	cloned.Context = deepCopyMap(saga.Context)
	maskMap(cloned.Context, m.patterns)
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sagaID string) (*domain.Saga, error) {
	return m.next.Load(ctx, sagaID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sagaID string) error {
	return m.next.Delete(ctx, sagaID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if subMap, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(subMap)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && m[k] != Mask {
			maskMap(subMap, patterns)
		}
	}
}
