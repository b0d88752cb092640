package domain

// RuleContext is handed to the rule collaborator before a step's forward action.
type RuleContext struct {
	SagaID    string
	Saga      string
	Step      string
	Index     int
	Domain    string
	Operation string
	// Actor is read from the saga context key "actor", when present.
	Actor string
	Data  map[string]any
}

// Decision is the verdict of the rule collaborator.
type Decision struct {
	Allowed bool
	Reason  string
	// Rule names the rule that produced the decision, for the failure record.
	Rule string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a vetoing decision.
func Deny(rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}
