package domain

import (
	"fmt"
	"strings"
)

// Address is a dotted, subject-style destination such as "orders.commands.reserve".
// Patterns may use "*" for exactly one token and a trailing ">" for one or more tokens.
type Address string

// Validate rejects empty tokens, whitespace and misplaced wildcards.
func (a Address) Validate() error {
	if a == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	tokens := strings.Split(string(a), ".")
	for i, tok := range tokens {
		if tok == "" {
			return fmt.Errorf("%w: %q has an empty token", ErrInvalidAddress, a)
		}
		if strings.ContainsAny(tok, " \t\r\n") {
			return fmt.Errorf("%w: %q contains whitespace", ErrInvalidAddress, a)
		}
		if tok == ">" && i != len(tokens)-1 {
			return fmt.Errorf("%w: %q: '>' must be the last token", ErrInvalidAddress, a)
		}
		if len(tok) > 1 && strings.ContainsAny(tok, "*>") {
			return fmt.Errorf("%w: %q: wildcards must be whole tokens", ErrInvalidAddress, a)
		}
	}
	return nil
}

// IsPattern reports whether the address contains wildcards.
func (a Address) IsPattern() bool {
	for _, tok := range a.Tokens() {
		if tok == "*" || tok == ">" {
			return true
		}
	}
	return false
}

// Tokens splits the address on dots.
func (a Address) Tokens() []string {
	if a == "" {
		return nil
	}
	return strings.Split(string(a), ".")
}

// Matches reports whether the concrete address a is matched by pattern.
func (a Address) Matches(pattern Address) bool {
	subject := a.Tokens()
	pat := pattern.Tokens()
	for i, p := range pat {
		if p == ">" {
			return len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if p != "*" && p != subject[i] {
			return false
		}
	}
	return len(subject) == len(pat)
}

// Domain returns the first token, which by convention names the bounded context.
func (a Address) Domain() string {
	domain, _, _ := strings.Cut(string(a), ".")
	return domain
}

func (a Address) String() string {
	return string(a)
}
