// Package retry holds the per-step retry policy: how many attempts a step gets,
// how long to wait between them and which failures deserve another attempt.
package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffKind selects the delay strategy between attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Defaults applied by DefaultPolicy and by Normalize for unset fields.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 100 * time.Millisecond
	DefaultMultiplier  = 2.0
	DefaultCap         = 10 * time.Second
)

// Backoff describes the wait between attempts.
// Fixed uses Delay. Exponential uses Base * Multiplier^(attempt-1), capped at Cap.
type Backoff struct {
	Kind       BackoffKind   `json:"kind" yaml:"kind" mapstructure:"kind"`
	Delay      time.Duration `json:"delay,omitempty" yaml:"delay,omitempty" mapstructure:"delay"`
	Base       time.Duration `json:"base,omitempty" yaml:"base,omitempty" mapstructure:"base"`
	Multiplier float64       `json:"multiplier,omitempty" yaml:"multiplier,omitempty" mapstructure:"multiplier"`
	Cap        time.Duration `json:"cap,omitempty" yaml:"cap,omitempty" mapstructure:"cap"`
}

// Fixed returns a constant backoff.
func Fixed(d time.Duration) Backoff {
	return Backoff{Kind: BackoffFixed, Delay: d}
}

// Exponential returns a capped exponential backoff.
func Exponential(base time.Duration, multiplier float64, cap time.Duration) Backoff {
	return Backoff{Kind: BackoffExponential, Base: base, Multiplier: multiplier, Cap: cap}
}

// Policy is the retry policy of a single step.
type Policy struct {
	MaxAttempts int        `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`
	Backoff     Backoff    `json:"backoff" yaml:"backoff" mapstructure:"backoff"`
	Classifier  Classifier `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultPolicy returns 3 attempts with exponential backoff of 100ms doubling up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Exponential(DefaultBase, DefaultMultiplier, DefaultCap),
	}
}

// NoRetry returns a single-attempt policy.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1, Backoff: Fixed(0)}
}

// Normalize fills unset fields. MaxAttempts below 1 becomes 1.
func (p Policy) Normalize() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	switch p.Backoff.Kind {
	case "":
		if p.Backoff.Delay > 0 {
			p.Backoff.Kind = BackoffFixed
		} else {
			p.Backoff = Exponential(DefaultBase, DefaultMultiplier, DefaultCap)
		}
	case BackoffExponential:
		if p.Backoff.Base <= 0 {
			p.Backoff.Base = DefaultBase
		}
		if p.Backoff.Multiplier < 1 {
			p.Backoff.Multiplier = DefaultMultiplier
		}
		if p.Backoff.Cap <= 0 {
			p.Backoff.Cap = DefaultCap
		}
	}
	return p
}

// Validate reports configuration errors that Normalize cannot repair.
func (p Policy) Validate() error {
	switch p.Backoff.Kind {
	case "", BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("unknown backoff kind %q", p.Backoff.Kind)
	}
	if p.Backoff.Delay < 0 || p.Backoff.Base < 0 || p.Backoff.Cap < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	if p.Backoff.Kind == BackoffExponential && p.Backoff.Cap > 0 && p.Backoff.Base > p.Backoff.Cap {
		return fmt.Errorf("backoff base %s exceeds cap %s", p.Backoff.Base, p.Backoff.Cap)
	}
	return nil
}

// ShouldRetry reports whether another attempt follows the failed attempt number
// attempt (1-based). Fatal failures and exhausted attempts never retry.
func ShouldRetry(p Policy, attempt int, kind Kind) bool {
	if kind != KindRetryable {
		return false
	}
	return attempt < p.Normalize().MaxAttempts
}

// NextDelay returns the wait after the failed attempt number attempt (1-based).
func NextDelay(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	p = p.Normalize()

	var b backoff.BackOff
	switch p.Backoff.Kind {
	case BackoffFixed:
		b = backoff.NewConstantBackOff(p.Backoff.Delay)
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = p.Backoff.Base
		exp.Multiplier = p.Backoff.Multiplier
		exp.MaxInterval = p.Backoff.Cap
		exp.RandomizationFactor = 0
		b = exp
	}

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		return 0
	}
	return d
}
