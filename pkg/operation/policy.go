package operation

import (
	"errors"
	"time"
)

// DefaultInterval is the pause between two refreshes of a remote operation.
const DefaultInterval = 3 * time.Second

// Unbounded disables the iteration budget of a Policy.
const Unbounded = -1

// Policy bounds a wait loop.
type Policy struct {
	// Interval is the pause between refreshes. Must be positive.
	Interval time.Duration

	// Budget is the number of additional refreshes allowed after the initial
	// one. Unbounded (-1) polls until the terminal condition holds.
	// A Budget of 0 returns right after the initial refresh.
	Budget int
}

// DefaultPolicy polls every DefaultInterval with no budget.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, Budget: Unbounded}
}

// Bounded returns a policy with the given interval and iteration budget.
func Bounded(interval time.Duration, budget int) Policy {
	if budget < 0 {
		budget = 0
	}
	return Policy{Interval: interval, Budget: budget}
}

// IsBounded reports whether the policy has an iteration budget.
func (p Policy) IsBounded() bool {
	return p.Budget >= 0
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if p.Budget < Unbounded {
		return errors.New("budget must be >= 0 or Unbounded")
	}
	return nil
}
