// Package operation implements the lifecycle of remote operations that complete
// asynchronously on the platform: git commands, job executions and Flink
// cluster startups.
//
// A remote operation is submitted once and then observed through repeated
// refreshes until the platform reports a terminal outcome. Handles are plain
// values: every refresh produces a new snapshot and callers rebind to it.
package operation

// Outcome is the tri-state terminal result reported by the platform.
//
// The platform reports success as a nullable boolean. A nil value means the
// operation has not reached a terminal state yet.
type Outcome int

const (
	// Unknown means the operation is still in progress.
	Unknown Outcome = iota

	// Succeeded means the platform reported a successful terminal state.
	Succeeded

	// Failed means the platform reported an unsuccessful terminal state.
	Failed
)

// OutcomeOf converts the platform's nullable success flag to an Outcome.
func OutcomeOf(success *bool) Outcome {
	switch {
	case success == nil:
		return Unknown
	case *success:
		return Succeeded
	default:
		return Failed
	}
}

// Known reports whether a terminal outcome has been observed.
func (o Outcome) Known() bool {
	return o != Unknown
}

// Bool returns the nullable success flag for this outcome.
func (o Outcome) Bool() *bool {
	switch o {
	case Succeeded:
		v := true
		return &v
	case Failed:
		v := false
		return &v
	default:
		return nil
	}
}

// String returns a lowercase label suitable for logs and ledger records.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
