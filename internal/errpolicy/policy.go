// Package errpolicy decides what happens when a single change of a
// changeset fails: abort the projection, or record the failure and continue.
package errpolicy

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
)

// Decision is the outcome of a policy for one failure.
type Decision int

const (
	// Abort propagates the error and stops the projection.
	Abort Decision = iota
	// Continue records the error and moves on to the next change.
	Continue
)

// Policy decides per failed change.
type Policy interface {
	Decide(err error) Decision
}

// Func adapts a plain function to a Policy.
type Func func(err error) Decision

// Decide calls f.
func (f Func) Decide(err error) Decision {
	return f(err)
}

// AbortAll propagates every failure.
var AbortAll Policy = Func(func(error) Decision { return Abort })

// Recorder collects failures and lets the projection continue. Configuration
// errors are never recorded: they abort.
type Recorder struct {
	mu     sync.Mutex
	errors *multierror.Error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Decide records err unless it is a configuration error.
func (r *Recorder) Decide(err error) Decision {
	if IsConfiguration(err) {
		return Abort
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = multierror.Append(r.errors, err)
	return Continue
}

// Err returns the recorded failures as one error, or nil.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors.ErrorOrNil()
}

// Count returns the number of recorded failures.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errors == nil {
		return 0
	}
	return len(r.errors.Errors)
}

// Run executes fn and routes a failure through p. It returns nil when the
// policy chooses to continue.
func Run(p Policy, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if p == nil || p.Decide(err) == Abort {
		return err
	}
	return nil
}

var errConfiguration = errors.New("configuration error")

// Configuration marks err as a user-facing configuration error carrying the
// given remediation hints.
func Configuration(err error, hints ...string) error {
	for _, h := range hints {
		err = errors.WithHint(err, h)
	}
	return errors.Mark(err, errConfiguration)
}

// IsConfiguration reports whether err was produced by Configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, errConfiguration)
}

// Hints returns the remediation hints attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
