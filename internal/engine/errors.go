package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDependencyOrder signals a reference to a step that has not completed
// yet. The validator rejects plans that could reach this state, so hitting
// it at run time is an internal scheduling bug, not a user error.
var ErrDependencyOrder = errors.New("reference to a step that has not completed")

// ValidationError describes one structural problem in a plan. The whole
// plan is rejected before anything runs.
type ValidationError struct {
	StepID string
	Reason string
}

func (e ValidationError) Error() string {
	if e.StepID == "" {
		return e.Reason
	}
	return fmt.Sprintf("step %s: %s", e.StepID, e.Reason)
}

// ValidationErrors aggregates every violation found in a single pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return fmt.Sprintf("invalid plan: %s", strings.Join(msgs, "; "))
}

// ResolutionError means a reference expression could not be evaluated at
// dispatch time. Only the owning step fails; siblings are unaffected.
type ResolutionError struct {
	Expression string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve {%s}: %s", e.Expression, e.Reason)
}

// CapabilityError is returned by a capability implementation when the
// external operation itself failed. Partial, if set, is still merged into
// the blackboard under the step's result key for diagnostics.
type CapabilityError struct {
	Message string
	Partial map[string]any
}

func (e *CapabilityError) Error() string {
	return e.Message
}
