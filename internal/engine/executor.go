package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nsharma/weft/internal/observability"
)

// PolicyFunc is consulted after a step's arguments resolve and before its
// capability is invoked. A non-nil error fails the step without invoking.
type PolicyFunc func(ctx context.Context, capability string, args map[string]any) error

// Executor walks a validated plan's dependency graph, runs every ready
// step concurrently, and merges completed outputs into the blackboard.
// One coordinating loop owns all state transitions and all merges, so no
// two completions can interleave their writes; capability invocations
// themselves run fully in parallel with no fan-out bound beyond the
// number of currently ready steps.
type Executor struct {
	Registry *Registry
	Policy   PolicyFunc
	Logger   *observability.Logger
	// GracePeriod is how long in-flight capabilities get to observe
	// cancellation before they are reported as failed.
	GracePeriod time.Duration
}

func NewExecutor(registry *Registry, logger *observability.Logger) *Executor {
	return &Executor{
		Registry:    registry,
		Logger:      logger,
		GracePeriod: 5 * time.Second,
	}
}

// outcome is what a dispatched step sends back to the coordinator.
type outcome struct {
	stepID   string
	output   map[string]any
	err      error
	duration time.Duration
}

// Execute runs the plan against the blackboard and environment mapping.
// It assumes the plan has already passed Validate; submitting an
// unvalidated plan is a programming error. The returned report lists
// step results in completion order. A non-nil error is returned only for
// internal invariant violations, never for step-level failures.
func (e *Executor) Execute(ctx context.Context, plan *Plan, blackboard *Blackboard, env map[string]string) (*ExecutionReport, error) {
	if blackboard == nil {
		blackboard = NewBlackboard()
	}
	plan.Status = PlanRunning
	report := &ExecutionReport{
		PlanID:    plan.ID,
		Goal:      plan.Goal,
		StartedAt: time.Now(),
	}
	e.logPlan(ctx, plan, "running")

	status := make(map[string]StepStatus, len(plan.Steps))
	stepIDs := make(map[string]bool, len(plan.Steps))
	for i := range plan.Steps {
		status[plan.Steps[i].ID] = StepPending
		stepIDs[plan.Steps[i].ID] = true
	}
	// Outputs of succeeded steps, keyed by step ID.
	results := make(map[string]map[string]any)
	// Failure reason per failed step, so skipped dependents can report
	// the triggering failure.
	failReason := make(map[string]string)

	// Buffered so abandoned steps can still deliver after the grace
	// period without leaking a blocked goroutine.
	done := make(chan outcome, len(plan.Steps))
	inFlight := 0
	cancelled := false

	record := func(res StepResult) {
		report.Results = append(report.Results, res)
		e.logStep(ctx, plan, res)
	}

	finish := func(out outcome) error {
		inFlight--
		step := plan.Step(out.stepID)
		res := StepResult{
			StepID:     out.stepID,
			Capability: step.Capability,
			Duration:   out.duration,
		}
		switch {
		case out.err == nil:
			status[out.stepID] = StepSucceeded
			results[out.stepID] = out.output
			cap, _ := e.Registry.Lookup(step.Capability)
			blackboard.merge(out.stepID, out.output, cap.OutputKeys)
			res.Status = StepSucceeded
			res.Output = out.output
		default:
			if errors.Is(out.err, ErrDependencyOrder) {
				return out.err
			}
			status[out.stepID] = StepFailed
			failReason[out.stepID] = out.err.Error()
			res.Status = StepFailed
			res.Error = out.err.Error()
			var capErr *CapabilityError
			if errors.As(out.err, &capErr) && capErr.Partial != nil {
				// Diagnostic merge: partial output goes under the
				// step-result key only, never under semantic keys.
				blackboard.merge(out.stepID, capErr.Partial, nil)
				res.Output = capErr.Partial
			}
		}
		record(res)
		return nil
	}

	// advance skips and dispatches until no step changes state. Skips
	// cascade, so the scan repeats until a full pass is quiet.
	advance := func() {
		for changed := true; changed; {
			changed = false
			for i := range plan.Steps {
				step := &plan.Steps[i]
				if status[step.ID] != StepPending {
					continue
				}
				if dep, reason := e.blockedBy(step, status, failReason); dep != "" {
					status[step.ID] = StepSkipped
					failReason[step.ID] = reason
					record(StepResult{
						StepID:     step.ID,
						Capability: step.Capability,
						Status:     StepSkipped,
						Error:      reason,
					})
					changed = true
					continue
				}
				if !depsSucceeded(step, status) {
					continue
				}
				// Ready: snapshot the world as of this moment, then
				// hand the step to its own goroutine.
				status[step.ID] = StepRunning
				rc := ResolveContext{
					Blackboard: blackboard.Snapshot(),
					Results:    copyResults(results),
					Env:        env,
					StepIDs:    stepIDs,
				}
				cap, _ := e.Registry.Lookup(step.Capability)
				inFlight++
				go e.runStep(ctx, *step, cap, rc, done)
				changed = true
			}
		}
	}

	for {
		if !cancelled {
			advance()
		}
		observability.SetStepProgress(inFlight, len(plan.Steps))
		if inFlight == 0 {
			break
		}
		select {
		case out := <-done:
			if err := finish(out); err != nil {
				return report, err
			}
		case <-ctx.Done():
			if cancelled {
				continue
			}
			cancelled = true
			reason := fmt.Sprintf("plan cancelled: %v", ctx.Err())
			for i := range plan.Steps {
				step := &plan.Steps[i]
				if status[step.ID] == StepPending {
					status[step.ID] = StepSkipped
					record(StepResult{
						StepID:     step.ID,
						Capability: step.Capability,
						Status:     StepSkipped,
						Error:      reason,
					})
				}
			}
			e.drain(ctx, plan, status, done, &inFlight, finish, record)
		}
	}

	if !cancelled {
		// With nothing running and nothing dispatched, any leftover
		// pending step means the graph was not actually satisfiable.
		for id, st := range status {
			if st == StepPending {
				return report, fmt.Errorf("internal: step %q never became ready", id)
			}
		}
	}

	plan.Status = PlanSucceeded
	for _, st := range status {
		if st != StepSucceeded {
			plan.Status = PlanFailed
			break
		}
	}
	report.Status = plan.Status
	report.Blackboard = blackboard.Snapshot()
	report.FinishedAt = time.Now()
	e.logPlan(ctx, plan, string(plan.Status))
	return report, nil
}

// drain gives in-flight steps the grace period to observe cancellation.
// Steps that deliver in time are recorded with their real outcome; the
// rest are reported failed with a cancellation reason.
func (e *Executor) drain(ctx context.Context, plan *Plan, status map[string]StepStatus, done chan outcome, inFlight *int, finish func(outcome) error, record func(StepResult)) {
	grace := e.GracePeriod
	if grace <= 0 {
		grace = time.Millisecond
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	for *inFlight > 0 {
		select {
		case out := <-done:
			_ = finish(out)
		case <-timer.C:
			for i := range plan.Steps {
				step := &plan.Steps[i]
				if status[step.ID] == StepRunning {
					status[step.ID] = StepFailed
					record(StepResult{
						StepID:     step.ID,
						Capability: step.Capability,
						Status:     StepFailed,
						Error:      fmt.Sprintf("cancelled before completion: %v", ctx.Err()),
					})
				}
			}
			*inFlight = 0
			return
		}
	}
}

// runStep resolves arguments against the snapshot taken at dispatch
// time, consults the policy, then invokes the capability. Resolution
// failure never reaches the capability.
func (e *Executor) runStep(ctx context.Context, step Step, cap *Capability, rc ResolveContext, done chan<- outcome) {
	start := time.Now()

	resolved, err := ResolveArgs(step.Args, rc)
	if err != nil {
		done <- outcome{stepID: step.ID, err: err, duration: time.Since(start)}
		return
	}

	if e.Policy != nil {
		if err := e.Policy(ctx, step.Capability, resolved); err != nil {
			done <- outcome{stepID: step.ID, err: err, duration: time.Since(start)}
			return
		}
	}

	output, err := cap.Invoke(ctx, resolved)
	done <- outcome{stepID: step.ID, output: output, err: err, duration: time.Since(start)}
}

// blockedBy returns the first finalized-unsuccessful dependency of a
// step, along with the reason to report for the resulting skip.
func (e *Executor) blockedBy(step *Step, status map[string]StepStatus, failReason map[string]string) (string, string) {
	for _, dep := range step.DependsOn {
		switch status[dep] {
		case StepFailed:
			return dep, fmt.Sprintf("dependency %q failed: %s", dep, failReason[dep])
		case StepSkipped:
			return dep, fmt.Sprintf("dependency %q skipped: %s", dep, failReason[dep])
		}
	}
	return "", ""
}

func depsSucceeded(step *Step, status map[string]StepStatus) bool {
	for _, dep := range step.DependsOn {
		if status[dep] != StepSucceeded {
			return false
		}
	}
	return true
}

func copyResults(results map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}

func (e *Executor) logPlan(ctx context.Context, plan *Plan, state string) {
	if e.Logger == nil {
		return
	}
	e.Logger.LogPlan(chatIDFromContext(ctx), plan.ID, plan.Goal, state, len(plan.Steps))
}

func (e *Executor) logStep(ctx context.Context, plan *Plan, res StepResult) {
	if e.Logger == nil {
		return
	}
	e.Logger.LogStep(chatIDFromContext(ctx), plan.ID, res.StepID, res.Capability, string(res.Status), res.Error)
}

func chatIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value("chatID").(string); ok {
		return v
	}
	return ""
}
