package engine

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus tracks a step through its lifecycle:
// pending -> ready -> running -> {succeeded, failed, skipped}.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// PlanStatus is the aggregate status of a plan.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanSucceeded PlanStatus = "succeeded"
	PlanFailed    PlanStatus = "failed"
)

// Step is a single capability invocation with declared inputs and
// dependencies. Steps are created by the planner and are immutable once
// the plan is submitted.
type Step struct {
	ID          string         `json:"step_id"`
	Capability  string         `json:"capability"`
	Args        map[string]any `json:"args"`
	DependsOn   []string       `json:"depends_on"`
	Description string         `json:"description"`
}

// Plan is a named collection of steps with dependency edges,
// representing one multi-step goal.
type Plan struct {
	ID     string     `json:"plan_id"`
	Goal   string     `json:"goal"`
	Steps  []Step     `json:"steps"`
	Status PlanStatus `json:"status"`
}

// NewPlan builds a pending plan with a generated identifier.
func NewPlan(goal string, steps []Step) *Plan {
	return &Plan{
		ID:     uuid.NewString(),
		Goal:   goal,
		Steps:  steps,
		Status: PlanPending,
	}
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// StepResult records the outcome of one finished step.
type StepResult struct {
	StepID     string         `json:"step_id"`
	Capability string         `json:"capability"`
	Status     StepStatus     `json:"status"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// ExecutionReport is the sole externally observable output of a run:
// step results in completion order, the final plan status, and a
// snapshot of the blackboard after the last merge.
type ExecutionReport struct {
	PlanID     string         `json:"plan_id"`
	Goal       string         `json:"goal"`
	Status     PlanStatus     `json:"status"`
	Results    []StepResult   `json:"results"`
	Blackboard map[string]any `json:"blackboard"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Result returns the recorded result for a step ID, or nil.
func (r *ExecutionReport) Result(stepID string) *StepResult {
	for i := range r.Results {
		if r.Results[i].StepID == stepID {
			return &r.Results[i]
		}
	}
	return nil
}
