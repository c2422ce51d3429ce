package engine

import (
	"fmt"
	"strings"
)

// Validate checks a plan against the registry before anything runs:
//  1. every step's capability name is registered,
//  2. every declared dependency exists in the same plan,
//  3. the dependency relation is acyclic,
//  4. every required argument is present (literal or reference —
//     presence, not resolvability).
//
// It returns the full list of violations rather than failing fast, and is
// side-effect-free: re-validating a valid plan never touches any state.
func Validate(plan *Plan, registry *Registry) ValidationErrors {
	var errs ValidationErrors

	byID := make(map[string]*Step, len(plan.Steps))
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, dup := byID[step.ID]; dup {
			errs = append(errs, ValidationError{StepID: step.ID, Reason: "duplicate step identifier"})
			continue
		}
		byID[step.ID] = step
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, ok := registry.Lookup(step.Capability); !ok {
			errs = append(errs, ValidationError{
				StepID: step.ID,
				Reason: fmt.Sprintf("unknown capability %q", step.Capability),
			})
		}
		for _, dep := range step.DependsOn {
			if _, ok := byID[dep]; !ok {
				errs = append(errs, ValidationError{
					StepID: step.ID,
					Reason: fmt.Sprintf("dependency %q does not exist in plan", dep),
				})
			}
		}
	}

	if cycle := findCycle(plan.Steps, byID); len(cycle) > 0 {
		errs = append(errs, ValidationError{
			Reason: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		})
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		cap, ok := registry.Lookup(step.Capability)
		if !ok {
			continue
		}
		for _, name := range cap.Required {
			if _, present := step.Args[name]; !present {
				errs = append(errs, ValidationError{
					StepID: step.ID,
					Reason: fmt.Sprintf("missing required argument %q for capability %q", name, step.Capability),
				})
			}
		}
	}

	return errs
}

// findCycle runs a depth-first search over the dependency edges and
// returns the first cycle found as a path ending where it started.
func findCycle(steps []Step, byID map[string]*Step) []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(steps))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		step := byID[id]
		if step != nil {
			for _, dep := range step.DependsOn {
				if _, ok := byID[dep]; !ok {
					continue // reported separately as a missing dependency
				}
				switch color[dep] {
				case grey:
					// Slice the current path from the repeated node.
					for i, s := range stack {
						if s == dep {
							cycle = append(append(cycle, stack[i:]...), dep)
							return true
						}
					}
				case white:
					if visit(dep) {
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for i := range steps {
		if color[steps[i].ID] == white {
			if visit(steps[i].ID) {
				return cycle
			}
		}
	}
	return nil
}
