package engine

import (
	"context"
	"strings"
	"testing"
)

func testRegistry() *Registry {
	reg := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	}
	reg.Register(&Capability{Name: "extract_webpage", Required: []string{"url"}, Invoke: noop})
	reg.Register(&Capability{Name: "sheet_upsert", Required: []string{"spreadsheet_title", "sheet_name", "rows"}, Invoke: noop})
	reg.Register(&Capability{Name: "notify_chat", Required: []string{"chat_id", "text"}, Invoke: noop})
	return reg
}

func TestValidateAcceptsGoodPlan(t *testing.T) {
	plan := NewPlan("standings to sheet", []Step{
		{ID: "step1", Capability: "extract_webpage", Args: map[string]any{"url": "https://example.com"}},
		{ID: "step2", Capability: "sheet_upsert", DependsOn: []string{"step1"}, Args: map[string]any{
			"spreadsheet_title": "Standings",
			"sheet_name":        "Drivers",
			"rows":              "{step1.rows}",
		}},
	})

	if errs := Validate(plan, testRegistry()); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateUnknownCapability(t *testing.T) {
	plan := NewPlan("bad", []Step{
		{ID: "step1", Capability: "run_python", Args: map[string]any{}},
	})

	errs := Validate(plan, testRegistry())
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), `unknown capability "run_python"`) {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestValidateMissingDependency(t *testing.T) {
	plan := NewPlan("bad", []Step{
		{ID: "step1", Capability: "extract_webpage", DependsOn: []string{"step0"}, Args: map[string]any{"url": "x"}},
	})

	errs := Validate(plan, testRegistry())
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if !strings.Contains(errs[0].Error(), `dependency "step0"`) {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestValidateNamesCycle(t *testing.T) {
	plan := NewPlan("cyclic", []Step{
		{ID: "a", Capability: "extract_webpage", DependsOn: []string{"c"}, Args: map[string]any{"url": "x"}},
		{ID: "b", Capability: "extract_webpage", DependsOn: []string{"a"}, Args: map[string]any{"url": "x"}},
		{ID: "c", Capability: "extract_webpage", DependsOn: []string{"b"}, Args: map[string]any{"url": "x"}},
	})

	errs := Validate(plan, testRegistry())
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	msg := errs[0].Error()
	if !strings.Contains(msg, "cycle") {
		t.Fatalf("expected cycle error, got %q", msg)
	}
	// The offending cycle must be listed by name.
	for _, id := range []string{"a", "b", "c"} {
		if !strings.Contains(msg, id) {
			t.Errorf("cycle error %q does not name step %q", msg, id)
		}
	}
}

func TestValidateMissingRequiredArgument(t *testing.T) {
	plan := NewPlan("bad", []Step{
		{ID: "step1", Capability: "sheet_upsert", Args: map[string]any{
			"spreadsheet_title": "Standings",
			// sheet_name and rows absent
		}},
	})

	errs := Validate(plan, testRegistry())
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestValidateReportsAllViolationsInOnePass(t *testing.T) {
	plan := NewPlan("very bad", []Step{
		{ID: "step1", Capability: "run_python", DependsOn: []string{"ghost"}, Args: map[string]any{}},
		{ID: "step2", Capability: "notify_chat", Args: map[string]any{"chat_id": "1"}},
	})

	errs := Validate(plan, testRegistry())
	// unknown capability + missing dependency + missing required "text"
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidateIsIdempotent(t *testing.T) {
	plan := NewPlan("fine", []Step{
		{ID: "step1", Capability: "extract_webpage", Args: map[string]any{"url": "https://example.com"}},
	})
	reg := testRegistry()

	for i := 0; i < 3; i++ {
		if errs := Validate(plan, reg); len(errs) != 0 {
			t.Fatalf("pass %d: expected no errors, got %v", i, errs)
		}
	}
	if plan.Status != PlanPending {
		t.Errorf("validation must not change plan status, got %s", plan.Status)
	}
}

func TestValidateDuplicateStepID(t *testing.T) {
	plan := NewPlan("dup", []Step{
		{ID: "step1", Capability: "extract_webpage", Args: map[string]any{"url": "x"}},
		{ID: "step1", Capability: "extract_webpage", Args: map[string]any{"url": "y"}},
	})

	errs := Validate(plan, testRegistry())
	if len(errs) == 0 {
		t.Fatal("expected duplicate ID violation")
	}
	if !strings.Contains(errs[0].Error(), "duplicate") {
		t.Errorf("unexpected error: %v", errs[0])
	}
}
