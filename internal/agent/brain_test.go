package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/nsharma/weft/internal/engine"
)

type memoryHistory struct {
	messages []string
	boards   map[string]map[string]any
	reports  []*engine.ExecutionReport
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{boards: make(map[string]map[string]any)}
}

func (m *memoryHistory) AddMessage(chatID, role, content string) error {
	m.messages = append(m.messages, role+": "+content)
	return nil
}

func (m *memoryHistory) GetHistory(chatID string, limit int) ([]llms.MessageContent, error) {
	return nil, nil
}

func (m *memoryHistory) SaveBoard(chatID string, snapshot map[string]any) error {
	m.boards[chatID] = snapshot
	return nil
}

func (m *memoryHistory) LoadBoard(chatID string) (map[string]any, error) {
	return m.boards[chatID], nil
}

func (m *memoryHistory) SaveReport(chatID string, report *engine.ExecutionReport) error {
	m.reports = append(m.reports, report)
	return nil
}

func pipelineRegistry() *engine.Registry {
	reg := engine.NewRegistry()
	reg.Register(&engine.Capability{
		Name:       "extract_webpage",
		Required:   []string{"url"},
		OutputKeys: map[string]string{"rows": "data_rows"},
		Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"rows": []any{[]any{"Driver", "Points"}, []any{"Verstappen", "437"}},
			}, nil
		},
	})
	reg.Register(&engine.Capability{
		Name:       "sheet_upsert",
		Required:   []string{"spreadsheet_title", "sheet_name", "rows"},
		OutputKeys: map[string]string{"spreadsheet_id": "spreadsheet_id", "sheet_url": "sheet_url"},
		Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			rows, ok := args["rows"].([]any)
			if !ok || len(rows) != 2 {
				return nil, &engine.CapabilityError{Message: "rows did not arrive as a native sequence"}
			}
			return map[string]any{
				"spreadsheet_id": "sheet-1",
				"sheet_url":      "file:///tmp/sheet-1",
			}, nil
		},
	})
	reg.Register(&engine.Capability{
		Name:       "share_file",
		Required:   []string{"file_id"},
		OutputKeys: map[string]string{"link": "share_link"},
		Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"link": "file:///tmp/" + args["file_id"].(string)}, nil
		},
	})
	reg.Register(&engine.Capability{
		Name:       "notify_chat",
		Required:   []string{"chat_id", "text"},
		OutputKeys: map[string]string{"message_id": "chat_message_id"},
		Invoke: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"message_id": "m1", "text": args["text"]}, nil
		},
	})
	return reg
}

func TestThinkFallbackPipeline(t *testing.T) {
	reg := pipelineRegistry()
	history := newMemoryHistory()
	brain := NewPlannerBrain(nil, reg, engine.NewExecutor(reg, nil), history, nil)

	reply, err := brain.Think(context.Background(), "chat-1", "Extract the standings from https://example.com/f1 and send me a link")
	if err != nil {
		t.Fatalf("Think failed: %v", err)
	}

	if !strings.Contains(reply, "All 4 steps completed") {
		t.Errorf("unexpected reply: %q", reply)
	}
	if !strings.Contains(reply, "file:///tmp/sheet-1") {
		t.Errorf("reply should surface the sheet URL: %q", reply)
	}

	if len(history.reports) != 1 {
		t.Fatalf("expected 1 saved report, got %d", len(history.reports))
	}
	report := history.reports[0]
	if report.Status != engine.PlanSucceeded {
		t.Errorf("expected succeeded plan, got %s", report.Status)
	}
	if report.Blackboard["share_link"] != "file:///tmp/sheet-1" {
		t.Errorf("share_link not merged: %v", report.Blackboard["share_link"])
	}

	if snap := history.boards["chat-1"]; snap["spreadsheet_id"] != "sheet-1" {
		t.Errorf("blackboard snapshot not persisted: %v", snap)
	}
	if len(history.messages) != 2 {
		t.Errorf("expected exchange saved to history, got %v", history.messages)
	}
}

func TestThinkFallbackNeedsURL(t *testing.T) {
	reg := pipelineRegistry()
	brain := NewPlannerBrain(nil, reg, engine.NewExecutor(reg, nil), newMemoryHistory(), nil)

	reply, err := brain.Think(context.Background(), "chat-1", "do something vague")
	if err != nil {
		t.Fatalf("Think failed: %v", err)
	}
	if !strings.Contains(reply, "URL") {
		t.Errorf("expected guidance about missing URL, got %q", reply)
	}
}

func TestNormalizeArgsRewritesPrevStepOutput(t *testing.T) {
	reg := pipelineRegistry()
	brain := NewPlannerBrain(nil, reg, nil, nil, nil)

	plan := engine.NewPlan("g", []engine.Step{
		{ID: "fetch", Capability: "extract_webpage", Args: map[string]any{"url": "https://example.com"}},
		{
			ID:         "upload",
			Capability: "sheet_upsert",
			Args: map[string]any{
				"spreadsheet_title": "T",
				"sheet_name":        "S",
				"rows":              "{prev_step_output}",
			},
			DependsOn: []string{"fetch"},
		},
		{
			ID:         "announce",
			Capability: "notify_chat",
			Args: map[string]any{
				"chat_id": "c",
				"text":    "data: {prev_step_output}",
			},
			DependsOn: []string{"upload"},
		},
	})
	brain.normalizeArgs(plan)

	if got := plan.Step("upload").Args["rows"]; got != "{fetch.rows}" {
		t.Errorf("whole-arg placeholder not rewritten to rows reference: %v", got)
	}
	// sheet_upsert declares no rows output, so the first declared key wins.
	if got := plan.Step("announce").Args["text"]; got != "data: {upload.sheet_url}" {
		t.Errorf("embedded placeholder not rewritten: %v", got)
	}
}

func TestRenderReportFailure(t *testing.T) {
	report := &engine.ExecutionReport{
		Status: engine.PlanFailed,
		Results: []engine.StepResult{
			{StepID: "a", Capability: "extract_webpage", Status: engine.StepFailed, Error: "boom"},
			{StepID: "b", Capability: "sheet_upsert", Status: engine.StepSkipped, Error: "dependency a failed"},
		},
		Blackboard: map[string]any{},
	}

	out := renderReport(report)
	if !strings.Contains(out, "0/2 steps completed") {
		t.Errorf("unexpected summary: %q", out)
	}
	if !strings.Contains(out, "[fail] a") || !strings.Contains(out, "[skip] b") {
		t.Errorf("per-step lines missing: %q", out)
	}
}
