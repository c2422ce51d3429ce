package store

import (
	"path/filepath"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/nsharma/weft/internal/engine"
)

func testStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := NewSessionStore(filepath.Join(t.TempDir(), "weft.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func TestMessageHistoryRoundTrip(t *testing.T) {
	s := testStore(t)

	if err := s.AddMessage("c1", "human", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMessage("c1", "ai", "hi there"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMessage("c2", "human", "other chat"); err != nil {
		t.Fatal(err)
	}

	history, err := s.GetHistory("c1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != llms.ChatMessageTypeHuman {
		t.Errorf("expected chronological order, first role was %s", history[0].Role)
	}
	if history[1].Role != llms.ChatMessageTypeAI {
		t.Errorf("expected ai reply second, got %s", history[1].Role)
	}
}

func TestBoardSnapshotRoundTrip(t *testing.T) {
	s := testStore(t)

	snap := map[string]any{"spreadsheet_id": "sheet-1", "data_rows": []any{[]any{"a", "b"}}}
	if err := s.SaveBoard("c1", snap); err != nil {
		t.Fatal(err)
	}
	// Upsert replaces the previous snapshot.
	snap["share_link"] = "file:///tmp/x"
	if err := s.SaveBoard("c1", snap); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadBoard("c1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded["spreadsheet_id"] != "sheet-1" || loaded["share_link"] != "file:///tmp/x" {
		t.Errorf("unexpected snapshot: %v", loaded)
	}

	missing, err := s.LoadBoard("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil snapshot for unknown chat, got %v, %v", missing, err)
	}
}

func TestGoalLifecycle(t *testing.T) {
	s := testStore(t)

	if err := s.AddGoal("c1", "refresh standings", 3600); err != nil {
		t.Fatal(err)
	}

	due, err := s.GetDueGoals()
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due goal, got %d", len(due))
	}
	id := due[0]["id"].(int)
	if due[0]["goal"] != "refresh standings" {
		t.Errorf("unexpected goal row: %v", due[0])
	}

	if err := s.UpdateGoalLastRun(id); err != nil {
		t.Fatal(err)
	}
	due, err = s.GetDueGoals()
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Errorf("goal should not be due right after running, got %v", due)
	}

	if err := s.ClearGoals("c1"); err != nil {
		t.Fatal(err)
	}
}

func TestSaveReport(t *testing.T) {
	s := testStore(t)

	report := &engine.ExecutionReport{
		PlanID: "p1",
		Goal:   "extract and upload",
		Status: engine.PlanSucceeded,
		Results: []engine.StepResult{
			{StepID: "a", Capability: "extract_webpage", Status: engine.StepSucceeded},
		},
	}
	if err := s.SaveReport("c1", report); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM reports WHERE chat_id = 'c1' AND plan_id = 'p1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored report, got %d", count)
	}
}
