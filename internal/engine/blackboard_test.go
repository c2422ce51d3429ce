package engine

import "testing"

func TestBlackboardMergeWritesStepAndSemanticKeys(t *testing.T) {
	bb := NewBlackboard()

	output := map[string]any{"spreadsheet_id": "abc", "sheet_url": "https://sheets/abc", "extra": 1}
	bb.merge("step2", output, map[string]string{
		"spreadsheet_id": "spreadsheet_id",
		"sheet_url":      "sheet_url",
	})

	if v, ok := bb.Get(StepKey("step2")); !ok {
		t.Fatal("step result key missing")
	} else if v.(map[string]any)["extra"] != 1 {
		t.Error("step result key does not hold the full output")
	}
	if v, _ := bb.Get("sheet_url"); v != "https://sheets/abc" {
		t.Errorf("semantic key not merged: %v", v)
	}
	if _, ok := bb.Get("extra"); ok {
		t.Error("undeclared output field leaked into semantic namespace")
	}
}

func TestBlackboardSnapshotIsIsolated(t *testing.T) {
	bb := NewBlackboard()
	bb.Set("source_url", "https://a")

	snap := bb.Snapshot()
	bb.Set("source_url", "https://b")

	if snap["source_url"] != "https://a" {
		t.Error("snapshot changed after later write")
	}
	if v, _ := bb.Get("source_url"); v != "https://b" {
		t.Error("store did not take later write")
	}
}

func TestBlackboardRestore(t *testing.T) {
	bb := NewBlackboard()
	bb.Set("kept", "old")
	bb.Restore(map[string]any{"loaded": true})

	if v, _ := bb.Get("kept"); v != "old" {
		t.Error("restore dropped existing key")
	}
	if v, _ := bb.Get("loaded"); v != true {
		t.Error("restore did not load snapshot key")
	}
	if bb.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", bb.Len())
	}
}
