package capabilities

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nsharma/weft/internal/engine"
)

func TestSheetUpsertWritesCSV(t *testing.T) {
	store := NewSheetStore(t.TempDir())

	out, err := store.upsert(context.Background(), map[string]any{
		"spreadsheet_title": "F1 Standings 2024",
		"sheet_name":        "Drivers",
		"rows": []any{
			[]any{"Driver", "Points"},
			[]any{"Verstappen", 437},
		},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if out["spreadsheet_id"] != "f1_standings_2024" {
		t.Errorf("unexpected spreadsheet_id: %v", out["spreadsheet_id"])
	}
	if out["row_count"] != 2 {
		t.Errorf("expected row_count 2, got %v", out["row_count"])
	}

	url, _ := out["sheet_url"].(string)
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected file URL, got %q", url)
	}

	path := filepath.Join(store.Root, "sheets", "f1_standings_2024", "drivers.csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("csv not written: %v", err)
	}
	if !strings.Contains(string(data), "Verstappen,437") {
		t.Errorf("csv content missing row: %q", string(data))
	}
}

func TestSheetUpsertRejectsBadRows(t *testing.T) {
	store := NewSheetStore(t.TempDir())

	_, err := store.upsert(context.Background(), map[string]any{
		"spreadsheet_title": "t",
		"sheet_name":        "s",
		"rows":              "not a sequence",
	})

	var capErr *engine.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if !strings.Contains(capErr.Message, "sequence") {
		t.Errorf("unexpected message: %q", capErr.Message)
	}
}

func TestShareFileForExistingSheet(t *testing.T) {
	store := NewSheetStore(t.TempDir())
	ctx := context.Background()

	if _, err := store.upsert(ctx, map[string]any{
		"spreadsheet_title": "Report",
		"sheet_name":        "Main",
		"rows":              []any{[]any{"a", "b"}},
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	out, err := store.share(ctx, map[string]any{"file_id": "report"})
	if err != nil {
		t.Fatalf("share failed: %v", err)
	}
	if link, _ := out["link"].(string); !strings.HasPrefix(link, "file://") {
		t.Errorf("expected file URL, got %v", out["link"])
	}

	marker := filepath.Join(store.Root, "sheets", "report", "share.json")
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("share marker not written: %v", err)
	}
}

func TestShareFileUnknownID(t *testing.T) {
	store := NewSheetStore(t.TempDir())

	_, err := store.share(context.Background(), map[string]any{"file_id": "nope"})
	var capErr *engine.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
}
