package capabilities

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nsharma/weft/internal/engine"
)

// SheetStore keeps tabular step outputs as CSV spreadsheets under the
// local workspace and hands out shareable links to them. It backs both
// the sheet_upsert and share_file capabilities.
type SheetStore struct {
	Root string
	mu   sync.Mutex
}

func NewSheetStore(root string) *SheetStore {
	absRoot, _ := filepath.Abs(root)
	return &SheetStore{Root: absRoot}
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(s), "_")
	return strings.Trim(slug, "_")
}

func (s *SheetStore) UpsertCapability() *engine.Capability {
	return &engine.Capability{
		Name:        "sheet_upsert",
		Description: "Create or update a workspace spreadsheet with tabular data rows.",
		Required:    []string{"spreadsheet_title", "sheet_name", "rows"},
		OutputKeys: map[string]string{
			"spreadsheet_id": "spreadsheet_id",
			"sheet_url":      "sheet_url",
		},
		Invoke: s.upsert,
	}
}

func (s *SheetStore) upsert(ctx context.Context, args map[string]any) (map[string]any, error) {
	title, _ := args["spreadsheet_title"].(string)
	sheetName, _ := args["sheet_name"].(string)
	if title == "" || sheetName == "" {
		return nil, &engine.CapabilityError{Message: "spreadsheet_title and sheet_name must be non-empty strings"}
	}

	records, err := toRecords(args["rows"])
	if err != nil {
		return nil, &engine.CapabilityError{Message: err.Error()}
	}
	if len(records) == 0 {
		return nil, &engine.CapabilityError{Message: "rows is empty, nothing to write"}
	}

	id := slugify(title)
	dir := filepath.Join(s.Root, "sheets", id)
	path := filepath.Join(dir, slugify(sheetName)+".csv")

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to create sheet directory: %v", err)}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to create sheet: %v", err)}
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.WriteAll(records); err != nil {
		// The sheet may be half written; report what landed.
		return nil, &engine.CapabilityError{
			Message: fmt.Sprintf("failed to write rows: %v", err),
			Partial: map[string]any{"spreadsheet_id": id, "sheet_url": fileURL(path)},
		}
	}

	return map[string]any{
		"spreadsheet_id": id,
		"sheet_url":      fileURL(path),
		"sheet_name":     sheetName,
		"row_count":      len(records),
	}, nil
}

func (s *SheetStore) ShareCapability() *engine.Capability {
	return &engine.Capability{
		Name:        "share_file",
		Description: "Create a shareable link for a workspace spreadsheet.",
		Required:    []string{"file_id"},
		OutputKeys:  map[string]string{"link": "share_link"},
		Invoke:      s.share,
	}
}

func (s *SheetStore) share(ctx context.Context, args map[string]any) (map[string]any, error) {
	fileID, _ := args["file_id"].(string)
	if fileID == "" {
		return nil, &engine.CapabilityError{Message: "file_id must be a non-empty string"}
	}
	role, _ := args["role"].(string)
	if role == "" {
		role = "reader"
	}

	dir := filepath.Join(s.Root, "sheets", fileID)
	if _, err := os.Stat(dir); err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("no spreadsheet with id %q", fileID)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	marker := map[string]any{
		"file_id":   fileID,
		"role":      role,
		"shared_at": time.Now().Format(time.RFC3339),
	}
	data, _ := json.MarshalIndent(marker, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, "share.json"), data, 0644); err != nil {
		return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to record share: %v", err)}
	}

	return map[string]any{
		"link":    fileURL(dir),
		"file_id": fileID,
		"role":    role,
	}, nil
}

func fileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// toRecords normalizes a resolved rows argument (a sequence of
// sequences, as produced by extract_webpage) into CSV records.
func toRecords(rows any) ([][]string, error) {
	seq, ok := rows.([]any)
	if !ok {
		return nil, fmt.Errorf("rows must be a sequence, got %T", rows)
	}
	records := make([][]string, 0, len(seq))
	for _, row := range seq {
		cells, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("each row must be a sequence, got %T", row)
		}
		record := make([]string, len(cells))
		for i, c := range cells {
			record[i] = fmt.Sprintf("%v", c)
		}
		records = append(records, record)
	}
	return records, nil
}
