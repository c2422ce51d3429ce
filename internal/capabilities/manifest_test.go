package capabilities

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nsharma/weft/internal/engine"
)

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capabilities.yaml")
	yaml := `capabilities:
  extract_webpage:
    required: [url, selector]
    outputs:
      markdown: page_text
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}

	entry, ok := m.Capabilities["extract_webpage"]
	if !ok {
		t.Fatal("extract_webpage entry missing")
	}
	if len(entry.Required) != 2 || entry.Required[1] != "selector" {
		t.Errorf("unexpected required args: %v", entry.Required)
	}
	if entry.Outputs["markdown"] != "page_text" {
		t.Errorf("unexpected outputs: %v", entry.Outputs)
	}
}

func TestManifestApplyOverridesSchema(t *testing.T) {
	m := &Manifest{Capabilities: map[string]ManifestEntry{
		"notify_chat": {
			Required: []string{"chat_id"},
			Outputs:  map[string]string{"message_id": "last_message"},
		},
	}}

	cap := &engine.Capability{
		Name:       "notify_chat",
		Required:   []string{"chat_id", "text"},
		OutputKeys: map[string]string{"message_id": "chat_message_id"},
	}
	applied := m.Apply(cap)

	if len(applied.Required) != 1 || applied.Required[0] != "chat_id" {
		t.Errorf("required not overridden: %v", applied.Required)
	}
	if applied.OutputKeys["message_id"] != "last_message" {
		t.Errorf("outputs not overridden: %v", applied.OutputKeys)
	}
}

func TestManifestApplyLeavesUnlistedAlone(t *testing.T) {
	m := DefaultManifest()

	cap := &engine.Capability{
		Name:     "custom_cap",
		Required: []string{"x"},
	}
	if applied := m.Apply(cap); len(applied.Required) != 1 || applied.Required[0] != "x" {
		t.Errorf("unlisted capability was modified: %v", applied.Required)
	}
}

func TestRegisterAll(t *testing.T) {
	reg := engine.NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (map[string]any, error) {
		return nil, nil
	}

	RegisterAll(reg, DefaultManifest(),
		&engine.Capability{Name: "sheet_upsert", Invoke: noop},
		&engine.Capability{Name: "share_file", Invoke: noop},
	)

	c, ok := reg.Lookup("sheet_upsert")
	if !ok {
		t.Fatal("sheet_upsert not registered")
	}
	if c.OutputKeys["sheet_url"] != "sheet_url" {
		t.Errorf("manifest outputs not applied: %v", c.OutputKeys)
	}
	if _, ok := reg.Lookup("share_file"); !ok {
		t.Error("share_file not registered")
	}
}
