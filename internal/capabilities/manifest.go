package capabilities

import (
	"fmt"
	"os"

	"github.com/nsharma/weft/internal/engine"
	"gopkg.in/yaml.v3"
)

// Manifest declares, per capability, the required argument names and the
// mapping from output fields to semantic blackboard keys. Shipping this
// as a YAML file lets operators re-route outputs (or tighten schemas)
// without a rebuild.
type Manifest struct {
	Capabilities map[string]ManifestEntry `yaml:"capabilities"`
}

type ManifestEntry struct {
	Required []string          `yaml:"required"`
	Outputs  map[string]string `yaml:"outputs"`
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capability manifest: %v", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse capability manifest: %v", err)
	}
	return &m, nil
}

// DefaultManifest mirrors the built-in schemas so Weft runs without a
// manifest file on disk.
func DefaultManifest() *Manifest {
	return &Manifest{
		Capabilities: map[string]ManifestEntry{
			"extract_webpage": {
				Required: []string{"url"},
				Outputs: map[string]string{
					"markdown": "extracted_content",
					"rows":     "data_rows",
				},
			},
			"sheet_upsert": {
				Required: []string{"spreadsheet_title", "sheet_name", "rows"},
				Outputs: map[string]string{
					"spreadsheet_id": "spreadsheet_id",
					"sheet_url":      "sheet_url",
				},
			},
			"share_file": {
				Required: []string{"file_id"},
				Outputs:  map[string]string{"link": "share_link"},
			},
			"notify_chat": {
				Required: []string{"chat_id", "text"},
				Outputs:  map[string]string{"message_id": "chat_message_id"},
			},
			"search_web": {
				Required: []string{"query"},
			},
			"schedule_goal": {
				Required: []string{"action"},
			},
			"workspace_file": {
				Required: []string{"command", "filename"},
				Outputs:  map[string]string{"content": "file_content"},
			},
		},
	}
}

// Apply overlays the manifest's schema onto a capability before it is
// registered. Capabilities not mentioned keep their built-in defaults.
func (m *Manifest) Apply(c *engine.Capability) *engine.Capability {
	if m == nil {
		return c
	}
	entry, ok := m.Capabilities[c.Name]
	if !ok {
		return c
	}
	if len(entry.Required) > 0 {
		c.Required = entry.Required
	}
	if len(entry.Outputs) > 0 {
		c.OutputKeys = entry.Outputs
	}
	return c
}

// RegisterAll applies the manifest to each capability and registers it.
func RegisterAll(reg *engine.Registry, m *Manifest, caps ...*engine.Capability) {
	for _, c := range caps {
		reg.Register(m.Apply(c))
	}
}
