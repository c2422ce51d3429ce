package capabilities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nsharma/weft/internal/engine"
)

// WorkspaceFiles exposes the local workspace to plans: reading, writing
// and listing files. Paths are confined to the workspace root.
type WorkspaceFiles struct {
	Root string
}

func NewWorkspaceFiles(root string) *WorkspaceFiles {
	absRoot, _ := filepath.Abs(root)
	return &WorkspaceFiles{Root: absRoot}
}

func (w *WorkspaceFiles) Capability() *engine.Capability {
	return &engine.Capability{
		Name:        "workspace_file",
		Description: "Manage files in the local workspace: read, write, list, delete, and mkdir.",
		Required:    []string{"command", "filename"},
		OutputKeys:  map[string]string{"content": "file_content"},
		Invoke:      w.invoke,
	}
}

func (w *WorkspaceFiles) resolve(filename string) (string, error) {
	targetPath := filepath.Join(w.Root, filename)
	rel, err := filepath.Rel(w.Root, targetPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("unsafe path attempt: %s", filename)
	}
	return targetPath, nil
}

func (w *WorkspaceFiles) invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	command, _ := args["command"].(string)
	filename, _ := args["filename"].(string)

	targetPath, err := w.resolve(filename)
	if err != nil {
		return nil, &engine.CapabilityError{Message: err.Error()}
	}

	switch command {
	case "read":
		data, err := os.ReadFile(targetPath)
		if err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to read file: %v", err)}
		}
		return map[string]any{"content": string(data), "filename": filename}, nil

	case "write":
		content, _ := args["content"].(string)
		if err := os.WriteFile(targetPath, []byte(content), 0644); err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to write file: %v", err)}
		}
		return map[string]any{"filename": filename, "bytes_written": len(content)}, nil

	case "list":
		entries, err := os.ReadDir(targetPath)
		if err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to list directory: %v", err)}
		}
		var names []any
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		return map[string]any{"entries": names, "filename": filename}, nil

	case "delete":
		if err := os.Remove(targetPath); err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to delete: %v", err)}
		}
		return map[string]any{"filename": filename}, nil

	case "mkdir":
		if err := os.MkdirAll(targetPath, 0755); err != nil {
			return nil, &engine.CapabilityError{Message: fmt.Sprintf("failed to create directory: %v", err)}
		}
		return map[string]any{"filename": filename}, nil

	default:
		return nil, &engine.CapabilityError{Message: "command must be one of read, write, list, delete, mkdir"}
	}
}
