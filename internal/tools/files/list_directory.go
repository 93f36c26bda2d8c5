package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// ListDirectoryTool lists the immediate contents of a workspace directory.
type ListDirectoryTool struct {
	resolver Resolver
}

// NewListDirectoryTool creates a list_directory tool scoped to the workspace.
func NewListDirectoryTool(cfg Config) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *ListDirectoryTool) Name() string {
	return "list_directory"
}

// Description returns the tool description.
func (t *ListDirectoryTool) Description() string {
	return "List the files and subdirectories directly inside a workspace directory."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ListDirectoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory path to list (relative to workspace). Defaults to the workspace root.",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

type directoryEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// Execute lists a directory's immediate entries.
func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
		}
	}
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError(ErrNotFound.Error()), nil
		}
		return toolError(fmt.Sprintf("%v: %v", ErrIOFailure, err)), nil
	}

	listed := make([]directoryEntry, 0, len(entries))
	for _, e := range entries {
		info, infoErr := e.Info()
		var size int64
		if infoErr == nil {
			size = info.Size()
		}
		listed = append(listed, directoryEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	result := map[string]interface{}{
		"path":    input.Path,
		"entries": listed,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
