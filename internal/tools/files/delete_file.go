package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// DeleteFileTool removes a single file from the workspace.
type DeleteFileTool struct {
	resolver Resolver
}

// NewDeleteFileTool creates a delete_file tool scoped to the workspace.
func NewDeleteFileTool(cfg Config) *DeleteFileTool {
	return &DeleteFileTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *DeleteFileTool) Name() string {
	return "delete_file"
}

// Description returns the tool description.
func (t *DeleteFileTool) Description() string {
	return "Delete a single file from the workspace. Does not remove directories."
}

// Schema returns the JSON schema for the tool parameters.
func (t *DeleteFileTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File path to delete (relative to workspace).",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute deletes a file.
func (t *DeleteFileTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError(ErrNotFound.Error()), nil
		}
		return toolError(fmt.Sprintf("%v: %v", ErrIOFailure, err)), nil
	}
	if info.IsDir() {
		return toolError("delete_file cannot remove a directory"), nil
	}

	if err := os.Remove(resolved); err != nil {
		return toolError(fmt.Sprintf("%v: %v", ErrIOFailure, err)), nil
	}

	result := map[string]interface{}{
		"path":    input.Path,
		"deleted": true,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
