package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// CreateDirectoryTool creates a directory (and any missing parents) within the workspace.
type CreateDirectoryTool struct {
	resolver Resolver
}

// NewCreateDirectoryTool creates a create_directory tool scoped to the workspace.
func NewCreateDirectoryTool(cfg Config) *CreateDirectoryTool {
	return &CreateDirectoryTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *CreateDirectoryTool) Name() string {
	return "create_directory"
}

// Description returns the tool description.
func (t *CreateDirectoryTool) Description() string {
	return "Create a directory in the workspace, including any missing parent directories."
}

// Schema returns the JSON schema for the tool parameters.
func (t *CreateDirectoryTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory path to create (relative to workspace).",
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

// Execute creates a directory.
func (t *CreateDirectoryTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
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

	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return toolError(fmt.Sprintf("%v: %v", ErrIOFailure, err)), nil
	}

	result := map[string]interface{}{
		"path":    input.Path,
		"created": true,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
