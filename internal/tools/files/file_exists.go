package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/agent"
)

// FileExistsTool reports whether a path exists in the workspace, without
// erroring when it does not.
type FileExistsTool struct {
	resolver Resolver
}

// NewFileExistsTool creates a file_exists tool scoped to the workspace.
func NewFileExistsTool(cfg Config) *FileExistsTool {
	return &FileExistsTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *FileExistsTool) Name() string {
	return "file_exists"
}

// Description returns the tool description.
func (t *FileExistsTool) Description() string {
	return "Check whether a file or directory exists in the workspace."
}

// Schema returns the JSON schema for the tool parameters.
func (t *FileExistsTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to check (relative to workspace).",
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

// Execute checks for path existence.
func (t *FileExistsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
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
	exists := err == nil
	isDir := exists && info.IsDir()
	if err != nil && !os.IsNotExist(err) {
		return toolError(fmt.Sprintf("%v: %v", ErrIOFailure, err)), nil
	}

	result := map[string]interface{}{
		"path":   input.Path,
		"exists": exists,
		"is_dir": isDir,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{Content: string(payload)}, nil
}
