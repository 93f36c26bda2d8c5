package config

import "time"

// ToolsConfig controls the tool executor sandbox and execution limits.
type ToolsConfig struct {
	Workspace      WorkspaceConfig       `yaml:"workspace"`
	Execution      ToolExecutionConfig   `yaml:"execution"`
	ResultGuard    ToolResultGuardConfig `yaml:"result_guard"`
	ContextPruning ContextPruningConfig  `yaml:"context_pruning"`
}

// ContextPruningConfig controls in-memory trimming of stale tool results
// before they are replayed into a prompt. See
// internal/agent/context.EffectiveContextPruningSettings for how this is
// converted into runtime settings.
type ContextPruningConfig struct {
	// Mode must be "cache-ttl" to enable pruning; any other value (including
	// empty) disables it.
	Mode string `yaml:"mode"`

	TTL                  *time.Duration             `yaml:"ttl"`
	KeepLastAssistants   *int                       `yaml:"keep_last_assistants"`
	SoftTrimRatio        *float64                   `yaml:"soft_trim_ratio"`
	HardClearRatio       *float64                   `yaml:"hard_clear_ratio"`
	MinPrunableToolChars *int                       `yaml:"min_prunable_tool_chars"`
	Tools                ContextPruningToolMatch    `yaml:"tools"`
	SoftTrim             ContextPruningSoftTrimCfg  `yaml:"soft_trim"`
	HardClear            ContextPruningHardClearCfg `yaml:"hard_clear"`
}

// ContextPruningToolMatch allow/deny-lists which tools' results are
// eligible for pruning.
type ContextPruningToolMatch struct {
	Allow []string `yaml:"allow"`
	Deny  []string `yaml:"deny"`
}

// ContextPruningSoftTrimCfg configures truncation of a stale tool result
// down to its head and tail.
type ContextPruningSoftTrimCfg struct {
	MaxChars  *int `yaml:"max_chars"`
	HeadChars *int `yaml:"head_chars"`
	TailChars *int `yaml:"tail_chars"`
}

// ContextPruningHardClearCfg configures full replacement of a stale tool
// result with a placeholder once it crosses the hard-clear ratio.
type ContextPruningHardClearCfg struct {
	Enabled     *bool  `yaml:"enabled"`
	Placeholder string `yaml:"placeholder"`
}

// WorkspaceConfig configures the tool executor's filesystem sandbox root.
type WorkspaceConfig struct {
	// Root is the directory every file operation is resolved against and
	// confined to. Required.
	Root string `yaml:"root"`

	// MaxFileBytes caps the size of a file read or write. Default: 10MiB.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// ToolExecutionConfig controls runtime tool execution behavior.
type ToolExecutionConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	MaxToolCalls  int           `yaml:"max_tool_calls"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ToolResultGuardConfig controls truncation of oversized tool results
// before they are appended to the conversation or persisted.
type ToolResultGuardConfig struct {
	Enabled        bool   `yaml:"enabled"`
	MaxChars       int    `yaml:"max_chars"`
	TruncateSuffix string `yaml:"truncate_suffix"`
}
