package config

import "time"

// HubConfig configures the event hub's outbound batching and compression.
type HubConfig struct {
	// BatchInterval is the maximum delay before a partial batch is flushed.
	// Default: 50ms.
	BatchInterval time.Duration `yaml:"batch_interval"`

	// BatchMaxMessages flushes a batch early once it reaches this size.
	// Default: 10.
	BatchMaxMessages int `yaml:"batch_max_messages"`

	// CompressionThresholdBytes gzip-compresses outbound frames at or
	// above this size. Default: 1024.
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`
}

// WorkflowConfig configures the DAG orchestrator.
type WorkflowConfig struct {
	// MaxConcurrentTasks bounds how many tasks across all workflows may
	// run at once. Default: 16.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// TaskTimeout is the default per-task execution timeout.
	TaskTimeout time.Duration `yaml:"task_timeout"`
}
