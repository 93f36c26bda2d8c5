package config

// LLMConfig configures the gateway's provider set. The gateway performs no
// retries and no automatic fallback between providers; a caller that wants
// a fallback chain selects a different provider on its next call.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures a single LLM provider adapter.
type LLMProviderConfig struct {
	// Kind selects the adapter: "anthropic", "openai", or "textonly".
	Kind         string `yaml:"kind"`
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}
