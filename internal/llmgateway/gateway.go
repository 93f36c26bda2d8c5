// Package llmgateway exposes a uniform synchronous and streaming interface
// over the configured set of LLM providers (C1). It wraps the concrete
// adapters in internal/agent/providers behind a single Provider interface
// so that callers (C6, C7's plan step) never depend on a specific SDK.
package llmgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Params bounds one completion request's generation parameters.
type Params struct {
	Temperature float64
	MaxTokens   int
	Model       string
	Provider    string
}

// ToolSchema describes one tool's name and JSON Schema of inputs, the shape
// C1 accepts regardless of which provider ultimately receives it.
type ToolSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// StreamChunk is one element of stream's lazy finite sequence: a text
// fragment, or (on the terminal element) the full tool-call list.
type StreamChunk struct {
	Text      string
	IsFinal   bool
	ToolCalls []models.ToolCall
	Err       error
}

// Provider is the gateway's uniform synchronous/streaming primitive set.
// The gateway performs no retries; that policy belongs to the caller (C6).
type Provider interface {
	Name() string
	// SupportsNativeTools reports whether this provider accepts a tools list
	// and emits structured tool-call requests, vs. requiring the caller to
	// embed an XML instruction block and parse the response itself.
	SupportsNativeTools() bool

	// Generate returns the full assistant turn plus any tool-call requests.
	Generate(ctx context.Context, systemPrompt string, messages []agent.CompletionMessage, params Params, tools []ToolSchema) (text string, toolCalls []models.ToolCall, err error)

	// Stream produces a lazy finite sequence of chunks; the terminal chunk
	// carries IsFinal=true and the resolved tool-call list.
	Stream(ctx context.Context, systemPrompt string, messages []agent.CompletionMessage, params Params, tools []ToolSchema) (<-chan StreamChunk, error)
}

// ToolCallInstructionBlock is prepended to the system prompt for text-only
// providers, per spec.md §4.1 point 2. The gateway never parses these tags
// back out of the response text; that is C6's job (step 4, text-only path).
const ToolCallInstructionBlock = `You do not have native tool calling. To invoke a tool, emit a block of the exact form:
<tool_call name="tool_name"><arg_name>value</arg_name></tool_call>
Emit one such block per tool call, at the point in your response where the call should happen. Do not narrate that you are about to call a tool outside of this block.`

// errTimeout classifies a provider call that exceeded its context deadline.
type errTimeout struct{ provider string }

func (e *errTimeout) Error() string { return fmt.Sprintf("llmgateway: %s: timeout", e.provider) }

// errRateLimited classifies a provider-reported rate limit.
type errRateLimited struct{ provider string }

func (e *errRateLimited) Error() string { return fmt.Sprintf("llmgateway: %s: rate limited", e.provider) }

// errProvider wraps any other provider-originated failure.
type errProvider struct {
	provider string
	cause    error
}

func (e *errProvider) Error() string { return fmt.Sprintf("llmgateway: %s: %v", e.provider, e.cause) }
func (e *errProvider) Unwrap() error { return e.cause }

// IsTimeout reports whether err is an LLMTimeout.
func IsTimeout(err error) bool { _, ok := err.(*errTimeout); return ok }

// IsRateLimited reports whether err is an LLMRateLimited.
func IsRateLimited(err error) bool { _, ok := err.(*errRateLimited); return ok }

// adapter wraps one agent.LLMProvider-conforming concrete provider.
type adapter struct {
	inner        agent.LLMProvider
	nativeTools  bool
	defaultModel string
	metrics      *observability.Metrics
}

func (a *adapter) Name() string                { return a.inner.Name() }
func (a *adapter) SupportsNativeTools() bool    { return a.nativeTools && a.inner.SupportsTools() }

func (a *adapter) buildRequest(systemPrompt string, messages []agent.CompletionMessage, params Params, tools []ToolSchema) *agent.CompletionRequest {
	model := params.Model
	if model == "" {
		model = a.defaultModel
	}
	req := &agent.CompletionRequest{
		Model:     model,
		System:    systemPrompt,
		Messages:  messages,
		MaxTokens: params.MaxTokens,
	}
	if a.SupportsNativeTools() {
		for _, t := range tools {
			req.Tools = append(req.Tools, toolSchemaAdapter{t})
		}
	} else if len(tools) > 0 {
		req.System = strings.TrimRight(req.System, "\n") + "\n\n" + ToolCallInstructionBlock
	}
	return req
}

func (a *adapter) Generate(ctx context.Context, systemPrompt string, messages []agent.CompletionMessage, params Params, tools []ToolSchema) (string, []models.ToolCall, error) {
	chunks, err := a.Stream(ctx, systemPrompt, messages, params, tools)
	if err != nil {
		return "", nil, err
	}
	var text strings.Builder
	var calls []models.ToolCall
	for chunk := range chunks {
		if chunk.Err != nil {
			return text.String(), calls, chunk.Err
		}
		text.WriteString(chunk.Text)
		if chunk.IsFinal {
			calls = chunk.ToolCalls
		}
	}
	return text.String(), calls, nil
}

func (a *adapter) Stream(ctx context.Context, systemPrompt string, messages []agent.CompletionMessage, params Params, tools []ToolSchema) (<-chan StreamChunk, error) {
	req := a.buildRequest(systemPrompt, messages, params, tools)
	start := time.Now()
	raw, err := a.inner.Complete(ctx, req)
	if err != nil {
		return nil, classifyError(a.Name(), err)
	}

	out := make(chan StreamChunk, 8)
	go func() {
		defer close(out)
		firstChunk := true
		var calls []models.ToolCall
		for c := range raw {
			if c.Error != nil {
				out <- StreamChunk{Err: classifyError(a.Name(), c.Error)}
				return
			}
			if firstChunk {
				if a.metrics != nil {
					a.metrics.RecordLLMTTFC(a.Name(), time.Since(start))
				}
				firstChunk = false
			}
			if c.ToolCall != nil {
				calls = append(calls, *c.ToolCall)
			}
			select {
			case out <- StreamChunk{Text: c.Text, IsFinal: c.Done, ToolCalls: callsIfFinal(c.Done, calls)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func callsIfFinal(done bool, calls []models.ToolCall) []models.ToolCall {
	if !done {
		return nil
	}
	return calls
}

func classifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if perr, ok := providers.GetProviderError(err); ok {
		switch perr.Reason {
		case providers.FailoverRateLimit:
			return &errRateLimited{provider: provider}
		case providers.FailoverTimeout:
			return &errTimeout{provider: provider}
		}
	}
	return &errProvider{provider: provider, cause: err}
}

// toolSchemaAdapter adapts a ToolSchema (no Execute method needed at the
// wire-format boundary) to agent.Tool so it can ride CompletionRequest.Tools.
type toolSchemaAdapter struct{ ToolSchema }

func (t toolSchemaAdapter) Name() string                { return t.ToolSchema.Name }
func (t toolSchemaAdapter) Description() string         { return t.ToolSchema.Description }
func (t toolSchemaAdapter) Schema() json.RawMessage      { return t.ToolSchema.Schema }
func (t toolSchemaAdapter) Execute(context.Context, json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("llmgateway: tool schema carrier has no executor")
}

// Gateway holds every configured provider and resolves the default at call
// time (spec.md §9's "global default provider inheritance" — resolution
// happens per-call, not at agent construction).
type Gateway struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
}

// New builds a Gateway from the configured provider set. metrics may be nil
// (TTFC is then not recorded).
func New(cfg config.LLMConfig, metrics *observability.Metrics) (*Gateway, error) {
	gw := &Gateway{
		providers:       make(map[string]Provider),
		defaultProvider: strings.ToLower(strings.TrimSpace(cfg.DefaultProvider)),
	}
	for name, pcfg := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		p, err := buildProvider(name, pcfg, metrics)
		if err != nil {
			return nil, fmt.Errorf("llmgateway: provider %q: %w", name, err)
		}
		gw.providers[name] = p
	}
	if gw.defaultProvider == "" {
		gw.defaultProvider = "anthropic"
	}
	return gw, nil
}

func buildProvider(kind string, pcfg config.LLMProviderConfig, metrics *observability.Metrics) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(pcfg.Kind)) {
	case "anthropic", "":
		inner, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  pcfg.APIKey,
			BaseURL: pcfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return &adapter{inner: inner, nativeTools: true, defaultModel: pcfg.DefaultModel, metrics: metrics}, nil
	case "openai":
		inner := providers.NewOpenAIProvider(pcfg.APIKey)
		return &adapter{inner: inner, nativeTools: true, defaultModel: pcfg.DefaultModel, metrics: metrics}, nil
	case "textonly", "ollama":
		inner := providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      pcfg.BaseURL,
			DefaultModel: pcfg.DefaultModel,
		})
		return &adapter{inner: inner, nativeTools: false, defaultModel: pcfg.DefaultModel, metrics: metrics}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pcfg.Kind)
	}
}

// Provider resolves a provider by name, falling back to the configured
// default when name is empty. This is the call-time resolution point
// spec.md §9 requires.
func (g *Gateway) Provider(name string) (Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if name == "" {
		name = g.defaultProvider
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("llmgateway: unknown provider %q", name)
	}
	return p, nil
}

// DefaultProvider returns the name resolved when a caller omits one.
func (g *Gateway) DefaultProvider() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.defaultProvider
}
