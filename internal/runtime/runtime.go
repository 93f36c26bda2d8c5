// Package runtime implements the Agent Runtime (C6): given a channel
// message and an agent to answer it, it assembles a prompt from memory and
// recent history, drives a streaming completion, executes any requested
// tools, persists the final message, and writes a best-effort memory
// record back — the single concrete execution path every agent, regardless
// of persona, runs through.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/hub"
	"github.com/haasonsaas/nexus/internal/llmgateway"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/storage"
	"github.com/haasonsaas/nexus/pkg/models"
)

// HistoryWindow bounds how many prior messages are packed into a prompt.
const HistoryWindow = 10

// MemoryRecall bounds how many memory records are recalled per prompt.
const MemoryRecall = 5

const (
	conversationImportance = 5
	decisionImportance     = 8
)

// Chunk is one element of ProcessStreaming's lazy sequence: a text
// fragment, or (on the terminal element) the tool notes appended and any
// failure metadata.
type Chunk struct {
	Text     string
	IsFinal  bool
	Metadata map[string]any
	Err      error
}

// RunContext carries everything ProcessStreaming needs beyond the message
// text itself: the agent answering, the channel it belongs to, and
// (optionally) a workflow task description standing in for a direct user
// message.
type RunContext struct {
	Agent            *models.Agent
	ChannelID        string
	InvokingName     string
	TaskDescription  string // set when driven by a workflow task instead of a user message
}

// Runtime is the single concrete agent execution engine; every persona
// differs only by the models.Agent data it is parameterized with.
type Runtime struct {
	gateway  *llmgateway.Gateway
	tools    *agent.ToolRegistry
	mem      *memory.Manager
	messages storage.ChatMessageStore
	channels storage.ChannelStore
	hub      *hub.Hub
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New builds a Runtime. mem, h and metrics may be nil (memory recall/
// write-back and hub broadcasts are then skipped, and TTFC is unrecorded).
func New(gw *llmgateway.Gateway, tools *agent.ToolRegistry, mem *memory.Manager, messages storage.ChatMessageStore, channels storage.ChannelStore, h *hub.Hub, metrics *observability.Metrics, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		gateway:  gw,
		tools:    tools,
		mem:      mem,
		messages: messages,
		channels: channels,
		hub:      h,
		metrics:  metrics,
		logger:   logger.With("component", "agent-runtime"),
	}
}

// ProcessStreaming runs the full 7-step execution algorithm for one turn
// and returns its lazy chunk sequence. The returned channel is closed after
// the terminal chunk; callers that only want the final text should drain
// it with Drive.
func (r *Runtime) ProcessStreaming(ctx context.Context, messageText string, rc RunContext) (<-chan Chunk, error) {
	if rc.Agent == nil {
		return nil, fmt.Errorf("runtime: RunContext.Agent is required")
	}

	placeholder := &models.ChatMessage{
		ID:                uuid.New().String(),
		ChannelID:         rc.ChannelID,
		AuthorID:          rc.Agent.ID,
		AuthorKind:        models.AuthorKindAgent,
		AuthorDisplayName: rc.Agent.Handle,
		Metadata:          models.ChatMetadata{Provider: rc.Agent.Config.Provider, Model: rc.Agent.Config.Model, Streaming: true},
		CreatedAt:         time.Now().UTC(),
	}
	if err := r.messages.Append(ctx, placeholder); err != nil {
		return nil, fmt.Errorf("runtime: persist placeholder: %w", err)
	}
	r.broadcast("message_new", chatMessagePayload(placeholder))
	r.broadcastAgentStatus(rc.Agent.ID, "thinking")

	out := make(chan Chunk, 8)
	go r.run(ctx, messageText, rc, placeholder, out)
	return out, nil
}

// Drive runs ProcessStreaming to exhaustion and returns the final text.
func (r *Runtime) Drive(ctx context.Context, messageText string, rc RunContext) (string, error) {
	chunks, err := r.ProcessStreaming(ctx, messageText, rc)
	if err != nil {
		return "", err
	}
	var text strings.Builder
	var runErr error
	for c := range chunks {
		text.WriteString(c.Text)
		if c.Err != nil {
			runErr = c.Err
		}
	}
	return text.String(), runErr
}

func (r *Runtime) run(ctx context.Context, messageText string, rc RunContext, placeholder *models.ChatMessage, out chan<- Chunk) {
	defer close(out)

	provider, err := r.gateway.Provider(rc.Agent.Config.Provider)
	if err != nil {
		r.fail(ctx, placeholder, out, "LLMProviderError", err)
		return
	}

	systemPrompt, memoryRecords := r.assemblePrompt(ctx, rc)
	history, err := r.recentHistory(ctx, rc.ChannelID)
	if err != nil {
		r.logger.Warn("runtime: load history failed", "channel", rc.ChannelID, "error", err)
	}

	messages := buildMessages(history, rc.TaskDescription, messageText)

	params := llmgateway.Params{
		Temperature: rc.Agent.Config.Temperature,
		MaxTokens:   rc.Agent.Config.MaxTokens,
		Model:       rc.Agent.Config.Model,
		Provider:    rc.Agent.Config.Provider,
	}

	var tools []llmgateway.ToolSchema
	if r.tools != nil {
		for _, allow := range rc.Agent.Config.ToolAllowList {
			if t, ok := r.tools.Get(allow); ok {
				tools = append(tools, llmgateway.ToolSchema{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
			}
		}
	}

	stream, err := provider.Stream(ctx, systemPrompt, messages, params, tools)
	if err != nil {
		r.fail(ctx, placeholder, out, classifyStreamError(err), err)
		return
	}

	var content strings.Builder
	var toolCalls []models.ToolCall
	nativeTools := provider.SupportsNativeTools()

	for chunk := range stream {
		if chunk.Err != nil {
			r.persistPartial(ctx, placeholder, content.String(), classifyStreamError(chunk.Err))
			select {
			case out <- Chunk{Err: chunk.Err, IsFinal: true, Metadata: map[string]any{"truncated": true, "error": classifyStreamError(chunk.Err)}}:
			case <-ctx.Done():
			}
			return
		}
		content.WriteString(chunk.Text)
		select {
		case out <- Chunk{Text: chunk.Text}:
		case <-ctx.Done():
			return
		}
		r.broadcast("message_stream", map[string]any{"message_id": placeholder.ID, "channel_id": rc.ChannelID, "chunk": chunk.Text, "is_final": false})
		if chunk.IsFinal {
			toolCalls = chunk.ToolCalls
		}
	}

	finalText := content.String()
	if !nativeTools {
		finalText, toolCalls = extractInlineToolCalls(finalText)
	}

	for _, call := range toolCalls {
		note := r.executeTool(ctx, call)
		finalText += "\n\n" + note
		select {
		case out <- Chunk{Text: "\n\n" + note}:
		case <-ctx.Done():
			return
		}
		r.broadcast("message_stream", map[string]any{"message_id": placeholder.ID, "channel_id": rc.ChannelID, "chunk": note, "is_final": false})
	}

	placeholder.Content = finalText
	placeholder.Metadata.Streaming = false
	if err := r.messages.Replace(ctx, placeholder); err != nil {
		r.logger.Error("runtime: persist final message failed", "message_id", placeholder.ID, "error", err)
	}
	r.broadcast("message_update", chatMessagePayload(placeholder))
	r.broadcastAgentStatus(rc.Agent.ID, "online")

	select {
	case out <- Chunk{IsFinal: true, Metadata: map[string]any{"tool_calls": len(toolCalls)}}:
	case <-ctx.Done():
		return
	}

	go r.writeBackMemory(context.WithoutCancel(ctx), rc, messageText, finalText, len(toolCalls) > 0)
}

func (r *Runtime) fail(ctx context.Context, placeholder *models.ChatMessage, out chan<- Chunk, class string, cause error) {
	r.persistPartial(ctx, placeholder, "", class)
	select {
	case out <- Chunk{Err: cause, IsFinal: true, Metadata: map[string]any{"truncated": true, "error": class}}:
	case <-ctx.Done():
	}
}

func (r *Runtime) persistPartial(ctx context.Context, placeholder *models.ChatMessage, partial, errClass string) {
	placeholder.Content = partial
	placeholder.Metadata.Streaming = false
	placeholder.Metadata.Truncated = true
	placeholder.Metadata.Error = errClass
	if err := r.messages.Replace(ctx, placeholder); err != nil {
		r.logger.Error("runtime: persist partial message failed", "message_id", placeholder.ID, "error", err)
	}
	r.broadcast("message_update", chatMessagePayload(placeholder))
}

// assemblePrompt builds the system prompt in order: persona system prompt
// verbatim, up to MemoryRecall relevance-tagged memory records, no running
// summary source currently exists (memory has no dedicated summary API, so
// summary recall piggybacks on the same Search call filtered by kind).
func (r *Runtime) assemblePrompt(ctx context.Context, rc RunContext) (string, []models.SearchResult) {
	base := rc.Agent.Config.SystemPrompt
	if !rc.Agent.Config.MemoryEnabled || r.mem == nil {
		return base, nil
	}

	query := rc.TaskDescription
	if query == "" {
		query = rc.InvokingName
	}
	resp, err := r.mem.Search(ctx, &models.SearchRequest{
		Query:   query,
		Scope:   models.ScopeChannel,
		ScopeID: rc.ChannelID,
		Limit:   MemoryRecall,
	})
	if err != nil || resp == nil || len(resp.Results) == 0 {
		return base, nil
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n<relevant-memories>\n")
	for _, result := range resp.Results {
		fmt.Fprintf(&b, "- (relevance %.2f) %s\n", result.Score, result.Entry.Content)
	}
	b.WriteString("</relevant-memories>")
	return b.String(), resp.Results
}

func (r *Runtime) recentHistory(ctx context.Context, channelID string) ([]*models.ChatMessage, error) {
	all, err := r.messages.ListByChannel(ctx, channelID, HistoryWindow, 0)
	if err != nil {
		return nil, err
	}
	return all, nil
}

func buildMessages(history []*models.ChatMessage, taskDescription, messageText string) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.AuthorKind == models.AuthorKindAgent {
			role = "assistant"
		}
		out = append(out, agent.CompletionMessage{Role: role, Content: m.Content})
	}
	text := messageText
	if taskDescription != "" {
		text = taskDescription
	}
	out = append(out, agent.CompletionMessage{Role: "user", Content: text})
	return out
}

func (r *Runtime) executeTool(ctx context.Context, call models.ToolCall) string {
	if r.tools == nil {
		return fmt.Sprintf("[%s: tool executor unavailable]", call.Name)
	}
	result, err := r.tools.Execute(ctx, call.Name, call.Input)
	if err != nil {
		return fmt.Sprintf("[%s failed: %s]", call.Name, err.Error())
	}
	if result.IsError {
		return fmt.Sprintf("[%s error: %s]", call.Name, result.Content)
	}
	return fmt.Sprintf("[%s result: %s]", call.Name, result.Content)
}

var inlineToolCall = regexp.MustCompile(`(?s)<tool_call name="([^"]+)">(.*?)</tool_call>`)
var inlineToolArg = regexp.MustCompile(`(?s)<(\w+)>(.*?)</\w+>`)

// extractInlineToolCalls parses and strips <tool_call> blocks emitted by
// text-only providers, converting each to a models.ToolCall with a
// synthesized JSON argument object.
func extractInlineToolCalls(text string) (string, []models.ToolCall) {
	matches := inlineToolCall.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var calls []models.ToolCall
	var cleaned strings.Builder
	last := 0
	for _, m := range matches {
		cleaned.WriteString(text[last:m[0]])
		last = m[1]

		name := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		args := map[string]string{}
		for _, argMatch := range inlineToolArg.FindAllStringSubmatch(body, -1) {
			args[argMatch[1]] = argMatch[2]
		}
		input, _ := json.Marshal(args)
		calls = append(calls, models.ToolCall{ID: uuid.New().String(), Name: name, Input: input})
	}
	cleaned.WriteString(text[last:])
	return strings.TrimSpace(cleaned.String()), calls
}

func classifyStreamError(err error) string {
	switch {
	case llmgateway.IsTimeout(err):
		return "LLMTimeout"
	case llmgateway.IsRateLimited(err):
		return "LLMRateLimited"
	default:
		return "LLMStreamError"
	}
}

func (r *Runtime) writeBackMemory(ctx context.Context, rc RunContext, userText, agentText string, hadToolCalls bool) {
	if r.mem == nil || !rc.Agent.Config.MemoryEnabled {
		return
	}
	importance := conversationImportance
	kind := models.MemoryKindConversation
	if hadToolCalls {
		importance = decisionImportance
		kind = models.MemoryKindDecision
	}
	entry := &models.MemoryEntry{
		ID:         uuid.New().String(),
		ChannelID:  rc.ChannelID,
		AgentID:    rc.Agent.ID,
		Kind:       kind,
		Content:    fmt.Sprintf("%s: %s\n%s: %s", rc.InvokingName, userText, rc.Agent.Handle, agentText),
		Importance: importance,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := r.mem.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
		r.logger.Warn("runtime: memory write-back failed", "channel", rc.ChannelID, "agent", rc.Agent.ID, "error", err)
	}
}

func (r *Runtime) broadcast(event string, payload any) {
	if r.hub == nil {
		return
	}
	r.hub.Broadcast(event, payload, hub.BroadcastOptions{Optimize: true, Batch: !hub.IsCritical(event)})
}

func (r *Runtime) broadcastAgentStatus(agentID, status string) {
	r.broadcast("agent_status", map[string]any{"agent_id": agentID, "status": status})
}

func chatMessagePayload(m *models.ChatMessage) map[string]any {
	return map[string]any{
		"message_id":          m.ID,
		"channel_id":          m.ChannelID,
		"author_id":           m.AuthorID,
		"author_kind":         string(m.AuthorKind),
		"author_display_name": m.AuthorDisplayName,
		"content":              m.Content,
		"metadata":             m.Metadata,
		"created_at":           m.CreatedAt.Format(time.RFC3339Nano),
	}
}
