package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is the unified message format across all channels.
type Message struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Channel     ChannelType       `json:"channel"`
	ChannelID   string            `json:"channel_id"`   // Platform-specific message ID
	Direction   Direction         `json:"direction"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ToolCalls   []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults []ToolResult      `json:"tool_results,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Session represents a conversation thread.
type Session struct {
	ID        string            `json:"id"`
	AgentID   string            `json:"agent_id"`
	Channel   ChannelType       `json:"channel"`
	ChannelID string            `json:"channel_id"`
	Key       string            `json:"key"`
	Title     string            `json:"title,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// AgentKind identifies an agent's implementation. BuiltinAgentKinds lists the
// closed set; any other value is treated as AgentKindCustom and must carry a
// fully self-describing Persona and Config (no framework-injected prompt text).
type AgentKind string

const (
	AgentKindOrchestrator AgentKind = "orchestrator"
	AgentKindBackend      AgentKind = "backend"
	AgentKindFrontend     AgentKind = "frontend"
	AgentKindReviewer     AgentKind = "reviewer"
	AgentKindResearcher   AgentKind = "researcher"
	AgentKindCustom       AgentKind = "custom"
)

// BuiltinAgentKinds is the closed set of framework-recognized agent kinds.
var BuiltinAgentKinds = map[AgentKind]bool{
	AgentKindOrchestrator: true,
	AgentKindBackend:      true,
	AgentKindFrontend:     true,
	AgentKindReviewer:     true,
	AgentKindResearcher:   true,
}

// AgentPersona describes how an agent presents itself.
type AgentPersona struct {
	Role         string   `json:"role"`
	Goal         string   `json:"goal"`
	Backstory    string   `json:"backstory,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Color        string   `json:"color,omitempty"`
	Icon         string   `json:"icon,omitempty"`
}

// AgentConfig holds an agent's LLM and tool configuration.
type AgentConfig struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	Temperature    float64  `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	ToolAllowList  []string `json:"tool_allow_list,omitempty"`
	MemoryEnabled  bool     `json:"memory_enabled"`
	MemoryWindow   int      `json:"memory_window,omitempty"`
	SystemPrompt   string   `json:"system_prompt,omitempty"`
	TemplateID     string   `json:"template_id,omitempty"` // weak reference; templates do not own agents
}

// Agent is a configured persona capable of producing messages.
type Agent struct {
	ID        string       `json:"id"`
	Handle    string       `json:"handle"` // globally unique, begins with "@"
	Kind      AgentKind    `json:"kind"`
	Persona   AgentPersona `json:"persona"`
	Config    AgentConfig  `json:"config"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TemplateType classifies an AgentTemplate's provenance.
type TemplateType string

const (
	TemplateTypeDefault   TemplateType = "default"
	TemplateTypeCustom    TemplateType = "custom"
	TemplateTypeCommunity TemplateType = "community"
)

// AgentTemplate is a reusable blueprint that can instantiate an Agent.
// Templates of TemplateTypeDefault are immutable and undeletable.
type AgentTemplate struct {
	ID        string       `json:"id"`
	Type      TemplateType `json:"type"`
	Domain    string       `json:"domain,omitempty"`
	Handle    string       `json:"handle"`
	Kind      AgentKind    `json:"kind"`
	Persona   AgentPersona `json:"persona"`
	Config    AgentConfig  `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Instantiate builds a new Agent from the template with the given handle.
func (t *AgentTemplate) Instantiate(id, handle string, now time.Time) *Agent {
	cfg := t.Config
	cfg.TemplateID = t.ID
	return &Agent{
		ID:        id,
		Handle:    handle,
		Kind:      t.Kind,
		Persona:   t.Persona,
		Config:    cfg,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
