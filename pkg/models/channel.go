package models

import "time"

// Channel is the stable identity for an ordered conversation stream that
// agents and developers converse in. Channels are created explicitly and
// archived (soft-deleted) but never purged while messages reference them.
type Channel struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"` // unique, human-readable
	Topic       string    `json:"topic,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// ContextClearedAt marks the boundary a clear_context request draws:
	// messages created at or before this time are excluded from the
	// conversation window a runtime assembles for new completions.
	ContextClearedAt time.Time `json:"context_cleared_at,omitempty"`
}

// AuthorKind identifies who or what produced a Message.
type AuthorKind string

const (
	AuthorKindUser   AuthorKind = "user"
	AuthorKindAgent  AuthorKind = "agent"
	AuthorKindSystem AuthorKind = "system"
)

// ChatMessage is a single chunk of conversation ordered within a Channel.
// It is distinct from Message (internal/agent's LLM-turn representation):
// ChatMessage is the channel-facing record persisted and broadcast to
// subscribers, while Message models one turn of a model completion.
type ChatMessage struct {
	ID                string         `json:"id"`
	ChannelID         string         `json:"channel_id"`
	AuthorID          string         `json:"author_id,omitempty"` // nullable for system
	AuthorKind        AuthorKind     `json:"author_kind"`
	AuthorDisplayName string         `json:"author_display_name"`
	Content           string         `json:"content"`
	ReplyToID         string         `json:"reply_to_id,omitempty"`
	Metadata          ChatMetadata   `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// ChatMetadata carries presentation and provenance hints for a ChatMessage.
type ChatMetadata struct {
	Model     string `json:"model,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	// Error carries the machine-readable error class (e.g. "LLMTimeout",
	// "LLMProviderError") when a stream ended mid-generation. Empty on
	// success.
	Error string `json:"error,omitempty"`

	// Cancelled marks a message whose generation was cut short by a
	// cooperative workflow cancellation rather than a provider failure.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Placeholder reports whether this message is a streaming placeholder that
// must eventually be replaced by a non-streaming version sharing its ID.
func (m *ChatMessage) Placeholder() bool {
	return m.Metadata.Streaming
}
