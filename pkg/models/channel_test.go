package models

import "testing"

func TestChannel_Struct(t *testing.T) {
	ch := Channel{
		ID:          "chan-1",
		DisplayName: "general",
		Topic:       "project chat",
	}
	if ch.Archived {
		t.Error("new channel should not be archived")
	}
	if ch.DisplayName != "general" {
		t.Errorf("DisplayName = %q, want %q", ch.DisplayName, "general")
	}
}

func TestChatMessage_Placeholder(t *testing.T) {
	msg := ChatMessage{
		ID:         "msg-1",
		ChannelID:  "chan-1",
		AuthorKind: AuthorKindAgent,
		Content:    "",
		Metadata:   ChatMetadata{Streaming: true},
	}
	if !msg.Placeholder() {
		t.Error("expected streaming message to be a placeholder")
	}

	msg.Metadata.Streaming = false
	msg.Content = "final answer"
	if msg.Placeholder() {
		t.Error("expected non-streaming message to not be a placeholder")
	}
}

func TestAuthorKind_Constants(t *testing.T) {
	tests := []struct {
		kind     AuthorKind
		expected string
	}{
		{AuthorKindUser, "user"},
		{AuthorKindAgent, "agent"},
		{AuthorKindSystem, "system"},
	}
	for _, tt := range tests {
		if string(tt.kind) != tt.expected {
			t.Errorf("kind = %q, want %q", tt.kind, tt.expected)
		}
	}
}
