package runtime

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestExtractInlineToolCalls_NoBlocks(t *testing.T) {
	text, calls := extractInlineToolCalls("just a plain reply")
	if len(calls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(calls))
	}
	if text != "just a plain reply" {
		t.Fatalf("text mutated: %q", text)
	}
}

func TestExtractInlineToolCalls_SingleBlock(t *testing.T) {
	input := `Let me check that. <tool_call name="read_file"><path>README.md</path></tool_call> one moment.`
	text, calls := extractInlineToolCalls(input)

	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].Name != "read_file" {
		t.Fatalf("Name = %q, want read_file", calls[0].Name)
	}
	var args map[string]string
	if err := json.Unmarshal(calls[0].Input, &args); err != nil {
		t.Fatalf("unmarshal args: %v", err)
	}
	if args["path"] != "README.md" {
		t.Fatalf("path arg = %q, want README.md", args["path"])
	}
	if contains(text, "<tool_call") {
		t.Fatalf("tool_call block not stripped: %q", text)
	}
}

func TestExtractInlineToolCalls_MultipleBlocks(t *testing.T) {
	input := `<tool_call name="a"><x>1</x></tool_call> and <tool_call name="b"><y>2</y></tool_call>`
	_, calls := extractInlineToolCalls(input)
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].Name != "a" || calls[1].Name != "b" {
		t.Fatalf("unexpected call order: %+v", calls)
	}
}

func TestBuildMessages_AppendsNewMessageLast(t *testing.T) {
	history := []*models.ChatMessage{
		{Content: "hi", AuthorKind: models.AuthorKindUser},
		{Content: "hello", AuthorKind: models.AuthorKindAgent},
	}
	msgs := buildMessages(history, "", "what's next")

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[2].Content != "what's next" || msgs[2].Role != "user" {
		t.Fatalf("last message = %+v", msgs[2])
	}
	if msgs[1].Role != "assistant" {
		t.Fatalf("agent history message role = %q, want assistant", msgs[1].Role)
	}
}

func TestBuildMessages_PrefersTaskDescription(t *testing.T) {
	msgs := buildMessages(nil, "run the tests", "ignored")
	if len(msgs) != 1 || msgs[0].Content != "run the tests" {
		t.Fatalf("expected task description to win, got %+v", msgs)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
