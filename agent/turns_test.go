package agent

import (
	"encoding/json"
	"testing"

	"github.com/weyj4/terminal-agent/llm"
)

func TestHistoryToMessagesRoles(t *testing.T) {
	history := []Turn{
		NewUserTurn("run the tests"),
		NewAssistantTurn("running now",
			[]llm.ToolCall{{ID: "c1", Name: "execute", Arguments: json.RawMessage(`{"command":"go test"}`)}},
			llm.Usage{}, "r1"),
		NewToolResultsTurn([]llm.ToolResult{{ToolCallID: "c1", ToolName: "execute", Content: "ok"}}),
		NewAssistantTurn("all green", nil, llm.Usage{}, "r2"),
	}

	messages := HistoryToMessages(history)
	wantRoles := []llm.Role{llm.RoleUser, llm.RoleAssistant, llm.RoleTool, llm.RoleAssistant}
	if len(messages) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(messages), len(wantRoles))
	}
	for i, want := range wantRoles {
		if messages[i].Role != want {
			t.Errorf("message %d role = %s, want %s", i, messages[i].Role, want)
		}
	}
}

func TestHistoryToMessagesPreservesToolCallParts(t *testing.T) {
	history := []Turn{
		NewAssistantTurn("text first",
			[]llm.ToolCall{{ID: "c1", Name: "read", Arguments: json.RawMessage(`{"path":"x"}`)}},
			llm.Usage{}, "r1"),
	}
	messages := HistoryToMessages(history)
	msg := messages[0]
	if len(msg.Content) != 2 {
		t.Fatalf("got %d content parts", len(msg.Content))
	}
	if msg.Content[0].Kind != llm.ContentText {
		t.Errorf("part 0 kind = %s", msg.Content[0].Kind)
	}
	if msg.Content[1].Kind != llm.ContentToolCall || msg.Content[1].ToolCall.ID != "c1" {
		t.Errorf("part 1 = %+v", msg.Content[1])
	}
}

func TestHistoryToMessagesToolResultCorrelation(t *testing.T) {
	history := []Turn{
		NewToolResultsTurn([]llm.ToolResult{
			{ToolCallID: "c1", ToolName: "read", Content: "data"},
			{ToolCallID: "c2", ToolName: "list", Content: "Error: boom", IsError: true},
		}),
	}
	messages := HistoryToMessages(history)
	if len(messages) != 2 {
		t.Fatalf("got %d messages", len(messages))
	}
	if messages[0].ToolCallID != "c1" || messages[1].ToolCallID != "c2" {
		t.Errorf("correlation ids = %q, %q", messages[0].ToolCallID, messages[1].ToolCallID)
	}
	if !messages[1].Content[0].ToolResult.IsError {
		t.Error("error flag lost in conversion")
	}
}

func TestTurnTextContent(t *testing.T) {
	if got := NewUserTurn("hi").TextContent(); got != "hi" {
		t.Errorf("user text = %q", got)
	}
	if got := NewAssistantTurn("reply", nil, llm.Usage{}, "").TextContent(); got != "reply" {
		t.Errorf("assistant text = %q", got)
	}
	if got := NewToolResultsTurn(nil).TextContent(); got != "" {
		t.Errorf("tool results text = %q", got)
	}
}
