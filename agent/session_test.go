package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/weyj4/terminal-agent/llm"
)

// scriptedAdapter returns canned responses in order, recording each request.
type scriptedAdapter struct {
	responses []*llm.Response
	requests  []llm.Request
	err       error
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	a.requests = append(a.requests, req)
	if a.err != nil {
		return nil, a.err
	}
	if len(a.requests) > len(a.responses) {
		return nil, fmt.Errorf("unexpected request %d", len(a.requests))
	}
	return a.responses[len(a.requests)-1], nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	resp, err := a.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamEvent, 4)
	for _, part := range resp.Message.Content {
		if part.Kind == llm.ContentText && part.Text != "" {
			ch <- llm.StreamEvent{Type: llm.TextDelta, Delta: part.Text}
		}
	}
	ch <- llm.StreamEvent{Type: llm.StreamFinish, Response: resp}
	close(ch)
	return ch, nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		ID:           "resp-text",
		Message:      llm.AssistantMessage(text),
		FinishReason: llm.FinishReason{Reason: "stop"},
		Usage:        llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func toolCallResponse(id, name string, args string) *llm.Response {
	msg := llm.AssistantMessage("")
	msg.Content = append(msg.Content, llm.ToolCallPart(id, name, json.RawMessage(args)))
	return &llm.Response{
		ID:           "resp-" + id,
		Message:      msg,
		FinishReason: llm.FinishReason{Reason: "tool_calls"},
		Usage:        llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestSession(t *testing.T, adapter *scriptedAdapter, config *SessionConfig) *Session {
	t.Helper()
	s := NewSession(NewLocalWorkspace(t.TempDir()), nil, config)
	s.SetClient(llm.NewClient(llm.WithProvider("scripted", adapter)))
	t.Cleanup(s.Close)
	return s
}

func drainEvents(s *Session) []SessionEvent {
	var events []SessionEvent
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestSessionPlainTextResponse(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{textResponse("hi there")}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("history has %d turns, want 2", len(history))
	}
	if history[0].Kind != TurnUser || history[1].Kind != TurnAssistant {
		t.Errorf("turn kinds = %s, %s", history[0].Kind, history[1].Kind)
	}
	if history[1].TextContent() != "hi there" {
		t.Errorf("assistant text = %q", history[1].TextContent())
	}
	if len(adapter.requests) != 1 {
		t.Errorf("backend invoked %d times", len(adapter.requests))
	}
}

func TestSessionToolRoundTrip(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse("call-1", "execute", `{"command":"echo hello"}`),
		textResponse("The command printed hello."),
	}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "Run echo hello"); err != nil {
		t.Fatal(err)
	}

	if len(adapter.requests) != 2 {
		t.Fatalf("backend invoked %d times, want 2", len(adapter.requests))
	}

	history := s.History()
	if len(history) != 4 {
		t.Fatalf("history has %d turns, want 4", len(history))
	}
	wantKinds := []TurnKind{TurnUser, TurnAssistant, TurnToolResults, TurnAssistant}
	for i, want := range wantKinds {
		if history[i].Kind != want {
			t.Errorf("turn %d kind = %s, want %s", i, history[i].Kind, want)
		}
	}

	results := history[2].ToolResults.Results
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].ToolCallID != "call-1" {
		t.Errorf("result correlates to %q", results[0].ToolCallID)
	}
	if strings.TrimSpace(results[0].Content) != "hello" {
		t.Errorf("result content = %q", results[0].Content)
	}
	if results[0].IsError {
		t.Error("successful execution flagged as error")
	}

	// The second request must carry the tool result back to the backend.
	second := adapter.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool {
		t.Errorf("last message role = %s", last.Role)
	}
}

func TestSessionResultPerCallPairing(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		func() *llm.Response {
			msg := llm.AssistantMessage("")
			msg.Content = append(msg.Content,
				llm.ToolCallPart("c1", "execute", json.RawMessage(`{"command":"echo one"}`)),
				llm.ToolCallPart("c2", "bogus_tool", json.RawMessage(`{}`)),
				llm.ToolCallPart("c3", "execute", json.RawMessage(`{"command":"echo three"}`)),
			)
			return &llm.Response{ID: "multi", Message: msg, FinishReason: llm.FinishReason{Reason: "tool_calls"}}
		}(),
		textResponse("done"),
	}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}

	history := s.History()
	results := history[2].ToolResults.Results
	if len(results) != 3 {
		t.Fatalf("got %d results for 3 calls", len(results))
	}
	for i, wantID := range []string{"c1", "c2", "c3"} {
		if results[i].ToolCallID != wantID {
			t.Errorf("result %d correlates to %q, want %q", i, results[i].ToolCallID, wantID)
		}
	}
	if !results[1].IsError || !strings.Contains(results[1].Content, "unknown tool") {
		t.Errorf("bogus tool result = %+v", results[1])
	}
	// Tool failure must not abort the round: the calls around it ran.
	if results[0].IsError || results[2].IsError {
		t.Error("healthy calls flagged as errors")
	}
}

func TestSessionHandlerErrorBecomesResult(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse("c1", "read", `{"path":"missing.txt"}`),
		textResponse("the file is missing"),
	}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "read it"); err != nil {
		t.Fatal(err)
	}

	results := s.History()[2].ToolResults.Results
	if !results[0].IsError {
		t.Error("failed read not flagged")
	}
	if !strings.HasPrefix(results[0].Content, "Error: ") {
		t.Errorf("content = %q", results[0].Content)
	}
}

func TestSessionBackendErrorPropagates(t *testing.T) {
	adapter := &scriptedAdapter{err: &llm.ServerError{}}
	s := newTestSession(t, adapter, nil)

	err := s.SendMessage(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected backend error")
	}
	var serverErr *llm.ServerError
	if !errors.As(err, &serverErr) {
		t.Errorf("error %v does not wrap ServerError", err)
	}

	// The user turn stays; no assistant turn was recorded.
	history := s.History()
	if len(history) != 1 || history[0].Kind != TurnUser {
		t.Errorf("history = %d turns", len(history))
	}
}

func TestSessionGateDenial(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse("c1", "execute", `{"command":"rm -rf /tmp/x"}`),
		textResponse("understood"),
	}}
	s := NewSession(NewLocalWorkspace(t.TempDir()),
		func(ctx context.Context, name string, args json.RawMessage) bool { return false },
		nil)
	s.SetClient(llm.NewClient(llm.WithProvider("scripted", adapter)))
	t.Cleanup(s.Close)

	if err := s.SendMessage(context.Background(), "remove it"); err != nil {
		t.Fatal(err)
	}

	results := s.History()[2].ToolResults.Results
	if !strings.Contains(results[0].Content, "Denied by user") {
		t.Errorf("content = %q", results[0].Content)
	}
	// A denial is a normal negative outcome, not a tool failure.
	if results[0].IsError {
		t.Error("denial flagged as error")
	}
}

func TestSessionDenialSkipsHandler(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse("c1", "write", `{"path":"f.txt","content":"x"}`),
		textResponse("ok"),
	}}
	s := NewSession(NewLocalWorkspace(t.TempDir()),
		func(ctx context.Context, name string, args json.RawMessage) bool { return false },
		nil)
	s.SetClient(llm.NewClient(llm.WithProvider("scripted", adapter)))
	t.Cleanup(s.Close)

	invoked := false
	spy := *s.Registry().Get("write")
	spy.Executor = func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
		invoked = true
		return "", nil
	}
	s.Registry().Register(spy)

	if err := s.SendMessage(context.Background(), "write it"); err != nil {
		t.Fatal(err)
	}
	if invoked {
		t.Error("denied handler was invoked")
	}
}

func TestSessionRoundLimit(t *testing.T) {
	// The model keeps calling the same tool; the configured cap must stop it.
	var responses []*llm.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, toolCallResponse(fmt.Sprintf("c%d", i), "execute", `{"command":"true"}`))
	}
	adapter := &scriptedAdapter{responses: responses}

	cfg := DefaultSessionConfig()
	cfg.MaxToolRounds = 3
	cfg.DetectRepeats = false
	s := newTestSession(t, adapter, &cfg)

	err := s.SendMessage(context.Background(), "loop forever")
	if !errors.Is(err, ErrRoundLimit) {
		t.Fatalf("err = %v, want ErrRoundLimit", err)
	}
	if len(adapter.requests) != 3 {
		t.Errorf("backend invoked %d times, want 3", len(adapter.requests))
	}
}

func TestSessionZeroMeansUnlimitedRounds(t *testing.T) {
	var responses []*llm.Response
	for i := 0; i < 6; i++ {
		responses = append(responses, toolCallResponse(fmt.Sprintf("c%d", i), "execute", `{"command":"true"}`))
	}
	responses = append(responses, textResponse("finally done"))
	adapter := &scriptedAdapter{responses: responses}

	cfg := DefaultSessionConfig()
	cfg.DetectRepeats = false
	s := newTestSession(t, adapter, &cfg)

	if err := s.SendMessage(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	if len(adapter.requests) != 7 {
		t.Errorf("backend invoked %d times, want 7", len(adapter.requests))
	}
}

func TestSessionStreaming(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{textResponse("streamed reply")}}
	cfg := DefaultSessionConfig()
	cfg.Streaming = true
	s := newTestSession(t, adapter, &cfg)

	if err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	var sawDelta, sawFull bool
	for _, ev := range drainEvents(s) {
		switch ev.Kind {
		case EventAssistantTextDelta:
			sawDelta = true
		case EventAssistantText:
			sawFull = true
		}
	}
	if !sawDelta {
		t.Error("no delta events emitted")
	}
	if !sawFull {
		t.Error("no final text event emitted")
	}
	if s.History()[1].TextContent() != "streamed reply" {
		t.Errorf("assistant text = %q", s.History()[1].TextContent())
	}
}

func TestSessionEventSequence(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{
		toolCallResponse("c1", "execute", `{"command":"echo hi"}`),
		textResponse("the output was hi"),
	}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "Run echo hi"); err != nil {
		t.Fatal(err)
	}

	counts := map[EventKind]int{}
	var texts []string
	for _, ev := range drainEvents(s) {
		counts[ev.Kind]++
		if ev.Kind == EventAssistantText {
			texts = append(texts, ev.Data["text"].(string))
		}
	}
	if counts[EventUserInput] != 1 {
		t.Errorf("user input events = %d", counts[EventUserInput])
	}
	if counts[EventToolUse] != 1 || counts[EventToolResult] != 1 {
		t.Errorf("tool events = %d use, %d result", counts[EventToolUse], counts[EventToolResult])
	}
	if counts[EventUsage] != 2 {
		t.Errorf("usage events = %d, want one per inference", counts[EventUsage])
	}
	// The tool-call turn has no text fragment, so only the final answer
	// produces an assistant-text event.
	if counts[EventAssistantText] != 1 {
		t.Errorf("assistant text events = %d, want 1", counts[EventAssistantText])
	}
	if len(texts) != 1 || texts[0] != "the output was hi" {
		t.Errorf("assistant texts = %q", texts)
	}
}

func TestSessionSystemPromptAndToolsSent(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{textResponse("ok")}}
	s := newTestSession(t, adapter, nil)

	if err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	req := adapter.requests[0]
	if len(req.Messages) == 0 || req.Messages[0].Role != llm.RoleSystem {
		t.Fatal("first message is not the system prompt")
	}
	if len(req.ToolDefs) != 7 {
		t.Errorf("sent %d tool definitions, want 7", len(req.ToolDefs))
	}
}

func TestSessionClosedRejectsMessages(t *testing.T) {
	adapter := &scriptedAdapter{responses: []*llm.Response{textResponse("ok")}}
	s := NewSession(NewLocalWorkspace(t.TempDir()), nil, nil)
	s.SetClient(llm.NewClient(llm.WithProvider("scripted", adapter)))
	s.Close()

	if err := s.SendMessage(context.Background(), "hello"); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestSessionRepeatWarning(t *testing.T) {
	// Identical calls filling the detection window trigger a warning event.
	var responses []*llm.Response
	for i := 0; i < 5; i++ {
		responses = append(responses, toolCallResponse(fmt.Sprintf("c%d", i), "execute", `{"command":"true"}`))
	}
	responses = append(responses, textResponse("done"))
	adapter := &scriptedAdapter{responses: responses}

	cfg := DefaultSessionConfig()
	cfg.RepeatWindow = 4
	s := newTestSession(t, adapter, &cfg)

	if err := s.SendMessage(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}

	var warned bool
	for _, ev := range drainEvents(s) {
		if ev.Kind == EventWarning {
			warned = true
		}
	}
	if !warned {
		t.Error("no warning for repeating tool calls")
	}
}
