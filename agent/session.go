package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weyj4/terminal-agent/llm"
)

// ErrRoundLimit is returned by SendMessage when the configured tool round
// cap is exceeded: a distinct terminal state from natural completion.
var ErrRoundLimit = errors.New("tool round limit exceeded")

// ErrClosed is returned by SendMessage after Close.
var ErrClosed = errors.New("session is closed")

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	Model             string         `json:"model"`
	Provider          string         `json:"provider,omitempty"`
	SystemPrompt      string         `json:"system_prompt,omitempty"` // empty = assembled from workspace context
	MaxToolRounds     int            `json:"max_tool_rounds"`         // per user message; 0 = unlimited
	CommandTimeout    time.Duration  `json:"command_timeout"`
	MaxCommandTimeout time.Duration  `json:"max_command_timeout"`
	ToolOutputLimits  map[string]int `json:"tool_output_limits,omitempty"`
	Streaming         bool           `json:"streaming"`
	DetectRepeats     bool           `json:"detect_repeats"`
	RepeatWindow      int            `json:"repeat_window"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxToolRounds:     0, // unlimited
		CommandTimeout:    DefaultCommandTimeout,
		MaxCommandTimeout: 10 * time.Minute,
		DetectRepeats:     true,
		RepeatWindow:      10,
	}
}

// Session drives one user message through zero or more rounds of
// {inference, tool dispatch} to a final assistant message. A session owns
// its conversation exclusively; history is mutated only by appending. Tool
// calls within one assistant turn run one at a time, in the order the
// backend emitted them, so destructive operations are serialized and their
// results land in deterministic order.
type Session struct {
	id           string
	ws           Workspace
	registry     *ToolRegistry
	gate         *ConfirmationGate
	history      []Turn
	emitter      *EventEmitter
	config       SessionConfig
	client       *llm.Client
	systemPrompt string
	closed       bool
	mu           sync.Mutex
}

// NewSession creates a session over the given workspace. A nil approver
// means destructive tools run unconfirmed (headless mode); a nil config
// selects defaults.
func NewSession(ws Workspace, approver Approver, config *SessionConfig) *Session {
	cfg := DefaultSessionConfig()
	if config != nil {
		cfg = *config
	}

	registry := NewToolRegistry()
	RegisterCoreTools(registry, cfg.CommandTimeout, cfg.MaxCommandTimeout)

	id := uuid.New().String()
	s := &Session{
		id:       id,
		ws:       ws,
		registry: registry,
		gate:     NewConfirmationGate(approver),
		history:  make([]Turn, 0),
		emitter:  NewEventEmitter(id, 256),
		config:   cfg,
		client:   llm.DefaultClient(),
	}

	// The system prompt is fixed for the session lifetime.
	if cfg.SystemPrompt != "" {
		s.systemPrompt = cfg.SystemPrompt
	} else {
		var toolLines []string
		for _, def := range registry.Definitions() {
			toolLines = append(toolLines, fmt.Sprintf("- %s: %s", def.Name, def.Description))
		}
		s.systemPrompt = BuildSystemPrompt(ws, toolLines, DiscoverProjectDocs(ws.WorkingDirectory()))
	}

	return s
}

// SetClient sets a custom backend client, overriding the default.
func (s *Session) SetClient(client *llm.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Registry returns the session's tool registry.
func (s *Session) Registry() *ToolRegistry { return s.registry }

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := make([]Turn, len(s.history))
	copy(h, s.history)
	return h
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Close terminates the session and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.emitter.Emit(EventSessionEnd, nil)
	s.emitter.Close()
}

// SendMessage drives one user message through the agentic loop. It returns
// when the backend produces an assistant turn with no tool calls, or with
// an error if the backend invocation fails; tool failures never surface
// here, they are reported back to the model as results.
func (s *Session) SendMessage(ctx context.Context, userText string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.history = append(s.history, NewUserTurn(userText))
	s.mu.Unlock()

	s.emitter.Emit(EventUserInput, map[string]interface{}{
		"content": userText,
	})

	roundCount := 0

	for {
		s.mu.Lock()
		maxRounds := s.config.MaxToolRounds
		s.mu.Unlock()

		if maxRounds > 0 && roundCount >= maxRounds {
			s.emitter.Emit(EventRoundLimit, map[string]interface{}{
				"rounds": roundCount,
			})
			return fmt.Errorf("%w after %d rounds", ErrRoundLimit, roundCount)
		}

		select {
		case <-ctx.Done():
			s.emitter.Emit(EventError, map[string]interface{}{
				"error": ctx.Err().Error(),
			})
			return ctx.Err()
		default:
		}

		response, err := s.invokeBackend(ctx)
		if err != nil {
			// Backend failures are fatal to this SendMessage call. They
			// occur before any tool dispatch for the round, so the
			// conversation never holds a dangling partial tool turn.
			s.emitter.Emit(EventError, map[string]interface{}{
				"error": err.Error(),
			})
			return fmt.Errorf("backend invocation: %w", err)
		}

		s.emitter.Emit(EventUsage, map[string]interface{}{
			"input_tokens":  response.Usage.InputTokens,
			"output_tokens": response.Usage.OutputTokens,
		})

		// The assistant turn is recorded verbatim, text and tool-call parts
		// both, so the follow-up tool results can correlate.
		toolCalls := response.ToolCalls()
		s.mu.Lock()
		s.history = append(s.history, NewAssistantTurn(response.Text(), toolCalls, response.Usage, response.ID))
		s.mu.Unlock()

		// Tool-call-only turns carry no text fragment; emit nothing for them.
		if text := response.Text(); text != "" {
			s.emitter.Emit(EventAssistantText, map[string]interface{}{
				"text": text,
			})
		}

		// No tool calls: the terminal state for this message.
		if len(toolCalls) == 0 {
			return nil
		}

		roundCount++
		results := s.dispatchToolCalls(ctx, toolCalls)

		// All results for one assistant turn are appended as a single turn
		// before the next inference; the backend protocol requires every
		// issued tool call to be answered.
		s.mu.Lock()
		s.history = append(s.history, NewToolResultsTurn(results))
		s.mu.Unlock()

		s.checkRepeats()
	}
}

// invokeBackend performs one inference call with the full conversation and
// the fixed system prompt, via either the blocking or streaming path.
func (s *Session) invokeBackend(ctx context.Context) (*llm.Response, error) {
	s.mu.Lock()
	messages := HistoryToMessages(s.history)
	cfg := s.config
	client := s.client
	prompt := s.systemPrompt
	s.mu.Unlock()

	request := llm.Request{
		Model:    cfg.Model,
		Provider: cfg.Provider,
		Messages: append([]llm.Message{llm.SystemMessage(prompt)}, messages...),
		ToolDefs: s.registry.Definitions(),
	}

	if cfg.Streaming {
		events, err := client.Stream(ctx, request)
		if err != nil {
			return nil, err
		}
		return llm.Collect(events, func(delta string) {
			s.emitter.Emit(EventAssistantTextDelta, map[string]interface{}{
				"delta": delta,
			})
		})
	}

	return client.Complete(ctx, request)
}

// dispatchToolCalls executes tool calls strictly sequentially, in backend
// order, producing exactly one result per call.
func (s *Session) dispatchToolCalls(ctx context.Context, toolCalls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(toolCalls))
	for i, tc := range toolCalls {
		results[i] = s.dispatchSingleTool(ctx, tc)
	}
	return results
}

// dispatchSingleTool runs the full pipeline for one call:
// lookup -> confirm -> execute -> truncate -> emit.
func (s *Session) dispatchSingleTool(ctx context.Context, toolCall llm.ToolCall) llm.ToolResult {
	s.emitter.Emit(EventToolUse, map[string]interface{}{
		"tool_name": toolCall.Name,
		"call_id":   toolCall.ID,
		"arguments": string(toolCall.Arguments),
	})

	result := llm.ToolResult{ToolCallID: toolCall.ID, ToolName: toolCall.Name}

	registered := s.registry.Get(toolCall.Name)
	switch {
	case registered == nil:
		// A hallucinated tool name is model error, not system failure:
		// report it back instead of failing the round.
		result.Content = fmt.Sprintf("Error: unknown tool %q", toolCall.Name)
		result.IsError = true

	case !s.gate.ShouldRun(ctx, toolCall.Name, toolCall.Arguments):
		result.Content = fmt.Sprintf("Denied by user: %s was not executed.", toolCall.Name)

	default:
		output, err := registered.Executor(ctx, toolCall.Arguments, s.ws)
		if err != nil {
			result.Content = fmt.Sprintf("Error: %v", err)
			result.IsError = true
		} else {
			s.mu.Lock()
			limits := s.config.ToolOutputLimits
			s.mu.Unlock()
			result.Content = TruncateForTool(output, toolCall.Name, limits)
		}
	}

	s.emitter.Emit(EventToolResult, map[string]interface{}{
		"tool_name": toolCall.Name,
		"call_id":   toolCall.ID,
		"content":   result.Content,
		"is_error":  result.IsError,
	})
	return result
}

// checkRepeats emits a warning when the recent tool calls form a repeating
// pattern. The history itself is never touched.
func (s *Session) checkRepeats() {
	s.mu.Lock()
	enabled := s.config.DetectRepeats
	window := s.config.RepeatWindow
	history := make([]Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	if enabled && DetectRepeat(history, window) {
		s.emitter.Emit(EventWarning, map[string]interface{}{
			"message": fmt.Sprintf("The last %d tool calls follow a repeating pattern.", window),
		})
	}
}
