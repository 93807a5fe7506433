package llm

import "strings"

// Collect drains a stream event channel and folds it into a full Response.
// The optional onDelta callback is invoked for each text delta in the order
// it arrives, letting callers surface incremental output while still
// receiving the assembled response at the end.
//
// If the stream carries a StreamFinish event with an attached Response, that
// response is returned verbatim; otherwise one is synthesized from the
// accumulated deltas and tool calls. A StreamError event aborts collection
// and returns its error.
func Collect(events <-chan StreamEvent, onDelta func(delta string)) (*Response, error) {
	var text strings.Builder
	var toolCalls []ToolCall
	var final *Response

	for ev := range events {
		switch ev.Type {
		case TextDelta:
			text.WriteString(ev.Delta)
			if onDelta != nil {
				onDelta(ev.Delta)
			}
		case ToolCallEvent:
			if ev.ToolCall != nil {
				toolCalls = append(toolCalls, *ev.ToolCall)
			}
		case StreamFinish:
			final = ev.Response
		case StreamError:
			if ev.Error != nil {
				return nil, ev.Error
			}
			return nil, &StreamBrokenError{BackendError: BackendError{Message: "stream terminated without a cause"}}
		}
	}

	if final != nil {
		return final, nil
	}

	// Synthesize a response from the accumulated events.
	var parts []ContentPart
	if text.Len() > 0 {
		parts = append(parts, TextPart(text.String()))
	}
	for _, tc := range toolCalls {
		parts = append(parts, ToolCallPart(tc.ID, tc.Name, tc.Arguments))
	}
	reason := FinishReason{Reason: "stop"}
	if len(toolCalls) > 0 {
		reason = FinishReason{Reason: "tool_calls"}
	}
	return &Response{
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: reason,
	}, nil
}
