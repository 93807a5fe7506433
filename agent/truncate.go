package agent

import "fmt"

// DefaultMaxToolOutput is the budget applied to tool results before they
// re-enter the conversation.
const DefaultMaxToolOutput = 30000

// DefaultToolOutputLimits overrides the budget per tool. Tools not listed
// use DefaultMaxToolOutput.
var DefaultToolOutputLimits = map[string]int{
	"read":    50000,
	"execute": 30000,
	"search":  20000,
	"find":    20000,
	"edit":    10000,
	"write":   1000,
}

// Truncate bounds text to at most max characters. Text within the budget is
// returned unchanged. Oversized text keeps the first two thirds of the
// budget from the head and the rest from the tail, joined by a marker
// stating how many characters were omitted from the middle. The result never
// exceeds the budget, which makes Truncate idempotent.
func Truncate(text string, max int) string {
	if max <= 0 {
		max = DefaultMaxToolOutput
	}
	if len(text) <= max {
		return text
	}

	head := max * 2 / 3
	tail := max - head

	// The marker counts against the budget. Its length depends on the
	// omitted count, so shrink the tail until everything fits.
	for {
		marker := fmt.Sprintf("\n\n[... %d characters truncated ...]\n\n", len(text)-head-tail)
		excess := head + len(marker) + tail - max
		if excess <= 0 {
			return text[:head] + marker + text[len(text)-tail:]
		}
		if tail >= excess {
			tail -= excess
			continue
		}
		// Budget too small for a head/tail split; keep a plain prefix.
		return text[:max]
	}
}

// TruncateForTool applies the truncation budget for a named tool, honoring
// per-tool overrides from the session configuration.
func TruncateForTool(output, toolName string, limits map[string]int) string {
	max, ok := limits[toolName]
	if !ok {
		max, ok = DefaultToolOutputLimits[toolName]
		if !ok {
			max = DefaultMaxToolOutput
		}
	}
	return Truncate(output, max)
}
