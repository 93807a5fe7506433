package agent

import (
	"context"
	"encoding/json"
)

// Approver decides whether a destructive tool call may run. It may block
// (e.g. on an interactive prompt); the loop suspends until it resolves.
type Approver func(ctx context.Context, toolName string, arguments json.RawMessage) bool

// destructiveTools is the fixed set of tool names requiring confirmation.
// Read-only inspection tools never consult the approver.
var destructiveTools = map[string]bool{
	"write":   true,
	"edit":    true,
	"execute": true,
}

// IsDestructive reports whether a tool name is in the destructive set.
func IsDestructive(toolName string) bool {
	return destructiveTools[toolName]
}

// ConfirmationGate intercepts dispatch of destructive tool calls and asks
// an external approver for a yes/no decision before the handler runs.
type ConfirmationGate struct {
	approver Approver
}

// NewConfirmationGate creates a gate. A nil approver means every call is
// allowed: headless and scripted runs are fail-open.
func NewConfirmationGate(approver Approver) *ConfirmationGate {
	return &ConfirmationGate{approver: approver}
}

// ShouldRun reports whether a tool call may proceed. Non-destructive tools
// always run without consulting the approver.
func (g *ConfirmationGate) ShouldRun(ctx context.Context, toolName string, arguments json.RawMessage) bool {
	if !destructiveTools[toolName] {
		return true
	}
	if g == nil || g.approver == nil {
		return true
	}
	return g.approver(ctx, toolName, arguments)
}
