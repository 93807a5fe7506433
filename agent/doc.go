// Package agent implements the core loop of a terminal coding assistant.
//
// It pairs a language model backend with a small set of filesystem and
// shell tools, driving each user message through rounds of inference and
// tool execution until the model produces a plain answer.
//
// The loop uses the llm package's Client for inference and implements the
// turn machinery itself: history as an append-only sequence of turns,
// strictly sequential tool dispatch, output truncation, and a confirmation
// gate for destructive operations.
//
// # Architecture
//
// The package is organized around these core concepts:
//
//   - Session: The central orchestrator holding conversation state,
//     dispatching tool calls, and emitting events.
//   - Workspace: Abstraction over where tools act (filesystem reads and
//     writes, command execution, search).
//   - ToolRegistry: Registration and dispatch of tool definitions.
//   - ConfirmationGate: User approval step for write, edit, and execute.
//   - EventEmitter: Typed event stream for the host application.
//
// # Quick Start
//
//	ws := agent.NewLocalWorkspace("/path/to/project")
//	session := agent.NewSession(ws, approver, nil)
//	defer session.Close()
//
//	go func() {
//		for event := range session.Events() {
//			fmt.Println(event.Kind)
//		}
//	}()
//
//	if err := session.SendMessage(ctx, "Fix the failing test"); err != nil {
//		log.Fatal(err)
//	}
//
// Tool handlers never abort the loop. A failed read or a non-zero exit
// code is reported back to the model as an error-flagged result so it can
// adjust; only backend failures and context cancellation surface from
// SendMessage.
package agent
