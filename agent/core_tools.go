package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/weyj4/terminal-agent/llm"
)

// DefaultCommandTimeout bounds shell execution unless the call overrides it.
const DefaultCommandTimeout = 30 * time.Second

const (
	maxFindResults   = 200
	maxSearchResults = 200
)

// RegisterCoreTools registers the fixed tool set on a registry. The
// registry is populated once at startup and not mutated afterwards.
func RegisterCoreTools(reg *ToolRegistry, defaultTimeout, maxTimeout time.Duration) {
	registerRead(reg)
	registerWrite(reg)
	registerEdit(reg)
	registerList(reg)
	registerFind(reg)
	registerSearch(reg)
	registerExecute(reg, defaultTimeout, maxTimeout)
}

func registerRead(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "read",
			Description: "Read a file and return its full contents.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file, relative to the working directory.",
					},
				},
				"required": []string{"path"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			return ws.ReadFile(path)
		},
	})
}

func registerWrite(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "write",
			Description: "Write content to a file, creating it and any parent directories if needed. Overwrites existing content.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to write to.",
					},
					"content": map[string]interface{}{
						"type":        "string",
						"description": "The full file content to write.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			content, ok := GetStringArg(args, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := ws.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
		},
	})
}

func registerEdit(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "edit",
			Description: "Replace an exact text occurrence in a file. The old_text must appear exactly once unless replace_all is set.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Path to the file to edit.",
					},
					"old_text": map[string]interface{}{
						"type":        "string",
						"description": "Exact text to find in the file.",
					},
					"new_text": map[string]interface{}{
						"type":        "string",
						"description": "Replacement text.",
					},
					"replace_all": map[string]interface{}{
						"type":        "boolean",
						"description": "Replace all occurrences. Default: false.",
					},
				},
				"required": []string{"path", "old_text", "new_text"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, ok := GetStringArg(args, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			oldText, ok := GetStringArg(args, "old_text")
			if !ok || oldText == "" {
				return "", fmt.Errorf("old_text is required")
			}
			newText, _ := GetStringArg(args, "new_text")
			replaceAll, _ := GetBoolArg(args, "replace_all")

			content, err := ws.ReadFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("file not found: %s", path)
				}
				return "", fmt.Errorf("read %s: %w", path, err)
			}

			// Ambiguity is surfaced to the model rather than resolved
			// heuristically: editing the wrong occurrence of a common
			// pattern is worse than asking for more context.
			count := strings.Count(content, oldText)
			if count == 0 {
				return "", fmt.Errorf("old_text not found in %s", path)
			}
			if count > 1 && !replaceAll {
				return "", fmt.Errorf("old_text occurs %d times in %s; provide more surrounding context to make it unique, or set replace_all", count, path)
			}

			var updated string
			replacements := 1
			if replaceAll {
				updated = strings.ReplaceAll(content, oldText, newText)
				replacements = count
			} else {
				updated = strings.Replace(content, oldText, newText, 1)
			}

			if err := ws.WriteFile(path, updated); err != nil {
				return "", err
			}
			return fmt.Sprintf("Replaced %d occurrence(s) in %s", replacements, path), nil
		},
	})
}

func registerList(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "list",
			Description: "List the entries of a directory. Directory entries carry a trailing slash.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory to list. Default: working directory.",
					},
				},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, _ := GetStringArg(args, "path")

			entries, err := ws.ListDirectory(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return "", fmt.Errorf("no such directory: %s", displayPath(path))
				}
				if isNotDir(err) {
					return "", fmt.Errorf("not a directory: %s", displayPath(path))
				}
				return "", err
			}
			if len(entries) == 0 {
				return "(empty directory)", nil
			}

			sort.Slice(entries, func(i, j int) bool {
				a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
				if a == b {
					return entries[i].Name < entries[j].Name
				}
				return a < b
			})

			var sb strings.Builder
			for i, entry := range entries {
				if i > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(entry.Name)
				if entry.TypeKnown && entry.IsDir {
					sb.WriteByte('/')
				}
			}
			return sb.String(), nil
		},
	})
}

func registerFind(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "find",
			Description: "Find files whose names match a glob pattern. Skips version-control and dependency directories.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Glob pattern, e.g. \"*.go\".",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory to search under. Default: working directory.",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, ok := GetStringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := GetStringArg(args, "path")

			matches, err := ws.FindFiles(ctx, pattern, path, maxFindResults)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files found.", nil
			}
			return strings.Join(matches, "\n"), nil
		},
	})
}

func registerSearch(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "search",
			Description: "Search file contents for a regex pattern. Returns matching lines with file paths and line numbers.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"pattern": map[string]interface{}{
						"type":        "string",
						"description": "Regex pattern to search for.",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Directory or file to search. Default: working directory.",
					},
					"include": map[string]interface{}{
						"type":        "string",
						"description": "File pattern filter, e.g. \"*.py\".",
					},
				},
				"required": []string{"pattern"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			pattern, ok := GetStringArg(args, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := GetStringArg(args, "path")
			include, _ := GetStringArg(args, "include")

			out, err := ws.SearchContent(ctx, pattern, path, include, maxSearchResults)
			if err != nil {
				return "", err
			}
			if out == "" {
				return "No matches found.", nil
			}
			return out, nil
		},
	})
}

func registerExecute(reg *ToolRegistry, defaultTimeout, maxTimeout time.Duration) {
	reg.Register(RegisteredTool{
		Definition: llm.ToolDefinition{
			Name:        "execute",
			Description: "Execute a shell command in the working directory. Returns interleaved stdout and stderr; a nonzero exit code is reported with the output.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"command": map[string]interface{}{
						"type":        "string",
						"description": "The command to run.",
					},
					"timeout_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Override the default command timeout in milliseconds.",
					},
				},
				"required": []string{"command"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			command, ok := GetStringArg(args, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeout := defaultTimeout
			if ms, ok := GetIntArg(args, "timeout_ms"); ok && ms > 0 {
				timeout = time.Duration(ms) * time.Millisecond
			}
			if maxTimeout > 0 && timeout > maxTimeout {
				timeout = maxTimeout
			}

			result, err := ws.ExecCommand(ctx, command, timeout)
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output)
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Command timed out after %s. Partial output is shown above.]", timeout)
			} else if result.ExitCode != 0 {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return sb.String(), nil
		},
	})
}

func displayPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

// isNotDir detects the ENOTDIR that ReadDir raises when the path exists but
// is a plain file.
func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
