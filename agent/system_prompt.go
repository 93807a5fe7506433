package agent

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

const basePrompt = `You are a terminal-based coding assistant. You help users with software
engineering tasks by reading files, editing code, running commands, and
iterating until the task is done.

Guidelines:
- Use the provided tools to inspect and modify the project; do not guess at
  file contents.
- Prefer edit over write for existing files, and keep changes minimal.
- When a command fails, read the error output and adjust rather than
  repeating the same call.
- Reply with a concise final answer once the task is complete.`

// BuildSystemPrompt assembles the fixed system prompt sent with every
// inference request: base instructions, environment context, tool
// descriptions, and any discovered project instructions.
func BuildSystemPrompt(ws Workspace, toolDefs []string, projectDocs string) string {
	var sb strings.Builder

	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(buildEnvironmentContext(ws))

	if len(toolDefs) > 0 {
		sb.WriteString("\n\n# Available Tools\n\n")
		sb.WriteString(strings.Join(toolDefs, "\n"))
	}

	if projectDocs != "" {
		sb.WriteString("\n\n# Project Instructions\n\n")
		sb.WriteString(projectDocs)
	}

	return sb.String()
}

// buildEnvironmentContext generates the structured environment block.
func buildEnvironmentContext(ws Workspace) string {
	workingDir := ws.WorkingDirectory()

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Platform: %s\n", ws.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if branch := gitBranch(workingDir); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md instruction files from the git root
// down to the working directory, capped at 32KB total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0

	for _, dir := range pathHierarchy(root, workingDir) {
		path := filepath.Join(dir, "AGENTS.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}

		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}

		docs = append(docs, fmt.Sprintf("# AGENTS.md (from %s)\n\n%s", dir, text))
		totalBytes += len(text)
	}

	return strings.Join(docs, "\n\n---\n\n")
}

// pathHierarchy returns directories from root to target, inclusive.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	if root == target {
		return []string{root}
	}

	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return dirs
	}

	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == ".." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	return runGit(dir, "rev-parse", "--show-toplevel")
}

func gitBranch(dir string) string {
	return runGit(dir, "rev-parse", "--abbrev-ref", "HEAD")
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
