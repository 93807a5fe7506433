package agent

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExecResult holds the result of a command execution. Output is stdout and
// stderr interleaved in arrival order.
type ExecResult struct {
	Output   string        `json:"output"`
	ExitCode int           `json:"exit_code"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// DirEntry represents a filesystem directory entry. TypeKnown is false when
// the entry's type probe failed; such entries are still listed by name.
type DirEntry struct {
	Name      string `json:"name"`
	IsDir     bool   `json:"is_dir"`
	TypeKnown bool   `json:"type_known"`
}

// Workspace abstracts where tool operations run. All relative paths resolve
// against the workspace's working directory.
type Workspace interface {
	// File operations.
	ReadFile(path string) (string, error)
	WriteFile(path string, content string) error
	ListDirectory(path string) ([]DirEntry, error)

	// Command execution.
	ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error)

	// Search operations.
	SearchContent(ctx context.Context, pattern, path, include string, maxResults int) (string, error)
	FindFiles(ctx context.Context, pattern, path string, maxResults int) ([]string, error)

	// Metadata.
	WorkingDirectory() string
	Platform() string
}

// skipDirs are version-control and dependency directories excluded from
// find and search by convention.
var skipDirs = []string{".git", "node_modules", "vendor", ".venv", "__pycache__", "dist", "target"}

// LocalWorkspace runs tools on the local machine.
type LocalWorkspace struct {
	workingDir string

	grepOnce sync.Once
	grepPath string // resolved rg or grep binary
	grepIsRg bool
}

// NewLocalWorkspace creates a workspace rooted at workingDir, defaulting to
// the process working directory.
func NewLocalWorkspace(workingDir string) *LocalWorkspace {
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}
	return &LocalWorkspace{workingDir: workingDir}
}

func (w *LocalWorkspace) WorkingDirectory() string {
	return w.workingDir
}

func (w *LocalWorkspace) Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func (w *LocalWorkspace) resolvePath(path string) string {
	if path == "" {
		return w.workingDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(w.workingDir, path)
}

// ReadFile returns the full raw file content.
func (w *LocalWorkspace) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(w.resolvePath(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile creates parent directories as needed, then creates or
// overwrites the file.
func (w *LocalWorkspace) WriteFile(path string, content string) error {
	resolved := w.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

// ListDirectory lists immediate entries. The single ReadDir call doubles as
// the existence and directory-ness probe: ENOENT and ENOTDIR surface from it
// directly, so there is no separate stat and no check-then-use race.
func (w *LocalWorkspace) ListDirectory(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(w.resolvePath(path))
	if err != nil {
		return nil, err
	}

	result := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		de := DirEntry{Name: entry.Name(), TypeKnown: true}
		if entry.Type()&(fs.ModeSymlink|fs.ModeIrregular) != 0 {
			// Symlink targets need a follow-up probe; a failure there must
			// not fail the whole listing.
			info, err := os.Stat(filepath.Join(w.resolvePath(path), entry.Name()))
			if err != nil {
				de.TypeKnown = false
			} else {
				de.IsDir = info.IsDir()
			}
		} else {
			de.IsDir = entry.IsDir()
		}
		result = append(result, de)
	}
	return result, nil
}

// ExecCommand runs command in a subshell with a wall-clock timeout. The
// child is started in its own process group; on timeout the whole group is
// killed so the shell's descendants do not outlive it.
func (w *LocalWorkspace) ExecCommand(ctx context.Context, command string, timeout time.Duration) (*ExecResult, error) {
	cmd := exec.Command("/bin/bash", "-c", command)
	cmd.Dir = w.workingDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn shell: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	result := &ExecResult{}
	select {
	case err := <-done:
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else if err != nil {
			return nil, fmt.Errorf("wait for shell: %w", err)
		}
	case <-timer:
		result.TimedOut = true
		result.ExitCode = -1
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return nil, ctx.Err()
	}

	result.Output = output.String()
	result.Duration = time.Since(start)
	return result, nil
}

// probeGrep locates the content search binary once per process: ripgrep
// when available, plain grep otherwise.
func (w *LocalWorkspace) probeGrep() (string, bool) {
	w.grepOnce.Do(func() {
		if rg, err := exec.LookPath("rg"); err == nil {
			w.grepPath = rg
			w.grepIsRg = true
			return
		}
		w.grepPath = "grep"
	})
	return w.grepPath, w.grepIsRg
}

// SearchContent greps file contents under path. An empty result is normal
// (exit status 1 from both rg and grep); any other nonzero exit is a real
// invocation failure.
func (w *LocalWorkspace) SearchContent(ctx context.Context, pattern, path, include string, maxResults int) (string, error) {
	root := w.resolvePath(path)
	bin, isRg := w.probeGrep()

	var args []string
	if isRg {
		args = []string{"--line-number", "--no-heading"}
		for _, d := range skipDirs {
			args = append(args, "--glob", "!"+d)
		}
		if include != "" {
			args = append(args, "--glob", include)
		}
		args = append(args, "--", pattern, root)
	} else {
		args = []string{"-rn"}
		for _, d := range skipDirs {
			args = append(args, "--exclude-dir="+d)
		}
		if include != "" {
			args = append(args, "--include="+include)
		}
		args = append(args, "--", pattern, root)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = w.workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "", nil // no matches
		}
		return "", fmt.Errorf("%s failed: %v: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if maxResults > 0 && len(lines) > maxResults {
		lines = lines[:maxResults]
	}
	return relativizeLines(lines, root), nil
}

// FindFiles locates files matching a shell glob pattern under path via an
// external find process, pruning the conventional skip directories.
func (w *LocalWorkspace) FindFiles(ctx context.Context, pattern, path string, maxResults int) ([]string, error) {
	root := w.resolvePath(path)

	args := []string{root, "("}
	for i, d := range skipDirs {
		if i > 0 {
			args = append(args, "-o")
		}
		args = append(args, "-name", d)
	}
	args = append(args, ")", "-prune", "-o", "-name", pattern, "-type", "f", "-print")

	cmd := exec.CommandContext(ctx, "find", args...)
	cmd.Dir = w.workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("find failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}

	out := strings.TrimRight(stdout.String(), "\n")
	if out == "" {
		return nil, nil
	}

	var matches []string
	for _, line := range strings.Split(out, "\n") {
		if rel, err := filepath.Rel(root, line); err == nil {
			matches = append(matches, rel)
		} else {
			matches = append(matches, line)
		}
		if maxResults > 0 && len(matches) >= maxResults {
			break
		}
	}
	return matches, nil
}

// relativizeLines rewrites absolute match paths at the start of each line
// relative to root.
func relativizeLines(lines []string, root string) string {
	prefix := root + string(filepath.Separator)
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
