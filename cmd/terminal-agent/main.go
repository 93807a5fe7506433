// Command terminal-agent is an interactive coding assistant for the
// terminal. It reads user requests on stdin, lets a language model inspect
// and modify the current project through a fixed tool set, and prints the
// model's answers along the way. Destructive tool calls (write, edit,
// execute) are confirmed interactively unless -yes is given.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/weyj4/terminal-agent/agent"
	"github.com/weyj4/terminal-agent/llm"
)

var log = logrus.New()

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default ~/.terminal-agent/config.toml)")
		model       = flag.String("model", "", "model to use, overriding the config file")
		provider    = flag.String("provider", "", "provider to use, overriding the config file")
		workdir     = flag.String("workdir", "", "working directory for tools (default: current directory)")
		autoApprove = flag.Bool("yes", false, "run destructive tools without confirmation")
		noStream    = flag.Bool("no-stream", false, "disable streaming output")
		prompt      = flag.String("p", "", "run a single prompt and exit")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal-agent: %v\n", err)
		os.Exit(1)
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *autoApprove {
		cfg.AutoApprove = true
	}
	if *noStream {
		cfg.Streaming = false
	}

	logCloser := setupLogging(cfg.LogPath, *verbose)
	if logCloser != nil {
		defer logCloser.Close()
	}

	ws := agent.NewLocalWorkspace(resolveWorkdir(*workdir))
	stdin := bufio.NewReader(os.Stdin)
	printer := &eventPrinter{out: os.Stdout, streaming: cfg.Streaming}

	var approver agent.Approver
	if !cfg.AutoApprove {
		approver = makeApprover(stdin, os.Stdout)
	}

	sessionCfg := agent.DefaultSessionConfig()
	sessionCfg.Model = cfg.Model
	sessionCfg.Provider = cfg.Provider
	sessionCfg.MaxToolRounds = cfg.MaxToolRounds
	sessionCfg.Streaming = cfg.Streaming
	if cfg.CommandTimeoutSecs > 0 {
		sessionCfg.CommandTimeout = time.Duration(cfg.CommandTimeoutSecs) * time.Second
	}

	session := agent.NewSession(ws, approver, &sessionCfg)
	session.SetClient(llm.NewClientFromEnv())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for event := range session.Events() {
			printer.handle(event)
			logEvent(event)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"session_id": session.ID(),
		"model":      cfg.Model,
		"workdir":    ws.WorkingDirectory(),
	}).Info("session started")

	if *prompt != "" {
		runOnce(ctx, session, *prompt)
	} else {
		runREPL(ctx, session, stdin, printer)
	}

	session.Close()
	wg.Wait()
	printer.exitSummary()
}

func runOnce(ctx context.Context, session *agent.Session, prompt string) {
	if err := session.SendMessage(ctx, prompt); err != nil {
		fmt.Fprintf(os.Stderr, "terminal-agent: %v\n", err)
	}
}

func runREPL(ctx context.Context, session *agent.Session, stdin *bufio.Reader, printer *eventPrinter) {
	for {
		fmt.Print("> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "terminal-agent: read input: %v\n", err)
			}
			fmt.Println()
			return
		}
		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return
		}

		if err := session.SendMessage(ctx, input); err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "terminal-agent: %v\n", err)
		}
	}
}

// makeApprover builds an interactive y/n confirmation prompt. It shares the
// stdin reader with the REPL; the loop is suspended while it waits.
func makeApprover(stdin *bufio.Reader, out io.Writer) agent.Approver {
	return func(ctx context.Context, toolName string, arguments json.RawMessage) bool {
		fmt.Fprintf(out, "\nAllow %s? %s [y/N] ", toolName, summarizeArguments(toolName, arguments))
		line, err := stdin.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// summarizeArguments renders the interesting argument of a destructive call
// for the confirmation prompt.
func summarizeArguments(toolName string, arguments json.RawMessage) string {
	args, err := agent.ParseToolArguments(arguments)
	if err != nil {
		return ""
	}
	var detail string
	switch toolName {
	case "execute":
		detail, _ = agent.GetStringArg(args, "command")
	case "write", "edit":
		detail, _ = agent.GetStringArg(args, "path")
	}
	if detail == "" {
		return ""
	}
	if len(detail) > 120 {
		detail = detail[:120] + "..."
	}
	return fmt.Sprintf("(%s)", detail)
}

// eventPrinter renders session events for the terminal and accumulates
// token usage for the exit summary.
type eventPrinter struct {
	out       io.Writer
	streaming bool
	usage     llm.Usage
	midStream bool
}

func (p *eventPrinter) handle(event agent.SessionEvent) {
	switch event.Kind {
	case agent.EventAssistantTextDelta:
		fmt.Fprint(p.out, stringField(event, "delta"))
		p.midStream = true

	case agent.EventAssistantText:
		if p.streaming {
			// Deltas already rendered the text; just close the line.
			if p.midStream {
				fmt.Fprintln(p.out)
				p.midStream = false
			}
			return
		}
		if text := stringField(event, "text"); text != "" {
			fmt.Fprintln(p.out, text)
		}

	case agent.EventToolUse:
		fmt.Fprintf(p.out, "[%s] %s\n", stringField(event, "tool_name"), firstLine(stringField(event, "arguments")))

	case agent.EventToolResult:
		if isErrorField(event) {
			fmt.Fprintf(p.out, "  %s\n", firstLine(stringField(event, "content")))
		}

	case agent.EventUsage:
		p.usage = p.usage.Add(llm.Usage{
			InputTokens:  intField(event, "input_tokens"),
			OutputTokens: intField(event, "output_tokens"),
		})

	case agent.EventWarning:
		fmt.Fprintf(p.out, "warning: %s\n", stringField(event, "message"))

	case agent.EventRoundLimit:
		fmt.Fprintln(p.out, "Tool round limit reached; stopping.")
	}
}

func (p *eventPrinter) exitSummary() {
	total := p.usage.InputTokens + p.usage.OutputTokens
	if total > 0 {
		fmt.Fprintf(p.out, "Token usage: total=%d input=%d output=%d\n",
			total, p.usage.InputTokens, p.usage.OutputTokens)
	}
}

func stringField(event agent.SessionEvent, key string) string {
	if s, ok := event.Data[key].(string); ok {
		return s
	}
	return ""
}

func intField(event agent.SessionEvent, key string) int {
	switch n := event.Data[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func isErrorField(event agent.SessionEvent) bool {
	b, _ := event.Data["is_error"].(bool)
	return b
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 160 {
		s = s[:160] + "..."
	}
	return s
}

// setupLogging routes logrus to a file so log lines do not interleave with
// the conversation on stdout.
func setupLogging(path string, verbose bool) io.Closer {
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if path == "" {
		path = defaultLogPath()
	}
	if path == "" {
		log.SetOutput(io.Discard)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.SetOutput(io.Discard)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(f)
	return f
}

func logEvent(event agent.SessionEvent) {
	switch event.Kind {
	case agent.EventAssistantTextDelta:
		return // too chatty for the log file
	case agent.EventError:
		log.WithField("session_id", event.SessionID).Error(stringField(event, "error"))
	case agent.EventToolUse:
		log.WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"tool":       stringField(event, "tool_name"),
			"call_id":    stringField(event, "call_id"),
		}).Debug("tool call")
	default:
		log.WithFields(logrus.Fields{
			"session_id": event.SessionID,
			"kind":       event.Kind,
		}).Debug("event")
	}
}

func resolveWorkdir(input string) string {
	if strings.TrimSpace(input) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		return wd
	}
	if filepath.IsAbs(input) {
		return input
	}
	wd, err := os.Getwd()
	if err != nil {
		return input
	}
	return filepath.Join(wd, input)
}
