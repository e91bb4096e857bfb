package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valerka1292/conclave/pkg/models"
)

// Self-contained tool names the Executor dispatches.
const (
	ToolWebSearch    = "web_search"
	ToolPythonRun    = "python_run"
	ToolArtifactRead = "artifact_read"
	ToolProcessStart = "process_start"
	ToolProcessRead  = "process_read"
	ToolProcessStop  = "process_stop"
)

// WebSearcher is the external web-search backend.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// CodeRunner is the external sandboxed code-execution backend.
type CodeRunner interface {
	Run(ctx context.Context, code string) (string, error)
}

// ArtifactReader reads a slice of an archived artifact.
type ArtifactReader interface {
	Get(ctx context.Context, id string, start, length int) (string, error)
}

// ProcessBackend is the process-registry surface.
type ProcessBackend interface {
	Start(command string) (pid int, err error)
	Read(pid int, n int) ([]string, error)
	Stop(pid int) error
}

// Executor runs self-contained tool calls for kernel-hosted agents: it
// validates arguments against the Registry's schemas, then dispatches to
// the configured backend. It implements agentcore.ToolExecutor. A nil
// backend makes its tools report an error rather than panic.
type Executor struct {
	Registry  *Registry
	WebSearch WebSearcher
	Python    CodeRunner
	Artifacts ArtifactReader
	Processes ProcessBackend
}

// Execute runs one tool call to completion. The bool result marks the
// string as an error message rather than tool output.
func (e *Executor) Execute(ctx context.Context, call models.ToolCallDescriptor) (string, bool) {
	if e.Registry != nil {
		if err := e.Registry.Validate(call.Name, call.Args); err != nil {
			return err.Error(), true
		}
	}

	switch call.Name {
	case ToolWebSearch:
		return e.webSearch(ctx, call.Args)
	case ToolPythonRun:
		return e.pythonRun(ctx, call.Args)
	case ToolArtifactRead:
		return e.artifactRead(ctx, call.Args)
	case ToolProcessStart:
		return e.processStart(call.Args)
	case ToolProcessRead:
		return e.processRead(call.Args)
	case ToolProcessStop:
		return e.processStop(call.Args)
	default:
		return fmt.Sprintf("unknown tool %q", call.Name), true
	}
}

func (e *Executor) webSearch(ctx context.Context, args json.RawMessage) (string, bool) {
	if e.WebSearch == nil {
		return "no web-search backend configured", true
	}
	var a struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("web_search: invalid arguments: %v", err), true
	}
	result, err := e.WebSearch.Search(ctx, a.Query)
	if err != nil {
		return err.Error(), true
	}
	return result, false
}

func (e *Executor) pythonRun(ctx context.Context, args json.RawMessage) (string, bool) {
	if e.Python == nil {
		return "no code-execution backend configured", true
	}
	var a struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("python_run: invalid arguments: %v", err), true
	}
	result, err := e.Python.Run(ctx, a.Code)
	if err != nil {
		return err.Error(), true
	}
	return result, false
}

func (e *Executor) artifactRead(ctx context.Context, args json.RawMessage) (string, bool) {
	if e.Artifacts == nil {
		return "no artifact store configured", true
	}
	var a struct {
		ID     string `json:"id"`
		Start  int    `json:"start"`
		Length int    `json:"length"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("artifact_read: invalid arguments: %v", err), true
	}
	if a.Length == 0 {
		a.Length = 1 << 20
	}
	content, err := e.Artifacts.Get(ctx, a.ID, a.Start, a.Length)
	if err != nil {
		return err.Error(), true
	}
	return content, false
}

func (e *Executor) processStart(args json.RawMessage) (string, bool) {
	if e.Processes == nil {
		return "no process backend configured", true
	}
	var a struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("process_start: invalid arguments: %v", err), true
	}
	pid, err := e.Processes.Start(a.Command)
	if err != nil {
		return err.Error(), true
	}
	return fmt.Sprintf("started pid %d", pid), false
}

func (e *Executor) processRead(args json.RawMessage) (string, bool) {
	if e.Processes == nil {
		return "no process backend configured", true
	}
	var a struct {
		Pid   int `json:"pid"`
		Lines int `json:"lines"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("process_read: invalid arguments: %v", err), true
	}
	if a.Lines <= 0 {
		a.Lines = 100
	}
	lines, err := e.Processes.Read(a.Pid, a.Lines)
	if err != nil {
		return err.Error(), true
	}
	return strings.Join(lines, "\n"), false
}

func (e *Executor) processStop(args json.RawMessage) (string, bool) {
	if e.Processes == nil {
		return "no process backend configured", true
	}
	var a struct {
		Pid int `json:"pid"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Sprintf("process_stop: invalid arguments: %v", err), true
	}
	if err := e.Processes.Stop(a.Pid); err != nil {
		return err.Error(), true
	}
	return fmt.Sprintf("stopped pid %d", a.Pid), false
}
