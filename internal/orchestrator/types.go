// Package orchestrator drives a single leader-led collaboration session in
// front of a fixed set of collaborator agents: delegation via
// chatroom_send, targeted-wait-free event-driven mailbox scheduling,
// parallel collaborator execution, recursion/tool-call budgets, forced
// finalization, and a linearized streaming event sequence for the caller.
//
// The orchestrator is deliberately self-contained: unlike internal/agentcore
// and internal/kernel (which model a general actor/bus substrate), the
// orchestrator drives its agents directly against the reasoning oracle and
// keeps its own per-agent mailboxes for scheduling.
package orchestrator

import (
	"context"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// Oracle is the reasoning backend contract the orchestrator drives the
// leader and collaborators against. It is identical to
// agentcore.Oracle so a single internal/oracle adapter serves both the
// actor-driven Agent and the orchestrator's own leader-centric loop.
type Oracle = agentcore.Oracle

// Orchestrator-level tool names. These are distinct from
// agentcore's system-privileged tools (spawn/kill/list/allocate): the
// orchestrator never touches the kernel or the bus.
const (
	ToolChatroomSend         = "chatroom_send"
	ToolWait                 = "wait"
	ToolSetConversationTitle = "set_conversation_title"
	ToolWebSearch            = "web_search"
	ToolPythonRun            = "python_run"
	ToolArtifactRead         = "artifact_read"
	ToolProcessStart         = "process_start"
	ToolProcessRead          = "process_read"
	ToolProcessStop          = "process_stop"
)

// recipientAll is the chatroom_send recipient that expands to every agent
// other than the caller.
const recipientAll = "All"

// maxTitleLength bounds set_conversation_title's argument.
const maxTitleLength = 120

// defaultSessionBudget bounds the number of leader/collaborator steps a
// session may take before it is forced to a session-budget error.
const defaultSessionBudget = 200

// defaultMaxAgentToolCallsPerStep is the per-awakening round budget for
// a collaborator.
const defaultMaxAgentToolCallsPerStep = 6

// defaultRecursionDepthLimit bounds the older targeted-wait forced-finalization
// path that this event-driven implementation still honors for
// a collaborator that keeps failing to produce a deliverable.
const defaultRecursionDepthLimit = 3

// WebSearch is the out-of-scope external web-search backend.
type WebSearch interface {
	Search(ctx context.Context, query string) (string, error)
}

// PythonRunner is the out-of-scope sandboxed code-execution backend.
type PythonRunner interface {
	Run(ctx context.Context, code string) (string, error)
}

// ArtifactReader is the subset of internal/artifact.Store the orchestrator
// needs for the artifact_read tool.
type ArtifactReader interface {
	Get(ctx context.Context, id string, start, length int) (string, error)
}

// ProcessBackend is the subset of internal/process.Registry the orchestrator
// needs for the process_start/read/stop tools.
type ProcessBackend interface {
	Start(command string) (pid int, err error)
	Read(pid int, n int) ([]string, error)
	Stop(pid int) error
}

// Backends bundles every external tool backend the orchestrator's tool
// handling may delegate to. A nil field makes its tool return an
// error-tagged "backend not configured" result when invoked rather than
// panicking.
type Backends struct {
	WebSearch WebSearch
	Python    PythonRunner
	Artifacts ArtifactReader
	Processes ProcessBackend
}

// AgentSpec configures one agent (the leader or a collaborator) the
// orchestrator drives.
type AgentSpec struct {
	Name         string
	SystemPrompt string
	Temperature  float64
	Oracle       Oracle
	ToolCatalog  []models.FunctionTool
}

// agentState tracks one driven agent's reasoning history. It is owned
// exclusively by the goroutine that steps it — the leader state by the
// Session's main loop, a collaborator's state by its own cooperative task —
// so history only ever grows in the owning task.
type agentState struct {
	spec    AgentSpec
	history []models.HistoryRecord
}

func newAgentState(spec AgentSpec) *agentState {
	return &agentState{spec: spec}
}

func (s *agentState) appendSystem(content string) {
	s.history = append(s.history, models.HistoryRecord{Role: models.RoleSystem, Content: content})
}

// step runs one oracle call against the agent's accumulated history and
// records the assistant response exactly as returned.
func (s *agentState) step(ctx context.Context, ephemeral string) (agentcore.Response, error) {
	resp, err := s.spec.Oracle.Complete(ctx, agentcore.Request{
		SystemPrompt:     s.spec.SystemPrompt,
		History:          s.history,
		EphemeralContext: ephemeral,
		Temperature:      s.spec.Temperature,
		Tools:            s.spec.ToolCatalog,
	})
	if err != nil {
		return agentcore.Response{}, err
	}
	s.history = append(s.history, models.HistoryRecord{
		Role:      models.RoleAssistant,
		Content:   resp.Text,
		ToolCalls: resp.ToolCalls,
	})
	return resp, nil
}

// mailboxEntry is one pending message for an agent's orchestrator-level
// mailbox.
type mailboxEntry struct {
	from    string
	content string
}
