// Package agentcore implements the Agent work handler: the think, act
// (tool call), observe loop plus memory compaction, large-output archival,
// and tool dispatch. An Agent is an actor.WorkHandler;
// the surrounding actor.Actor supplies the inbox, budget gate, and
// interrupt hook.
package agentcore

import (
	"context"

	"github.com/valerka1292/conclave/pkg/models"
)

// Request is one call to the reasoning oracle.
type Request struct {
	SystemPrompt     string
	History          []models.HistoryRecord
	EphemeralContext string
	Temperature      float64
	Tools            []models.FunctionTool
}

// Response is the oracle's reply: free-form text, tool calls, or both.
// Stored in history exactly as returned.
type Response struct {
	Text      string
	ToolCalls []models.ToolCallDescriptor
}

// Oracle is the reasoning backend contract. Concrete adapters
// (internal/oracle) wrap anthropic-sdk-go / go-openai behind this.
type Oracle interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ArtifactStore is the subset of the artifact-store contract an Agent
// needs: writing large tool output and getting back an opaque id.
type ArtifactStore interface {
	Put(ctx context.Context, content string) (id string, err error)
}

// ToolExecutor runs a self-contained tool call (web-search, code
// execution, artifact read, process start/read/stop) to completion and
// reports its result.
type ToolExecutor interface {
	Execute(ctx context.Context, call models.ToolCallDescriptor) (result string, isError bool)
}

// Publisher is the narrow bus surface an Agent needs.
type Publisher interface {
	Publish(msg models.Message)
}

// Tool name constants recognized specially by the think/act loop; anything
// else is treated as self-contained.
const (
	ToolSendMessage    = "send_message"
	ToolSpawnAgent     = "spawn_agent"
	ToolKillAgent      = "kill_agent"
	ToolListAgents     = "list_agents"
	ToolAllocateBudget = "allocate_budget"
)

var systemPrivilegedTools = map[string]bool{
	ToolSpawnAgent:     true,
	ToolKillAgent:      true,
	ToolListAgents:     true,
	ToolAllocateBudget: true,
}

// archivalThreshold is the large-output cutoff above which a tool result
// is archived instead of kept inline.
const archivalThreshold = 4000

// previewLength bounds the truncated preview kept inline when a tool
// result is archived.
const previewLength = 200

// compactionSoftThreshold is the history length past which a think step
// first compacts memory.
const compactionSoftThreshold = 20

// safeTailMinSize is N: compaction always keeps at least this many of the
// most recent history records, subject to the tool-call-pair invariant.
const safeTailMinSize = 10
