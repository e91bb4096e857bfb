package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/valerka1292/conclave/internal/actor"
	"github.com/valerka1292/conclave/pkg/models"
)

// Agent implements actor.WorkHandler: the generic think/act/observe loop.
// The surrounding actor.Actor still gates message dispatch on a positive
// budget, but consumption happens here: one credit per reasoning-oracle
// call, drawn from the bound BudgetAccount, so a single inbound message
// whose loop calls the oracle several times is charged for each call.
// Compaction summarization is not metered.
type Agent struct {
	Name         string
	SystemPrompt string
	Temperature  float64
	KernelTarget string // bus target name the kernel listens on for system-call
	Supervisor   string // actor name budget-exhausted notices route to

	oracle    Oracle
	artifacts ArtifactStore
	tools     ToolExecutor
	bus       Publisher
	budget    actor.BudgetAccount
	logger    *slog.Logger
	toolCat   []models.FunctionTool

	mu              sync.Mutex
	history         []models.HistoryRecord
	activeSender    string
	activeCorrelationID string
}

// Config configures a new Agent.
type Config struct {
	Name         string
	SystemPrompt string
	Temperature  float64
	KernelTarget string
	Supervisor   string
	Oracle       Oracle
	Artifacts    ArtifactStore
	Tools        ToolExecutor
	Bus          Publisher
	Budget       actor.BudgetAccount // nil means unmetered
	Logger       *slog.Logger
	ToolCatalog  []models.FunctionTool
}

// New constructs an Agent. KernelTarget defaults to "kernel".
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kernelTarget := cfg.KernelTarget
	if kernelTarget == "" {
		kernelTarget = "kernel"
	}
	return &Agent{
		Name:         cfg.Name,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		KernelTarget: kernelTarget,
		Supervisor:   cfg.Supervisor,
		oracle:       cfg.Oracle,
		artifacts:    cfg.Artifacts,
		tools:        cfg.Tools,
		bus:          cfg.Bus,
		budget:       cfg.Budget,
		logger:       logger.With("agent", cfg.Name),
		toolCat:      cfg.ToolCatalog,
	}
}

// BindBudget implements actor.BudgetBound: the kernel binds the spawned
// actor's budget counter here so every oracle call below draws on it.
func (a *Agent) BindBudget(b actor.BudgetAccount) {
	a.mu.Lock()
	a.budget = b
	a.mu.Unlock()
}

// History returns a snapshot of the agent's current reasoning history.
func (a *Agent) History() []models.HistoryRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.HistoryRecord(nil), a.history...)
}

// HandleWork implements actor.WorkHandler.
func (a *Agent) HandleWork(ctx context.Context, msg models.Message) error {
	switch msg.Type {
	case models.MsgWorkSubmitted:
		a.mu.Lock()
		a.activeSender = msg.From
		a.activeCorrelationID = msg.CorrelationID
		a.mu.Unlock()
		a.appendHistory(models.HistoryRecord{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("[Message from %s]: %s", msg.From, msg.Content),
		})
	case models.MsgWorkCompleted:
		a.appendHistory(models.HistoryRecord{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("[Result from %s]: %s", msg.From, msg.Content),
		})
	case models.MsgSystemCallResult:
		content := msg.Content
		if msg.Error != "" {
			content = "error: " + msg.Error
		}
		a.appendHistory(models.HistoryRecord{
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: msg.ToolCallID,
		})
	default:
		return nil
	}
	return a.think(ctx)
}

// think runs the think/act/observe loop until a stopping condition:
// no tool calls were produced, a message-send / system-privileged tool
// call was issued (those require an external reply to resume), or the
// budget ran dry. One credit is consumed per oracle call, so a loop that
// keeps using self-contained tools pays for every round.
func (a *Agent) think(ctx context.Context) error {
	for {
		if !a.tryConsumeBudget() {
			a.reportBudgetExhausted()
			return nil
		}

		a.maybeCompact(ctx)

		resp, err := a.oracle.Complete(ctx, Request{
			SystemPrompt: a.SystemPrompt,
			History:      a.History(),
			Temperature:  a.Temperature,
			Tools:        a.toolCat,
		})
		if err != nil {
			a.reportOracleError(err)
			return err
		}

		a.appendHistory(models.HistoryRecord{
			Role:      models.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		if resp.Text != "" {
			a.emitWorkCompleted(resp.Text)
		}

		if len(resp.ToolCalls) == 0 {
			return nil
		}

		stop := a.dispatchToolCalls(ctx, resp.ToolCalls)
		if stop {
			return nil
		}
	}
}

func (a *Agent) emitWorkCompleted(text string) {
	a.mu.Lock()
	sender, corr := a.activeSender, a.activeCorrelationID
	a.mu.Unlock()
	if sender == "" || a.bus == nil {
		return
	}
	a.bus.Publish(models.Message{
		Type:          models.MsgWorkCompleted,
		From:          a.Name,
		Target:        sender,
		CorrelationID: corr,
		Content:       text,
	})
}

// dispatchToolCalls executes every tool call from one assistant turn and
// reports whether the think loop must stop (await an external reply)
// rather than immediately call the oracle again.
func (a *Agent) dispatchToolCalls(ctx context.Context, calls []models.ToolCallDescriptor) (stop bool) {
	for _, call := range calls {
		if a.bus != nil {
			a.bus.Publish(models.Message{
				Type:     models.MsgToolUse,
				From:     a.Name,
				ToolName: call.Name,
				ToolArgs: call.Args,
			})
		}

		switch {
		case call.Name == ToolSendMessage:
			a.dispatchSendMessage(call)
			stop = true
		case systemPrivilegedTools[call.Name]:
			a.dispatchSystemCall(call)
			stop = true
		default:
			a.dispatchSelfContained(ctx, call)
		}
	}
	return stop
}

type sendMessageArgs struct {
	Recipients []string `json:"recipients"`
	Text       string   `json:"text"`
}

// dispatchSendMessage implements the message-send tool:
// publish a work-submitted message per recipient and append an
// acknowledging tool record, then stop the loop.
func (a *Agent) dispatchSendMessage(call models.ToolCallDescriptor) {
	var args sendMessageArgs
	if err := json.Unmarshal(call.Args, &args); err != nil || len(args.Recipients) == 0 {
		a.appendHistory(models.HistoryRecord{
			Role:       models.RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    "error: invalid send_message arguments",
		})
		return
	}

	a.mu.Lock()
	corr := a.activeCorrelationID
	a.mu.Unlock()

	for _, recipient := range args.Recipients {
		if a.bus != nil {
			a.bus.Publish(models.Message{
				Type:          models.MsgWorkSubmitted,
				From:          a.Name,
				Target:        recipient,
				CorrelationID: corr,
				Content:       args.Text,
			})
		}
	}
	a.appendHistory(models.HistoryRecord{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    fmt.Sprintf("sent to %v", args.Recipients),
	})
}

// dispatchSystemCall implements system-privileged tools:
// publish a system-call to the kernel bound to this tool-call id and stop;
// the matching system-call-result resumes the loop via HandleWork, so no
// tool record is appended here.
func (a *Agent) dispatchSystemCall(call models.ToolCallDescriptor) {
	if a.bus == nil {
		return
	}
	a.mu.Lock()
	corr := a.activeCorrelationID
	a.mu.Unlock()
	a.bus.Publish(models.Message{
		Type:          models.MsgSystemCall,
		From:          a.Name,
		Target:        a.KernelTarget,
		CorrelationID: corr,
		Command:       call.Name,
		ToolArgs:      call.Args,
		ToolCallID:    call.ID,
	})
}

// dispatchSelfContained executes a self-contained tool to completion and
// appends its result, archiving it first if it's large.
func (a *Agent) dispatchSelfContained(ctx context.Context, call models.ToolCallDescriptor) {
	if a.tools == nil {
		a.appendHistory(models.HistoryRecord{
			Role:       models.RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    "error: no tool backend configured",
		})
		return
	}

	result, isError := a.tools.Execute(ctx, call)
	content := result
	if !isError && len(result) > archivalThreshold && a.artifacts != nil {
		id, err := a.artifacts.Put(ctx, result)
		if err != nil {
			a.logger.Error("artifact archival failed", "error", err)
		} else {
			preview := result
			if len(preview) > previewLength {
				preview = preview[:previewLength]
			}
			content = fmt.Sprintf("[artifact %s] %s", id, preview)
			if a.bus != nil {
				a.bus.Publish(models.Message{
					Type:    models.MsgArtifactCreated,
					From:    a.Name,
					Content: id,
					Preview: preview,
				})
			}
		}
	}
	if isError {
		content = "error: " + result
	}
	a.appendHistory(models.HistoryRecord{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    content,
	})
}

func (a *Agent) tryConsumeBudget() bool {
	a.mu.Lock()
	budget := a.budget
	a.mu.Unlock()
	if budget == nil {
		return true
	}
	return budget.TryConsume()
}

// reportBudgetExhausted mirrors the actor-level exhaustion protocol for a
// budget that runs dry mid-loop: notify the supervisor and fail the work
// back to whoever submitted it.
func (a *Agent) reportBudgetExhausted() {
	a.logger.Warn("budget exhausted mid step")
	if a.bus == nil {
		return
	}
	a.mu.Lock()
	sender, corr := a.activeSender, a.activeCorrelationID
	a.mu.Unlock()
	a.bus.Publish(models.Message{
		Type:    models.MsgBudgetExhausted,
		From:    a.Name,
		Target:  a.Supervisor,
		Content: "budget exhausted",
	})
	if sender == "" {
		return
	}
	a.bus.Publish(models.Message{
		Type:          models.MsgWorkFailed,
		From:          a.Name,
		Target:        sender,
		CorrelationID: corr,
		Error:         "BudgetExhausted",
	})
}

func (a *Agent) reportOracleError(err error) {
	a.logger.Error("reasoning oracle call failed", "error", err)
	a.mu.Lock()
	sender, corr := a.activeSender, a.activeCorrelationID
	a.mu.Unlock()
	if sender == "" || a.bus == nil {
		return
	}
	a.bus.Publish(models.Message{
		Type:          models.MsgWorkFailed,
		From:          a.Name,
		Target:        sender,
		CorrelationID: corr,
		Error:         err.Error(),
	})
}

func (a *Agent) appendHistory(rec models.HistoryRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, rec)
}
