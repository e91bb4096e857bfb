// Package kernel implements the actor table, supervision, system-call
// dispatch, loop detection, and event log wiring.
// It owns the bus but knows nothing about how an Agent thinks; spawning is
// delegated to an AgentFactory supplied by the caller (internal/agentcore)
// so this package has no dependency on reasoning or tool-dispatch code.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/valerka1292/conclave/internal/actor"
	"github.com/valerka1292/conclave/internal/bus"
	"github.com/valerka1292/conclave/internal/kernelerr"
	"github.com/valerka1292/conclave/pkg/models"
)

// SpawnConfig is the subset of spawn_agent arguments the kernel parses out
// of a system-call before handing the rest to the AgentFactory.
type SpawnConfig struct {
	Name         string  `json:"name"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	Budget       int     `json:"budget"`
}

// AgentFactory builds the WorkHandler for a newly spawned actor. The
// kernel itself constructs and registers the surrounding actor.Actor;
// the factory only supplies the domain behavior.
type AgentFactory interface {
	NewAgentHandler(cfg SpawnConfig) (actor.WorkHandler, error)
}

// AgentFactoryFunc adapts a function to AgentFactory.
type AgentFactoryFunc func(cfg SpawnConfig) (actor.WorkHandler, error)

func (f AgentFactoryFunc) NewAgentHandler(cfg SpawnConfig) (actor.WorkHandler, error) {
	return f(cfg)
}

type actorEntry struct {
	actor  *actor.Actor
	cancel context.CancelFunc
}

// Kernel owns the actor table and the kernel-level bus subscriptions:
// system-call dispatch, loop detection, the zombie reaper, and the global
// event logger.
type Kernel struct {
	bus          *bus.Bus
	logger       *slog.Logger
	eventLog     *EventLogger
	loopDetector *LoopDetector
	factory      AgentFactory
	leaderName   string // supervisor that crash/exhaustion events route to

	mu     sync.Mutex
	actors map[string]*actorEntry
}

// Config configures a new Kernel.
type Config struct {
	Bus        *bus.Bus
	Logger     *slog.Logger
	EventLog   *EventLogger
	Factory    AgentFactory
	LeaderName string
}

// New constructs a Kernel and wires its bus subscriptions. It does not
// start any actors.
func New(cfg Config) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	k := &Kernel{
		bus:          cfg.Bus,
		logger:       logger.With("component", "kernel"),
		eventLog:     cfg.EventLog,
		loopDetector: NewLoopDetector(),
		factory:      cfg.Factory,
		leaderName:   cfg.LeaderName,
		actors:       make(map[string]*actorEntry),
	}
	k.bus.Subscribe(models.MsgSystemCall, k.handleSystemCall)
	k.bus.Subscribe(models.MsgToolUse, k.handleToolUse)
	if k.eventLog != nil {
		k.bus.SubscribeGlobal(k.logEvent)
	}
	return k
}

func (k *Kernel) logEvent(msg models.Message) {
	if err := k.eventLog.Append(msg); err != nil {
		k.logger.Error("failed to append event log", "error", err)
	}
}

// handleToolUse feeds every tool-use message through the loop detector and
// interrupts the offending actor on a detected repeat.
func (k *Kernel) handleToolUse(msg models.Message) {
	fired, reason := k.loopDetector.Observe(msg.From, msg.ToolName, msg.ToolArgs)
	if !fired {
		return
	}
	k.logger.Warn("loop detected", "actor", msg.From, "tool", msg.ToolName)
	k.bus.Publish(models.Message{
		Type:    models.MsgInterrupt,
		From:    "kernel",
		Target:  msg.From,
		Content: reason,
	})
}

// RegisterActor adds an already-constructed actor to the table, starts its
// run loop under supervision, and registers it with the bus so other
// actors can address it by name. cancel is invoked by KillActor/Stop.
func (k *Kernel) RegisterActor(ctx context.Context, a *actor.Actor, cancel context.CancelFunc) error {
	if err := k.bus.Register(a.Name, a); err != nil {
		return err
	}
	k.mu.Lock()
	k.actors[a.Name] = &actorEntry{actor: a, cancel: cancel}
	k.mu.Unlock()

	go k.superviseRun(ctx, a)
	return nil
}

// superviseRun runs a's loop, recovering any panic so it becomes an
// actor-crashed event rather than taking down the kernel goroutine.
func (k *Kernel) superviseRun(ctx context.Context, a *actor.Actor) {
	defer func() {
		if r := recover(); r != nil {
			k.reportCrash(a.Name, fmt.Sprintf("panic: %v", r))
		}
		k.mu.Lock()
		delete(k.actors, a.Name)
		k.mu.Unlock()
		k.bus.Unregister(a.Name)
		k.loopDetector.Reset(a.Name)
	}()
	a.Run(ctx)
}

func (k *Kernel) reportCrash(name, reason string) {
	k.logger.Error("actor crashed", "actor", name, "reason", reason)
	k.bus.Publish(models.Message{
		Type:    models.MsgActorCrashed,
		From:    name,
		Target:  k.leaderName,
		Content: reason,
	})
}

// handleSystemCall dispatches one system-call message and
// always answers with exactly one system-call-result targeted at the
// sender, carrying the original tool-call id.
func (k *Kernel) handleSystemCall(msg models.Message) {
	ctx := context.Background()
	content, callErr := k.dispatchSystemCall(ctx, msg)

	result := models.Message{
		Type:          models.MsgSystemCallResult,
		From:          "kernel",
		Target:        msg.From,
		CorrelationID: msg.CorrelationID,
		ToolCallID:    msg.ToolCallID,
		Content:       content,
	}
	if callErr != nil {
		result.Error = callErr.Error()
	}
	k.bus.Publish(result)
}

func (k *Kernel) dispatchSystemCall(ctx context.Context, msg models.Message) (string, error) {
	switch msg.Command {
	case "spawn_agent":
		return k.spawnAgent(ctx, msg.ToolArgs)
	case "kill_agent":
		return k.killAgent(msg.ToolArgs)
	case "list_agents":
		return k.listAgents()
	case "allocate_budget":
		return k.allocateBudget(msg.ToolArgs)
	default:
		return "", kernelerr.New(kernelerr.SchemaError, fmt.Sprintf("unknown system call command %q", msg.Command))
	}
}

func (k *Kernel) spawnAgent(ctx context.Context, args json.RawMessage) (string, error) {
	if k.factory == nil {
		return "", kernelerr.New(kernelerr.Fatal, "kernel has no agent factory configured")
	}
	var cfg SpawnConfig
	if err := json.Unmarshal(args, &cfg); err != nil {
		return "", kernelerr.Wrap(kernelerr.SchemaError, "invalid spawn_agent arguments", err)
	}
	if cfg.Name == "" {
		return "", kernelerr.New(kernelerr.SchemaError, "spawn_agent requires a name")
	}

	k.mu.Lock()
	_, exists := k.actors[cfg.Name]
	k.mu.Unlock()
	if exists {
		return "", kernelerr.New(kernelerr.UnknownTargetError, fmt.Sprintf("actor %q already exists", cfg.Name))
	}

	handler, err := k.factory.NewAgentHandler(cfg)
	if err != nil {
		return "", kernelerr.Wrap(kernelerr.Fatal, "agent factory failed", err)
	}

	a := actor.New(actor.Config{
		Name:       cfg.Name,
		Supervisor: k.leaderName,
		Bus:        k.bus,
		Handler:    handler,
		Budget:     cfg.Budget,
		Logger:     k.logger,
	})
	if bound, ok := handler.(actor.BudgetBound); ok {
		bound.BindBudget(a)
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := k.RegisterActor(runCtx, a, cancel); err != nil {
		cancel()
		return "", kernelerr.Wrap(kernelerr.Fatal, "failed to register spawned actor", err)
	}

	k.bus.Publish(models.Message{Type: models.MsgAgentSpawned, From: "kernel", Content: cfg.Name})
	return fmt.Sprintf("spawned %q", cfg.Name), nil
}

func (k *Kernel) killAgent(args json.RawMessage) (string, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", kernelerr.Wrap(kernelerr.SchemaError, "invalid kill_agent arguments", err)
	}

	k.mu.Lock()
	entry, ok := k.actors[req.Name]
	k.mu.Unlock()
	if !ok {
		return "", kernelerr.New(kernelerr.UnknownTargetError, fmt.Sprintf("no such actor %q", req.Name))
	}
	entry.cancel()

	k.bus.Publish(models.Message{Type: models.MsgAgentStopped, From: "kernel", Content: req.Name})
	return fmt.Sprintf("killed %q", req.Name), nil
}

// ActorNames returns the names currently in the actor table, sorted.
func (k *Kernel) ActorNames() []string {
	k.mu.Lock()
	names := make([]string, 0, len(k.actors))
	for name := range k.actors {
		names = append(names, name)
	}
	k.mu.Unlock()
	sort.Strings(names)
	return names
}

func (k *Kernel) listAgents() (string, error) {
	k.mu.Lock()
	names := make([]string, 0, len(k.actors))
	for name := range k.actors {
		names = append(names, name)
	}
	k.mu.Unlock()

	b, err := json.Marshal(names)
	if err != nil {
		return "", kernelerr.Wrap(kernelerr.Fatal, "failed to marshal agent list", err)
	}
	return string(b), nil
}

func (k *Kernel) allocateBudget(args json.RawMessage) (string, error) {
	var req struct {
		Name   string `json:"name"`
		Amount int    `json:"amount"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", kernelerr.Wrap(kernelerr.SchemaError, "invalid allocate_budget arguments", err)
	}

	k.mu.Lock()
	entry, ok := k.actors[req.Name]
	k.mu.Unlock()
	if !ok {
		return "", kernelerr.New(kernelerr.UnknownTargetError, fmt.Sprintf("no such actor %q", req.Name))
	}
	entry.actor.Deliver(models.Message{Type: models.MsgBudgetUpdate, From: "kernel", Target: req.Name, Amount: req.Amount})
	return fmt.Sprintf("allocated %d to %q", req.Amount, req.Name), nil
}

// ReplayStructural replays exactly the structural events from the event
// log at path that re-create the actor table (spawn_agent system-calls),
// re-running them through the normal spawn path. Reasoning history is
// explicitly not replayed.
func (k *Kernel) ReplayStructural(ctx context.Context, path string) error {
	events, err := ReadAll(path)
	if err != nil {
		return fmt.Errorf("kernel: replay: %w", err)
	}
	for _, msg := range events {
		if msg.Type != models.MsgSystemCall || msg.Command != "spawn_agent" {
			continue
		}
		if _, err := k.spawnAgent(ctx, msg.ToolArgs); err != nil {
			k.logger.Error("structural replay: spawn failed", "error", err)
		}
	}
	return nil
}
