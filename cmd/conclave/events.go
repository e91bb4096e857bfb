package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/valerka1292/conclave/internal/actor"
	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/internal/artifact"
	"github.com/valerka1292/conclave/internal/bus"
	"github.com/valerka1292/conclave/internal/config"
	"github.com/valerka1292/conclave/internal/kernel"
	"github.com/valerka1292/conclave/internal/observability"
	"github.com/valerka1292/conclave/internal/oracle"
	"github.com/valerka1292/conclave/internal/process"
	"github.com/valerka1292/conclave/internal/tools"
)

// runEventsTail prints the trailing n envelopes of the persisted event log
// as JSON lines.
func runEventsTail(configPath string, n int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	events, err := kernel.ReadAll(cfg.Kernel.EventLogPath)
	if err != nil {
		return err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	}
	return nil
}

// runEventsReplay rebuilds the actor table from the event log's structural
// events (spawn_agent system-calls) through a fresh kernel, then prints the
// restored table. Reasoning history is not replayed.
func runEventsReplay(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	metrics := observability.NewMetrics()

	b := bus.New(logger)
	b.SubscribeGlobal(metrics.BusObserver())

	registry, err := tools.NewDefaultRegistry()
	if err != nil {
		return err
	}
	artifacts := artifact.New()
	executor := &tools.Executor{
		Registry:  registry,
		Artifacts: artifacts,
		Processes: process.New(logger),
	}

	// The oracle is only consulted once a restored agent thinks again;
	// replay itself never calls it, so a missing API key downgrades to a
	// structural-only restore rather than failing the command.
	orc, model, err := buildOracle(cfg.Oracle)
	if err != nil {
		logger.Warn("reasoning oracle unavailable, restoring structure only", "error", err)
		orc = nil
	} else {
		orc = oracle.Instrument(orc, cfg.Oracle.Provider, model, metrics, nil)
	}

	factory := kernel.AgentFactoryFunc(func(spawn kernel.SpawnConfig) (actor.WorkHandler, error) {
		return agentcore.New(agentcore.Config{
			Name:         spawn.Name,
			SystemPrompt: spawn.SystemPrompt,
			Temperature:  spawn.Temperature,
			Supervisor:   cfg.Agents.Leader.Name,
			Oracle:       orc,
			Artifacts:    artifacts,
			Tools:        executor,
			Bus:          b,
			Logger:       logger,
			ToolCatalog:  registry.RestrictedCatalog(),
		}), nil
	})

	k := kernel.New(kernel.Config{
		Bus:        b,
		Logger:     logger,
		Factory:    factory,
		LeaderName: cfg.Agents.Leader.Name,
	})

	if err := k.ReplayStructural(ctx, cfg.Kernel.EventLogPath); err != nil {
		return err
	}

	names := k.ActorNames()
	fmt.Printf("restored %d agent(s)\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}
