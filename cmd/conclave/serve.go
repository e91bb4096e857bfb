package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/valerka1292/conclave/internal/artifact"
	"github.com/valerka1292/conclave/internal/config"
	"github.com/valerka1292/conclave/internal/history"
	"github.com/valerka1292/conclave/internal/observability"
	"github.com/valerka1292/conclave/internal/oracle"
	"github.com/valerka1292/conclave/internal/orchestrator"
	"github.com/valerka1292/conclave/internal/process"
	"github.com/valerka1292/conclave/internal/transport"
)

// runServe wires the full serving path: config → logger/tracer/metrics →
// history store → oracle → tool backends → session factory → streaming
// HTTP transport, then blocks until SIGINT/SIGTERM.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	tracer, shutdownTracer, err := observability.NewTracer(ctx, observability.TraceConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.OTLPEndpoint,
		Insecure:    cfg.Tracing.OTLPInsecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()

	store, err := history.Open(cfg.History.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	baseOracle, model, err := buildOracle(cfg.Oracle)
	if err != nil {
		return err
	}
	orc := oracle.Instrument(baseOracle, cfg.Oracle.Provider, model, metrics, tracer)

	backends := instrumentBackends(orchestrator.Backends{
		Artifacts: artifact.New(),
		Processes: process.New(logger),
	}, metrics)

	factory := sessionFactory(cfg, orc, backends, logger)
	server := transport.NewServer(factory, store, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", server.Routes())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           metrics.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// buildOracle constructs the configured reasoning-oracle adapter and
// reports the model name for instrumentation labels.
func buildOracle(cfg config.OracleConfig) (orchestrator.Oracle, string, error) {
	switch cfg.Provider {
	case "anthropic":
		o, err := oracle.NewAnthropicOracle(oracle.AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxTokens:    int64(cfg.MaxTokens),
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})
		if err != nil {
			return nil, "", err
		}
		model := cfg.Model
		if model == "" {
			model = "claude-sonnet-4-20250514"
		}
		return o, model, nil
	case "openai":
		o, err := oracle.NewOpenAIOracle(oracle.OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})
		if err != nil {
			return nil, "", err
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o"
		}
		return o, model, nil
	case "gemini":
		o, err := oracle.NewGeminiOracle(oracle.GeminiConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.Model,
			MaxTokens:    int32(cfg.MaxTokens),
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})
		if err != nil {
			return nil, "", err
		}
		model := cfg.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		return o, model, nil
	default:
		return nil, "", fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}

// sessionFactory builds a single-use orchestrator Session per request,
// applying per-agent temperature overrides from the caller.
func sessionFactory(cfg *config.Config, orc orchestrator.Oracle, backends orchestrator.Backends, logger *slog.Logger) transport.SessionFactory {
	return func(conversationID string, temperatures map[string]float64) *orchestrator.Session {
		leader := agentSpec(cfg.Agents.Leader, temperatures, orc)
		leader.ToolCatalog = orchestrator.LeaderCatalog()

		collaborators := make([]orchestrator.AgentSpec, 0, len(cfg.Agents.Collaborators))
		for _, c := range cfg.Agents.Collaborators {
			spec := agentSpec(c, temperatures, orc)
			spec.ToolCatalog = orchestrator.CollaboratorCatalog()
			collaborators = append(collaborators, spec)
		}

		return orchestrator.NewSession(orchestrator.Config{
			Leader:                   leader,
			Collaborators:            collaborators,
			Backends:                 backends,
			ConversationID:           conversationID,
			SessionBudget:            cfg.Orchestrator.SessionBudget,
			MaxAgentToolCallsPerStep: cfg.Orchestrator.MaxAgentToolCallsPerStep,
			RecursionDepthLimit:      cfg.Orchestrator.RecursionDepthLimit,
			Logger:                   logger,
		})
	}
}

func agentSpec(a config.AgentConfig, temperatures map[string]float64, orc orchestrator.Oracle) orchestrator.AgentSpec {
	temp := a.Temperature
	if override, ok := temperatures[a.Name]; ok {
		temp = override
	}
	return orchestrator.AgentSpec{
		Name:         a.Name,
		SystemPrompt: a.SystemPrompt,
		Temperature:  temp,
		Oracle:       orc,
	}
}

// runHealth probes a running server's /healthz endpoint.
func runHealth(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/healthz", nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d: %s", resp.StatusCode, body)
	}
	fmt.Printf("%s\n", body)
	return nil
}
