// Package config loads the process-wide Config for the kernel binary
// (cmd/conclave): agent roster, budgets, event-log paths, the
// reasoning-oracle backend selection, and logging/tracing knobs. Config is
// YAML with environment-variable expansion; unknown fields are rejected.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the collaboration kernel.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	History      HistoryConfig      `yaml:"history"`
	Kernel       KernelConfig       `yaml:"kernel"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Oracle       OracleConfig       `yaml:"oracle"`
	Agents       AgentsConfig       `yaml:"agents"`
}

// ServerConfig configures the streaming HTTP transport.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures the process logger (observability.NewLogger).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures the OpenTelemetry tracer/exporter
// (observability.NewTracer).
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPInsecure bool    `yaml:"otlp_insecure"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// HistoryConfig configures the sqlite-backed conversation store
// (internal/history).
type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

// KernelConfig holds the kernel knobs. EventLogPath is read by the events
// commands. LoopDetectorHistory and LoopDetectorThreshold are loaded and
// defaulted but not read by any component: the kernel's loop detector uses
// its fixed window of 10 and threshold of 3.
type KernelConfig struct {
	EventLogPath          string `yaml:"event_log_path"`
	LoopDetectorHistory   int    `yaml:"loop_detector_history"`   // sliding-window size, default 10
	LoopDetectorThreshold int    `yaml:"loop_detector_threshold"` // default 3
}

// OrchestratorConfig configures the session-level budgets.
type OrchestratorConfig struct {
	SessionBudget            int `yaml:"session_budget"`
	MaxAgentToolCallsPerStep int `yaml:"max_agent_tool_calls_per_step"`
	RecursionDepthLimit      int `yaml:"recursion_depth_limit"`
}

// OracleConfig selects and configures one of the concrete reasoning
// oracle adapters.
type OracleConfig struct {
	// Provider selects the backend: "anthropic", "openai", or "gemini".
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AgentsConfig is the static roster: one leader and any number of
// collaborators.
type AgentsConfig struct {
	Leader        AgentConfig   `yaml:"leader"`
	Collaborators []AgentConfig `yaml:"collaborators"`
}

// AgentConfig describes one agent's identity and reasoning parameters.
type AgentConfig struct {
	Name         string  `yaml:"name"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float64 `yaml:"temperature"`
	Budget       int     `yaml:"budget"`
}

// Load reads, expands, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: %s: expected a single YAML document", path)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "conclave"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1.0
	}
	if cfg.History.DSN == "" {
		cfg.History.DSN = "file:conclave-history.db"
	}
	if cfg.Kernel.EventLogPath == "" {
		cfg.Kernel.EventLogPath = "conclave-events.jsonl"
	}
	if cfg.Kernel.LoopDetectorHistory == 0 {
		cfg.Kernel.LoopDetectorHistory = 10
	}
	if cfg.Kernel.LoopDetectorThreshold == 0 {
		cfg.Kernel.LoopDetectorThreshold = 3
	}
	if cfg.Orchestrator.SessionBudget == 0 {
		cfg.Orchestrator.SessionBudget = 200
	}
	if cfg.Orchestrator.MaxAgentToolCallsPerStep == 0 {
		cfg.Orchestrator.MaxAgentToolCallsPerStep = 6
	}
	if cfg.Orchestrator.RecursionDepthLimit == 0 {
		cfg.Orchestrator.RecursionDepthLimit = 3
	}
	if cfg.Oracle.Provider == "" {
		cfg.Oracle.Provider = "anthropic"
	}
	if cfg.Oracle.MaxRetries == 0 {
		cfg.Oracle.MaxRetries = 3
	}
	if cfg.Oracle.RetryDelay == 0 {
		cfg.Oracle.RetryDelay = 500 * time.Millisecond
	}
	for i := range cfg.Agents.Collaborators {
		if cfg.Agents.Collaborators[i].Budget == 0 {
			cfg.Agents.Collaborators[i].Budget = 20
		}
	}
	if cfg.Agents.Leader.Budget == 0 {
		cfg.Agents.Leader.Budget = 20
	}
}

func validate(cfg *Config) error {
	switch cfg.Oracle.Provider {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("config: oracle.provider must be %q, %q, or %q, got %q", "anthropic", "openai", "gemini", cfg.Oracle.Provider)
	}
	if strings.TrimSpace(cfg.Agents.Leader.Name) == "" {
		return fmt.Errorf("config: agents.leader.name is required")
	}
	seen := map[string]bool{cfg.Agents.Leader.Name: true}
	for _, c := range cfg.Agents.Collaborators {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("config: agents.collaborators entries require a name")
		}
		if seen[c.Name] {
			return fmt.Errorf("config: duplicate agent name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
