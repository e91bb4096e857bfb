package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
agents:
  leader:
    name: Leader
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, 200, cfg.Orchestrator.SessionBudget)
	assert.Equal(t, 6, cfg.Orchestrator.MaxAgentToolCallsPerStep)
	assert.Equal(t, 10, cfg.Kernel.LoopDetectorHistory)
	assert.Equal(t, 20, cfg.Agents.Leader.Budget)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsMissingLeaderName(t *testing.T) {
	path := writeConfig(t, `
agents:
  leader:
    name: ""
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateAgentNames(t *testing.T) {
	path := writeConfig(t, `
agents:
  leader:
    name: Leader
  collaborators:
    - name: Leader
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "duplicate agent name")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `
oracle:
  provider: bedrock
agents:
  leader:
    name: Leader
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAcceptsEveryKnownProvider(t *testing.T) {
	for _, provider := range []string{"anthropic", "openai", "gemini"} {
		path := writeConfig(t, `
oracle:
  provider: `+provider+`
agents:
  leader:
    name: Leader
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, provider, cfg.Oracle.Provider)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("CONCLAVE_TEST_API_KEY", "sk-test-123")
	path := writeConfig(t, `
oracle:
  api_key: ${CONCLAVE_TEST_API_KEY}
agents:
  leader:
    name: Leader
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", cfg.Oracle.APIKey)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
agents:
  leader:
    name: Leader
not_a_real_field: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}
