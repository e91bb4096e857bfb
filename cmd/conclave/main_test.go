package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/internal/config"
)

func configOracleWithProvider(provider string) config.OracleConfig {
	return config.OracleConfig{Provider: provider, APIKey: "test-key"}
}

func TestRootCmdHasControlSurface(t *testing.T) {
	root := buildRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "health", "conversations", "events"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestConversationsSubcommands(t *testing.T) {
	root := buildRootCmd()
	conv, _, err := root.Find([]string{"conversations", "list"})
	require.NoError(t, err)
	assert.Equal(t, "list", conv.Name())

	tail, _, err := root.Find([]string{"events", "tail"})
	require.NoError(t, err)
	assert.Equal(t, "tail", tail.Name())
}

func TestBuildOracleRejectsUnknownProvider(t *testing.T) {
	_, _, err := buildOracle(configOracleWithProvider("mystery"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown oracle provider")
}

func TestBuildOracleDefaultsModelLabel(t *testing.T) {
	o, model, err := buildOracle(configOracleWithProvider("anthropic"))
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, "claude-sonnet-4-20250514", model)

	o, model, err = buildOracle(configOracleWithProvider("gemini"))
	require.NoError(t, err)
	assert.NotNil(t, o)
	assert.Equal(t, "gemini-2.0-flash", model)
}
