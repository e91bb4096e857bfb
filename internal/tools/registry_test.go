package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/internal/kernelerr"
	"github.com/valerka1292/conclave/pkg/models"
)

func mustRegister(t *testing.T, r *Registry, desc models.ToolDescriptor) {
	t.Helper()
	require.NoError(t, r.Register(desc))
}

func TestFullCatalogIncludesPrivilegedRestrictedDoesNot(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "web_search", Description: "search the web"})
	mustRegister(t, r, models.ToolDescriptor{Name: "spawn_agent", Description: "spawn an agent", Privileged: true})

	full := r.FullCatalog()
	restricted := r.RestrictedCatalog()

	assert.Len(t, full, 2)
	assert.Len(t, restricted, 1)
	assert.Equal(t, "web_search", restricted[0].Function.Name)
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "search", Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)})

	err := r.Validate("search", json.RawMessage(`not json`))
	require.Error(t, err)
	assert.True(t, kernelerr.Is(err, kernelerr.SchemaError))
}

func TestValidateRejectsSchemaViolation(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "search", Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)})

	err := r.Validate("search", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, kernelerr.Is(err, kernelerr.SchemaError))
}

func TestValidateAcceptsWellFormedArgs(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "search", Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)})

	err := r.Validate("search", json.RawMessage(`{"query":"go idioms"}`))
	assert.NoError(t, err)
}

func TestValidateUnknownToolIsSchemaError(t *testing.T) {
	r := New()
	err := r.Validate("nonexistent", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, kernelerr.Is(err, kernelerr.SchemaError))
}

func TestToolWithoutSchemaAlwaysValidates(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "list_agents"})
	assert.NoError(t, r.Validate("list_agents", json.RawMessage(`{"anything":1}`)))
	assert.NoError(t, r.Validate("list_agents", nil))
}

func TestPromptFragmentListsNamesAndDescriptions(t *testing.T) {
	r := New()
	mustRegister(t, r, models.ToolDescriptor{Name: "web_search", Description: "search the web"})
	frag := r.PromptFragment(false)
	assert.Contains(t, frag, "web_search")
	assert.Contains(t, frag, "search the web")
}
