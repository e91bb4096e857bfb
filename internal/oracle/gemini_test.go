package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/valerka1292/conclave/pkg/models"
)

func TestGeminiContentsConvertsHistoryRoles(t *testing.T) {
	history := []models.HistoryRecord{
		{Role: models.RoleSystem, Content: "ignored here, folded into SystemInstruction by the caller"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "let me check", ToolCalls: []models.ToolCallDescriptor{
			{ID: "tc1", Name: "web_search", Args: json.RawMessage(`{"query":"go"}`)},
		}},
		{Role: models.RoleTool, ToolCallID: "tc1", ToolName: "web_search", Content: "results"},
	}

	contents, err := geminiContents(history)
	require.NoError(t, err)
	// system record dropped, three remain: user, model, tool(as user)
	require.Len(t, contents, 3)

	assert.EqualValues(t, genai.RoleUser, contents[0].Role)
	assert.EqualValues(t, genai.RoleModel, contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	require.NotNil(t, contents[1].Parts[1].FunctionCall)
	assert.Equal(t, "web_search", contents[1].Parts[1].FunctionCall.Name)

	require.Len(t, contents[2].Parts, 1)
	fr := contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "web_search", fr.Name)
	assert.Equal(t, "results", fr.Response["result"])
}

func TestGeminiContentsRejectsMalformedToolArgs(t *testing.T) {
	history := []models.HistoryRecord{
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCallDescriptor{
			{ID: "tc1", Name: "bad", Args: json.RawMessage(`not json`)},
		}},
	}
	_, err := geminiContents(history)
	assert.Error(t, err)
}

func TestGeminiToolsConvertsDescriptors(t *testing.T) {
	tools := []models.FunctionTool{
		{Function: models.FunctionToolBody{
			Name: "web_search", Description: "search the web",
			Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"search terms"}},"required":["query"]}`),
		}},
	}

	out := geminiTools(tools)
	require.Len(t, out, 1)
	require.Len(t, out[0].FunctionDeclarations, 1)

	decl := out[0].FunctionDeclarations[0]
	assert.Equal(t, "web_search", decl.Name)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"query"}, decl.Parameters.Required)
	require.Contains(t, decl.Parameters.Properties, "query")
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["query"].Type)
}

func TestDecodeGeminiResponseMintsToolCallIDs(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "checking"},
					{FunctionCall: &genai.FunctionCall{Name: "web_search", Args: map[string]any{"query": "go"}}},
				},
			},
		}},
	}

	decoded := decodeGeminiResponse(resp)
	assert.Equal(t, "checking", decoded.Text)
	require.Len(t, decoded.ToolCalls, 1)
	assert.Equal(t, "web_search", decoded.ToolCalls[0].Name)
	assert.NotEmpty(t, decoded.ToolCalls[0].ID, "an id must be minted when the API supplies none")
	assert.JSONEq(t, `{"query":"go"}`, string(decoded.ToolCalls[0].Args))
}

func TestNewGeminiOracleRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiOracle(GeminiConfig{})
	assert.Error(t, err)
}
