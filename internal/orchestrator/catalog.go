package orchestrator

import (
	"encoding/json"

	"github.com/valerka1292/conclave/pkg/models"
)

// jsonSchema is a minimal JSON-schema object builder for the tool
// parameter specs below — just enough structure (properties, required,
// additionalProperties: false) to match what the reasoning oracle and
// internal/tools.Registry expect.
type jsonSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]propSchema `json:"properties,omitempty"`
	Required             []string              `json:"required,omitempty"`
	AdditionalProperties bool                  `json:"additionalProperties"`
}

type propSchema struct {
	Type      string      `json:"type"`
	MinLength int         `json:"minLength,omitempty"`
	MaxLength int         `json:"maxLength,omitempty"`
	Minimum   *float64    `json:"minimum,omitempty"`
	MinItems  int         `json:"minItems,omitempty"`
	Items     *propSchema `json:"items,omitempty"`
}

func zero() *float64 {
	v := 0.0
	return &v
}

func mustSchema(s jsonSchema) []byte {
	s.Type = "object"
	b, err := json.Marshal(s)
	if err != nil {
		panic(err) // schemas are compile-time literals; a marshal failure is a programming error
	}
	return b
}

func tool(name, description string, params jsonSchema) models.FunctionTool {
	return models.FunctionTool{
		Type: "function",
		Function: models.FunctionToolBody{
			Name:        name,
			Description: description,
			Parameters:  mustSchema(params),
		},
	}
}

var (
	chatroomSendTool = tool(ToolChatroomSend,
		"Send a message to one or more teammates, or \"All\" for everyone else in the session.",
		jsonSchema{
			Properties: map[string]propSchema{
				"text":       {Type: "string", MinLength: 1},
				"recipients": {Type: "array", MinItems: 1, Items: &propSchema{Type: "string"}},
			},
			Required:             []string{"text", "recipients"},
			AdditionalProperties: false,
		})

	waitTool = tool(ToolWait,
		"Acknowledge that you are blocking for teammate replies. Only call this when you have outstanding delegations.",
		jsonSchema{AdditionalProperties: false})

	setTitleTool = tool(ToolSetConversationTitle,
		"Set a short (<=120 character) title for this conversation.",
		jsonSchema{
			Properties:           map[string]propSchema{"title": {Type: "string", MaxLength: maxTitleLength}},
			Required:             []string{"title"},
			AdditionalProperties: false,
		})

	webSearchTool = tool(ToolWebSearch,
		"Search the web and return a summary of results.",
		jsonSchema{
			Properties:           map[string]propSchema{"query": {Type: "string", MinLength: 1}},
			Required:             []string{"query"},
			AdditionalProperties: false,
		})

	pythonRunTool = tool(ToolPythonRun,
		"Execute a snippet of Python in a sandbox and return its stdout.",
		jsonSchema{
			Properties:           map[string]propSchema{"code": {Type: "string", MinLength: 1}},
			Required:             []string{"code"},
			AdditionalProperties: false,
		})

	artifactReadTool = tool(ToolArtifactRead,
		"Read a slice of a previously archived large tool output by artifact id.",
		jsonSchema{
			Properties: map[string]propSchema{
				"id":     {Type: "string", MinLength: 1},
				"start":  {Type: "integer", Minimum: zero()},
				"length": {Type: "integer", Minimum: zero()},
			},
			Required:             []string{"id"},
			AdditionalProperties: false,
		})

	processStartTool = tool(ToolProcessStart,
		"Start a child process and return its pid.",
		jsonSchema{
			Properties:           map[string]propSchema{"command": {Type: "string", MinLength: 1}},
			Required:             []string{"command"},
			AdditionalProperties: false,
		})

	processReadTool = tool(ToolProcessRead,
		"Read the most recent buffered output lines from a running process.",
		jsonSchema{
			Properties:           map[string]propSchema{"pid": {Type: "integer"}, "lines": {Type: "integer"}},
			Required:             []string{"pid"},
			AdditionalProperties: false,
		})

	processStopTool = tool(ToolProcessStop,
		"Terminate a running process started with process_start.",
		jsonSchema{
			Properties:           map[string]propSchema{"pid": {Type: "integer"}},
			Required:             []string{"pid"},
			AdditionalProperties: false,
		})
)

// LeaderCatalog is the default tool set offered to the leader:
// delegation, session bookkeeping, and every self-contained/
// external tool.
func LeaderCatalog() []models.FunctionTool {
	return []models.FunctionTool{
		chatroomSendTool, waitTool, setTitleTool,
		webSearchTool, pythonRunTool, artifactReadTool,
		processStartTool, processReadTool, processStopTool,
	}
}

// CollaboratorCatalog is the default tool set offered to a collaborator:
// the same self-contained/external tools as the leader plus chatroom_send,
// but no wait or set_conversation_title — those are session-bookkeeping
// concerns that belong to the leader.
func CollaboratorCatalog() []models.FunctionTool {
	return []models.FunctionTool{
		chatroomSendTool,
		webSearchTool, pythonRunTool, artifactReadTool,
		processStartTool, processReadTool, processStopTool,
	}
}
