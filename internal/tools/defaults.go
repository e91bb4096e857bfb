package tools

import (
	"encoding/json"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// DefaultDescriptors is the standard catalog for kernel-hosted agents:
// the peer message-send tool, the four system-privileged kernel calls, and
// the self-contained tools the Executor dispatches. The privileged entries
// appear only in the full (leader) view.
func DefaultDescriptors() []models.ToolDescriptor {
	return []models.ToolDescriptor{
		{
			Name:        agentcore.ToolSendMessage,
			Description: "Send a message to one or more named agents and wait for their replies.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"text": {"type": "string", "minLength": 1},
					"recipients": {"type": "array", "minItems": 1, "items": {"type": "string"}}
				},
				"required": ["text", "recipients"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        agentcore.ToolSpawnAgent,
			Description: "Spawn a new agent with the given name, system prompt, and temperature.",
			Privileged:  true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"system_prompt": {"type": "string"},
					"temperature": {"type": "number", "minimum": 0, "maximum": 1}
				},
				"required": ["name"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        agentcore.ToolKillAgent,
			Description: "Stop a running agent by name.",
			Privileged:  true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"name": {"type": "string", "minLength": 1}},
				"required": ["name"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        agentcore.ToolListAgents,
			Description: "List the names of every running agent.",
			Privileged:  true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {},
				"additionalProperties": false
			}`),
		},
		{
			Name:        agentcore.ToolAllocateBudget,
			Description: "Grant additional work-credits to a named agent.",
			Privileged:  true,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"amount": {"type": "integer"}
				},
				"required": ["name", "amount"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolWebSearch,
			Description: "Search the web and return a summary of results.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"query": {"type": "string", "minLength": 1}},
				"required": ["query"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolPythonRun,
			Description: "Execute a snippet of Python in a sandbox and return its stdout.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"code": {"type": "string", "minLength": 1}},
				"required": ["code"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolArtifactRead,
			Description: "Read a slice of a previously archived large tool output by artifact id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"id": {"type": "string", "minLength": 1},
					"start": {"type": "integer", "minimum": 0},
					"length": {"type": "integer", "minimum": 0}
				},
				"required": ["id"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolProcessStart,
			Description: "Start a child process and return its pid.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"command": {"type": "string", "minLength": 1}},
				"required": ["command"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolProcessRead,
			Description: "Read the most recent buffered output lines from a running process.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"pid": {"type": "integer"}, "lines": {"type": "integer"}},
				"required": ["pid"],
				"additionalProperties": false
			}`),
		},
		{
			Name:        ToolProcessStop,
			Description: "Terminate a running process started with process_start.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"pid": {"type": "integer"}},
				"required": ["pid"],
				"additionalProperties": false
			}`),
		},
	}
}

// NewDefaultRegistry builds a Registry pre-loaded with DefaultDescriptors.
func NewDefaultRegistry() (*Registry, error) {
	r := New()
	for _, desc := range DefaultDescriptors() {
		if err := r.Register(desc); err != nil {
			return nil, err
		}
	}
	return r, nil
}
