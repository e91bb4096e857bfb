package models

import "encoding/json"

// ToolDescriptor is the declarative catalog entry for a tool: its name,
// a human-readable description, and a JSON-schema-shaped parameter spec.
// Descriptors are immutable once registered.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`

	// Privileged marks a tool as system-privileged (spawn/kill/list/allocate
	// and similar kernel-routed system calls). Privileged tools are only
	// present in the leader's tool view.
	Privileged bool `json:"-"`
}

// FunctionTool is the `{type: "function", function: {...}}` shape the
// reasoning oracle and the prompt-fragment helper expect.
type FunctionTool struct {
	Type     string           `json:"type"`
	Function FunctionToolBody `json:"function"`
}

// FunctionToolBody is the nested "function" object of a FunctionTool.
type FunctionToolBody struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// AsFunctionTool converts a ToolDescriptor to the oracle-facing wire shape.
func (d ToolDescriptor) AsFunctionTool() FunctionTool {
	return FunctionTool{
		Type: "function",
		Function: FunctionToolBody{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		},
	}
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}
