package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// GeminiConfig configures NewGeminiOracle.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string // default "gemini-2.0-flash"
	MaxTokens    int32  // 0 lets the API pick its own default
	MaxRetries   int    // default 3
	RetryDelay   time.Duration
}

// GeminiOracle implements agentcore.Oracle against Google's Gemini API via
// the Gen AI SDK, synchronous for the same reason documented on
// AnthropicOracle.
type GeminiOracle struct {
	client       *genai.Client
	defaultModel string
	maxTokens    int32
	retry        retrier
}

// NewGeminiOracle constructs a GeminiOracle.
func NewGeminiOracle(cfg GeminiConfig) (*GeminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: gemini API key is required")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create gemini client: %w", err)
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiOracle{
		client:       client,
		defaultModel: model,
		maxTokens:    cfg.MaxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agentcore.Oracle.
func (o *GeminiOracle) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	contents, err := geminiContents(req.History)
	if err != nil {
		return agentcore.Response{}, fmt.Errorf("oracle: gemini: %w", err)
	}
	config := o.buildConfig(req)

	var out *genai.GenerateContentResponse
	err = o.retry.do(ctx, func() error {
		var callErr error
		out, callErr = o.client.Models.GenerateContent(ctx, o.defaultModel, contents, config)
		return callErr
	})
	if err != nil {
		return agentcore.Response{}, NewProviderError("gemini", o.defaultModel, err)
	}

	return decodeGeminiResponse(out), nil
}

func (o *GeminiOracle) buildConfig(req agentcore.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	system := req.SystemPrompt
	if req.EphemeralContext != "" {
		system = strings.TrimSpace(system + "\n\n" + req.EphemeralContext)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if o.maxTokens > 0 {
		config.MaxOutputTokens = o.maxTokens
	}
	if len(req.Tools) > 0 {
		config.Tools = geminiTools(req.Tools)
	}
	return config
}

// geminiContents converts the agent's reasoning history into Gemini's
// content list. System records are dropped (folded into SystemInstruction
// by the caller); assistant tool calls become function-call parts on a
// model turn, and tool results become function-response parts on a user
// turn — Gemini carries no tool-call id of its own, so the name is what
// pairs a response to its call.
func geminiContents(history []models.HistoryRecord) ([]*genai.Content, error) {
	var out []*genai.Content
	for _, rec := range history {
		switch rec.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(rec.Content), &response); err != nil {
				response = map[string]any{"result": rec.Content}
			}
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       rec.ToolCallID,
						Name:     rec.ToolName,
						Response: response,
					},
				}},
			})

		case models.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if rec.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: rec.Content})
			}
			for _, call := range rec.ToolCalls {
				var args map[string]any
				if len(call.Args) > 0 {
					if err := json.Unmarshal(call.Args, &args); err != nil {
						return nil, fmt.Errorf("tool call %q: invalid arguments: %w", call.Name, err)
					}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: args},
				})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}

		default: // RoleUser and anything else maps to a user turn
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: rec.Content}},
			})
		}
	}
	return out, nil
}

func geminiTools(tools []models.FunctionTool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schemaMap); err != nil {
				continue
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  geminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// geminiSchema translates the subset of JSON schema the tool catalog uses
// into Gemini's typed Schema.
func geminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = geminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = geminiSchema(items)
	}
	return schema
}

// decodeGeminiResponse flattens the first candidate's parts into a single
// agentcore.Response. Gemini does not mint tool-call ids, so one is
// generated per function call to keep the tool-call-pair bookkeeping
// intact downstream.
func decodeGeminiResponse(resp *genai.GenerateContentResponse) agentcore.Response {
	var out agentcore.Response
	if resp == nil {
		return out
	}
	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = generateToolCallID(part.FunctionCall.Name)
				}
				out.ToolCalls = append(out.ToolCalls, models.ToolCallDescriptor{
					ID: id, Name: part.FunctionCall.Name, Args: args,
				})
			}
		}
		break // only the first candidate is consumed
	}
	out.Text = text.String()
	return out
}

// generateToolCallID mints an id for a Gemini function call, which the API
// leaves blank.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}
