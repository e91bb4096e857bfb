package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// AnthropicConfig configures a new AnthropicOracle.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string // default "claude-sonnet-4-20250514"
	MaxTokens    int64  // default 4096
	MaxRetries   int    // default 3
	RetryDelay   time.Duration
}

// AnthropicOracle implements agentcore.Oracle against Anthropic's Messages
// API. It is a single synchronous call per Complete since every caller
// in this module (the agent's think step, the orchestrator's agentState
// step) consumes one complete Response per oracle call rather than a token
// stream — the module's own caller-facing streaming is produced
// independently by internal/orchestrator's event channel.
type AnthropicOracle struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
	retry        retrier
}

// NewAnthropicOracle constructs an AnthropicOracle.
func NewAnthropicOracle(cfg AnthropicConfig) (*AnthropicOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicOracle{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
		maxTokens:    maxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agentcore.Oracle.
func (o *AnthropicOracle) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	params, err := o.buildParams(req)
	if err != nil {
		return agentcore.Response{}, fmt.Errorf("oracle: anthropic: %w", err)
	}

	var msg *anthropic.Message
	err = o.retry.do(ctx, func() error {
		var callErr error
		msg, callErr = o.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return agentcore.Response{}, NewProviderError("anthropic", o.defaultModel, err)
	}

	return decodeAnthropicMessage(msg), nil
}

func (o *AnthropicOracle) buildParams(req agentcore.Request) (anthropic.MessageNewParams, error) {
	messages, err := anthropicMessages(req.History)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.defaultModel),
		Messages:  messages,
		MaxTokens: o.maxTokens,
	}

	system := req.SystemPrompt
	if req.EphemeralContext != "" {
		system = strings.TrimSpace(system + "\n\n" + req.EphemeralContext)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if len(req.Tools) > 0 {
		tools, err := anthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

// anthropicMessages converts the agent's reasoning history into Anthropic's
// message list. System records are dropped here (folded into params.System
// by the caller); tool-role history becomes a tool_result content block in
// a user message, matching Anthropic's "tool results are user turns"
// convention.
func anthropicMessages(history []models.HistoryRecord) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, rec := range history {
		switch rec.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(rec.ToolCallID, rec.Content, false),
			))

		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if rec.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(rec.Content))
			}
			for _, call := range rec.ToolCalls {
				var input map[string]any
				if len(call.Args) > 0 {
					if err := json.Unmarshal(call.Args, &input); err != nil {
						return nil, fmt.Errorf("tool call %q: invalid arguments: %w", call.Name, err)
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default: // RoleUser and anything else maps to a user turn
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(rec.Content)))
		}
	}
	return out, nil
}

func anthropicTools(tools []models.FunctionTool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				return nil, fmt.Errorf("tool %q: invalid schema: %w", t.Function.Name, err)
			}
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(t.Function.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

// decodeAnthropicMessage flattens a completed Message's content blocks into
// a single agentcore.Response: concatenated text plus one ToolCallDescriptor
// per tool_use block.
func decodeAnthropicMessage(msg *anthropic.Message) agentcore.Response {
	var resp agentcore.Response
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			tu := block.AsToolUse()
			args, _ := json.Marshal(tu.Input)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCallDescriptor{
				ID: tu.ID, Name: tu.Name, Args: args,
			})
		}
	}
	resp.Text = text.String()
	return resp
}
