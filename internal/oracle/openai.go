package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/pkg/models"
)

// OpenAIConfig configures a new OpenAIOracle.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string // default "gpt-4o"
	MaxTokens    int    // 0 lets the API pick its own default
	MaxRetries   int    // default 3
	RetryDelay   time.Duration
}

// OpenAIOracle implements agentcore.Oracle against OpenAI's chat
// completions API, synchronous for the same reason documented on
// AnthropicOracle.
type OpenAIOracle struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
	retry        retrier
}

// NewOpenAIOracle constructs an OpenAIOracle.
func NewOpenAIOracle(cfg OpenAIConfig) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle: openai API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIOracle{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
		maxTokens:    cfg.MaxTokens,
		retry:        newRetrier(cfg.MaxRetries, cfg.RetryDelay),
	}, nil
}

// Complete implements agentcore.Oracle.
func (o *OpenAIOracle) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    o.defaultModel,
		Messages: openAIMessages(req),
	}
	if o.maxTokens > 0 {
		chatReq.MaxTokens = o.maxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = openAITools(req.Tools)
	}

	var resp openai.ChatCompletionResponse
	err := o.retry.do(ctx, func() error {
		var callErr error
		resp, callErr = o.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return agentcore.Response{}, NewProviderError("openai", o.defaultModel, err)
	}
	if len(resp.Choices) == 0 {
		return agentcore.Response{}, fmt.Errorf("oracle: openai: empty choices in response")
	}
	return decodeOpenAIMessage(resp.Choices[0].Message), nil
}

// openAIMessages builds the chat message list: the system prompt (plus any
// ephemeral status text) first, then the agent's history translated
// role-for-role.
func openAIMessages(req agentcore.Request) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage

	system := req.SystemPrompt
	if req.EphemeralContext != "" {
		if system != "" {
			system += "\n\n"
		}
		system += req.EphemeralContext
	}
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, rec := range req.History {
		switch rec.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: rec.Content})
		case models.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: rec.Content})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: rec.Content}
			for _, call := range rec.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Args),
					},
				})
			}
			out = append(out, msg)
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    rec.Content,
				ToolCallID: rec.ToolCallID,
			})
		}
	}
	return out
}

func openAITools(tools []models.FunctionTool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.Function.Parameters) > 0 {
			if err := json.Unmarshal(t.Function.Parameters, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

func decodeOpenAIMessage(msg openai.ChatCompletionMessage) agentcore.Response {
	resp := agentcore.Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, models.ToolCallDescriptor{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp
}
