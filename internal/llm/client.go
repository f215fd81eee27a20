// Package llm talks to an OpenAI-compatible chat completion service. One
// request shape covers both plain completions and function calling; the
// response is either free text or a list of parsed tool invocations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/httpx"
	"github.com/Elore26/assistant/internal/types"
)

// ToolSpec is one callable tool as shown to the model: a name, a
// description and a JSON schema for the parameters.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single completion call.
type Request struct {
	Model       string
	Messages    []types.Message
	Tools       []ToolSpec
	Temperature float32
	MaxTokens   int
}

// Response is the parsed model reply. ToolCalls is non-empty when the
// model requested tool invocations instead of (or alongside) text.
type Response struct {
	Content    string
	ToolCalls  []types.ToolCall
	TokensUsed int
}

// Client is the completion service abstraction consumed by the loop.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// OpenAIClient implements Client against any /chat/completions endpoint.
type OpenAIClient struct {
	endpoint string
	apiKey   string
	model    string
	http     *httpx.Client
	logger   *zap.Logger
}

// NewOpenAIClient builds a client from configuration.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     httpx.New(timeout, logger),
		logger:   logger,
	}
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends the conversation and returns the parsed reply.
func (c *OpenAIClient) Chat(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(c.buildRequest(model, req))
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	data, err := c.http.PostJSON(ctx, c.endpoint+"/chat/completions", body, headers)
	if err != nil {
		return nil, fmt.Errorf("completion call: %w", err)
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if wire.Error != nil {
		return nil, fmt.Errorf("completion service: %s", wire.Error.Message)
	}
	if len(wire.Choices) == 0 {
		return nil, fmt.Errorf("completion response has no choices")
	}

	msg := wire.Choices[0].Message
	resp := &Response{
		Content:    msg.Content,
		TokensUsed: wire.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		call, err := parseToolCall(tc)
		if err != nil {
			c.logger.Warn("discarding malformed tool call",
				zap.String("tool", tc.Function.Name),
				zap.Error(err))
			continue
		}
		resp.ToolCalls = append(resp.ToolCalls, call)
	}
	return resp, nil
}

func (c *OpenAIClient) buildRequest(model string, req Request) wireRequest {
	out := wireRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Args)
			if err != nil {
				args = []byte("{}")
			}
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out.Messages = append(out.Messages, wm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func parseToolCall(tc wireToolCall) (types.ToolCall, error) {
	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return types.ToolCall{}, fmt.Errorf("parse arguments for %s: %w", tc.Function.Name, err)
		}
	}
	return types.ToolCall{
		ID:   tc.ID,
		Name: tc.Function.Name,
		Args: args,
	}, nil
}
