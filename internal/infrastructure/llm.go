package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"leaseline/internal/interfaces"
)

const (
	defaultLLMBaseURL = "https://api.openai.com/v1"
	defaultLLMModel   = "gpt-4o-mini"
	defaultLLMTimeout = 45 * time.Second
)

// LLMConfig describes the reasoning backend connection.
type LLMConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
	Timeout       time.Duration
}

// LLMClient calls an OpenAI-compatible chat-completions endpoint with
// function-calling enabled. When the primary model fails on a transient
// error the call is retried once against the fallback model; the agent loop
// above never retries on its own.
type LLMClient struct {
	apiKey        string
	baseURL       string
	model         string
	fallbackModel string
	timeout       time.Duration
	httpClient    *http.Client
}

func NewLLMClient(cfg LLMConfig) (*LLMClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultLLMBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultLLMModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	return &LLMClient{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		model:         model,
		fallbackModel: strings.TrimSpace(cfg.FallbackModel),
		timeout:       timeout,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
}

func (c *LLMClient) Chat(ctx context.Context, messages []interfaces.ChatMessage, tools []interfaces.ToolDefinition) (interfaces.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.chatWithModel(ctx, c.model, messages, tools)
	if err == nil || c.fallbackModel == "" || c.fallbackModel == c.model {
		return resp, err
	}
	if ctx.Err() != nil {
		return interfaces.ChatResponse{}, err
	}

	slog.Warn("llm primary model failed, trying fallback",
		"model", c.model, "fallback", c.fallbackModel, "error", err)
	return c.chatWithModel(ctx, c.fallbackModel, messages, tools)
}

func (c *LLMClient) chatWithModel(ctx context.Context, model string, messages []interfaces.ChatMessage, tools []interfaces.ToolDefinition) (interfaces.ChatResponse, error) {
	payload := chatRequest{
		Model:       model,
		Messages:    make([]wireMessage, 0, len(messages)),
		Temperature: 0.2,
	}

	for _, m := range messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		payload.Messages = append(payload.Messages, wm)
	}

	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		payload.Tools = append(payload.Tools, wt)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return interfaces.ChatResponse{}, fmt.Errorf("encode chat request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return interfaces.ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return interfaces.ChatResponse{}, fmt.Errorf("call reasoning backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return interfaces.ChatResponse{}, fmt.Errorf("reasoning backend returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return interfaces.ChatResponse{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return interfaces.ChatResponse{}, errors.New("chat response has no choices")
	}

	msg := decoded.Choices[0].Message
	out := interfaces.ChatResponse{Content: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, interfaces.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}
