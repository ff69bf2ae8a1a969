// Package aiproxy wraps the text-generation boundary: a single
// Call(model, prompt) entry point and the prompt builders layered on it.
package aiproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// DefaultModel is the model alias used when none is configured.
const DefaultModel = "gemini"

// Caller sends a prompt to a model and returns the generated text.
type Caller interface {
	Call(ctx context.Context, model, prompt string) (string, error)
}

// GatewayCaller routes prompts through the gateway's aiProxy action. The
// gateway picks the concrete model for an alias such as "gemini".
type GatewayCaller struct {
	client *gateway.Client
}

// NewGatewayCaller creates a gateway-backed caller
func NewGatewayCaller(client *gateway.Client) *GatewayCaller {
	return &GatewayCaller{client: client}
}

// Call implements Caller
func (g *GatewayCaller) Call(ctx context.Context, model, prompt string) (string, error) {
	if model == "" {
		model = DefaultModel
	}
	resp, err := g.client.Do(ctx, gateway.Request{
		Action: "aiProxy",
		Payload: map[string]string{
			"provider": model,
			"prompt":   prompt,
		},
	})
	if err != nil {
		return "", fmt.Errorf("ai proxy call failed: %w", err)
	}

	text := rawText(resp.Data)
	if strings.TrimSpace(text) == "" {
		return "", util.ErrAIEmpty
	}
	return text, nil
}

// rawText returns data as text whether it was sent as a JSON string or as
// an inline JSON value.
func rawText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	if string(data) == "null" {
		return ""
	}
	return string(data)
}

// OpenAIOptions configures an OpenAI-compatible caller.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // empty uses the public endpoint
	Model   string // concrete model used for provider aliases
	System  string
}

// OpenAICaller talks to any OpenAI-compatible chat completion endpoint.
type OpenAICaller struct {
	client *openai.Client
	model  string
	system string
}

// NewOpenAICaller creates an OpenAI-compatible caller
func NewOpenAICaller(opts OpenAIOptions) (*OpenAICaller, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("ai.api_key not set: %w", util.ErrInvalidConfig)
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	system := opts.System
	if system == "" {
		system = "You are a meticulous academic research assistant."
	}

	util.DebugLog("Initializing OpenAI-compatible caller (model %s)", model)
	return &OpenAICaller{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		system: system,
	}, nil
}

// Call implements Caller. Provider aliases map onto the configured model.
func (o *OpenAICaller) Call(ctx context.Context, model, prompt string) (string, error) {
	if model == "" || isProviderAlias(model) {
		model = o.model
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", util.ErrAIEmpty
	}

	util.DebugLog("OpenAI: finish_reason=%s", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func isProviderAlias(model string) bool {
	switch strings.ToLower(model) {
	case "gemini", "groq", "openai", "default":
		return true
	}
	return false
}
