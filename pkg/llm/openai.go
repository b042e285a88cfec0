// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/avalon/pkg/errors"
)

// DeepSeekBaseURL is the OpenAI-compatible endpoint of the DeepSeek API.
const DeepSeekBaseURL = "https://api.deepseek.com/v1"

// OpenAIProvider implements Provider for any OpenAI-compatible chat
// completions API.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures the OpenAIProvider.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	model   string
	request []option.RequestOption
}

// WithModel sets the default model used when a request does not name one.
func WithModel(model string) OpenAIOption {
	return func(o *openAIOptions) {
		o.model = model
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) {
		if url != "" {
			o.request = append(o.request, option.WithBaseURL(url))
		}
	}
}

// WithAPIKey sets the API key. Without it the client reads OPENAI_API_KEY.
func WithAPIKey(apiKey string) OpenAIOption {
	return func(o *openAIOptions) {
		if apiKey != "" {
			o.request = append(o.request, option.WithAPIKey(apiKey))
		}
	}
}

// NewOpenAI creates a new OpenAI-compatible provider.
func NewOpenAI(opts ...OpenAIOption) *OpenAIProvider {
	o := &openAIOptions{model: "deepseek-chat"}
	for _, opt := range opts {
		opt(o)
	}
	return &OpenAIProvider{
		client: openai.NewClient(o.request...),
		model:  o.model,
	}
}

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "chat completion failed", err).
			WithContext("model", model)
	}

	resp := &ChatResponse{
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp, nil
}

func convertMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content)
	case RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

var _ Provider = (*OpenAIProvider)(nil)
