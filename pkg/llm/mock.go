// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"

	"github.com/jllopis/avalon/pkg/errors"
)

// MockProvider answers every request the same way. It backs the offline
// "mock" provider and tests.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{Content: m.Response, Usage: estimateUsage(req, m.Response)}, nil
}

// ScriptedMockProvider returns its responses in order, one per call, and
// records every request. Running out of responses is an LLM error.
type ScriptedMockProvider struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Requests  []ChatRequest
	CallCount int
}

// NewScriptedMockProvider queues responses.
func NewScriptedMockProvider(responses ...string) *ScriptedMockProvider {
	return &ScriptedMockProvider{Responses: responses}
}

// Chat implements Provider.
func (s *ScriptedMockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Responses) == 0 {
		return nil, errors.New(errors.CodeLLMError, "scripted provider has no responses left", nil).
			WithContext("calls", s.CallCount)
	}
	content := s.Responses[0]
	s.Responses = s.Responses[1:]
	return &ChatResponse{Content: content, Usage: estimateUsage(req, content)}, nil
}

// AddResponse queues one more response.
func (s *ScriptedMockProvider) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// LastRequest returns the most recent request.
func (s *ScriptedMockProvider) LastRequest() (ChatRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return ChatRequest{}, false
	}
	return s.Requests[len(s.Requests)-1], true
}

// estimateUsage approximates four characters per token.
func estimateUsage(req ChatRequest, answer string) Usage {
	prompt := 0
	for _, m := range req.Messages {
		prompt += (len(m.Content) + 3) / 4
	}
	completion := (len(answer) + 3) / 4
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}
