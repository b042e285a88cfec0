// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"strings"
	"sync"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/llm"
)

// ScenarioProvider is an llm.Provider for match tests. Responses are
// consumed in order; a response with a Condition is skipped when the
// request does not satisfy it. Every request is captured.
type ScenarioProvider struct {
	mu           sync.Mutex
	responses    []ScriptedResponse
	next         int
	requests     []llm.ChatRequest
	defaultError error
	onChat       func(req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ScriptedResponse is one queued answer.
type ScriptedResponse struct {
	Content   string
	Error     error
	Usage     llm.Usage
	Condition Condition
}

// Condition selects the requests a response applies to.
type Condition func(req llm.ChatRequest) bool

// WhenSeat matches prompts addressed to one seat.
func WhenSeat(name string) Condition {
	return func(req llm.ChatRequest) bool {
		return strings.HasPrefix(req.LastUser(), "You are "+name+".")
	}
}

// WhenTask matches prompts whose task contains cue, e.g. "Your vote:".
func WhenTask(cue string) Condition {
	return func(req llm.ChatRequest) bool {
		return strings.Contains(req.LastUser(), cue)
	}
}

// And matches when every condition does.
func And(conds ...Condition) Condition {
	return func(req llm.ChatRequest) bool {
		for _, c := range conds {
			if !c(req) {
				return false
			}
		}
		return true
	}
}

// NewScenarioProvider creates an empty provider.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{}
}

// AddResponse queues an unconditional answer.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddErrorResponse queues a failure.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddScriptedResponse queues a fully configured response.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WithDefaultError is returned once the queue is empty.
func (p *ScenarioProvider) WithDefaultError(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// WithChatFunc answers every request with fn and ignores the queue.
func (p *ScenarioProvider) WithChatFunc(fn func(req llm.ChatRequest) (*llm.ChatResponse, error)) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChat = fn
	return p
}

// WithAnswers answers by the task: the first key the last user message
// contains picks the reply. Keys are checked in the order given; no match
// yields an empty answer.
func (p *ScenarioProvider) WithAnswers(pairs ...string) *ScenarioProvider {
	return p.WithChatFunc(func(req llm.ChatRequest) (*llm.ChatResponse, error) {
		prompt := req.LastUser()
		for i := 0; i+1 < len(pairs); i += 2 {
			if strings.Contains(prompt, pairs[i]) {
				return &llm.ChatResponse{Content: pairs[i+1]}, nil
			}
		}
		return &llm.ChatResponse{}, nil
	})
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.onChat != nil {
		return p.onChat(req)
	}

	for p.next < len(p.responses) {
		resp := p.responses[p.next]
		p.next++
		if resp.Condition != nil && !resp.Condition(req) {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &llm.ChatResponse{Content: resp.Content, Usage: resp.Usage}, nil
	}

	if p.defaultError != nil {
		return nil, p.defaultError
	}
	return nil, errors.Newf(errors.CodeLLMError, "no scripted response left for call %d", len(p.requests))
}

// Requests returns a copy of the captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

// LastRequest returns the most recent request or nil.
func (p *ScenarioProvider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	req := p.requests[len(p.requests)-1]
	return &req
}

// CallCount returns the number of Chat calls.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reset rewinds the queue and forgets captured requests.
func (p *ScenarioProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = 0
	p.requests = p.requests[:0]
}

// LastUserMessage returns the task of req.
func LastUserMessage(req llm.ChatRequest) string { return req.LastUser() }
