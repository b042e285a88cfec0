// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"context"
	"fmt"
	"strings"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/llm"
	"github.com/jllopis/avalon/pkg/memory"
)

// LLMActor answers requests through a language model.
type LLMActor struct {
	provider    llm.Provider
	model       string
	temperature float64
	memory      memory.ConversationMemory
	backend     string
}

// LLMOption configures an LLMActor.
type LLMOption func(*LLMActor)

// WithModel sets the model name sent with every request.
func WithModel(model string) LLMOption {
	return func(a *LLMActor) { a.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(a *LLMActor) { a.temperature = t }
}

// WithMemory keeps each seat's own earlier questions and answers and
// replays them on later requests.
func WithMemory(m memory.ConversationMemory) LLMOption {
	return func(a *LLMActor) { a.memory = m }
}

// WithBackendName labels the actor in match logs, e.g. "ollama".
func WithBackendName(name string) LLMOption {
	return func(a *LLMActor) { a.backend = name }
}

// NewLLM creates an actor backed by provider.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLMActor {
	a := &LLMActor{provider: provider, backend: "llm"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Submit implements Actor.
func (a *LLMActor) Submit(ctx context.Context, req Request) (string, error) {
	session := memory.SessionID(req.MatchID, req.Seat)
	messages := []llm.Message{llm.System(systemPrompt)}

	if a.memory != nil {
		past, err := a.memory.GetMessages(ctx, session)
		if err != nil {
			return "", errors.New(errors.CodeInternal, "load seat memory", err).WithRecoverable(true)
		}
		for _, m := range past {
			messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
		}
	}
	messages = append(messages, llm.User(Prompt(req)))

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", errors.New(errors.CodeActorEmptyResponse, "model returned no text", nil).
			WithContext("seat", req.Seat).
			WithContext("kind", string(req.Kind))
	}

	if a.memory != nil {
		// Only the task is remembered; the public record is replayed fresh.
		note := fmt.Sprintf("Round %d, %s: %s", req.Context.Round, req.Kind, taskFor(req))
		meta := map[string]string{"kind": string(req.Kind), "request_id": req.ID}
		_ = a.memory.AppendMessage(ctx, session, memory.ConversationMessage{Role: memory.RoleUser, Content: note, Metadata: meta})
		_ = a.memory.AppendMessage(ctx, session, memory.ConversationMessage{Role: memory.RoleAssistant, Content: answer, Metadata: meta})
	}
	return answer, nil
}

// Info implements Describer.
func (a *LLMActor) Info() Info {
	return Info{Type: a.backend, Config: a.model}
}
