// Copyright 2026 © The Avalon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/config"
	"github.com/jllopis/avalon/pkg/engine"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/gateway"
	"github.com/jllopis/avalon/pkg/llm"
	"github.com/jllopis/avalon/pkg/memory"
	"github.com/jllopis/avalon/pkg/moderation"
	"github.com/jllopis/avalon/pkg/resilience"
)

// mockAnswer is what the offline provider says to every prompt. It parses as
// a vote and a mission action; other decisions fall back.
const mockAnswer = "I APPROVE and play SUCCESS."

// buildProvider returns the chat backend for one resolved seat config.
func buildProvider(c config.LLMConfig) (llm.Provider, error) {
	switch c.Provider {
	case "ollama":
		return llm.NewOllama(c.BaseURL), nil
	case "openai":
		opts := []llm.OpenAIOption{llm.WithModel(c.Model), llm.WithAPIKey(firstNonEmpty(c.APIKey, os.Getenv("OPENAI_API_KEY")))}
		if c.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(c.BaseURL))
		}
		return llm.NewOpenAI(opts...), nil
	case "deepseek":
		key := firstNonEmpty(c.APIKey, os.Getenv("DEEPSEEK_API_KEY"))
		if key == "" {
			return nil, errors.New(errors.CodeConfiguration, "deepseek needs an API key", nil).
				WithContext("hint", "set DEEPSEEK_API_KEY or llm.api_key")
		}
		return llm.NewOpenAI(
			llm.WithModel(c.Model),
			llm.WithBaseURL(firstNonEmpty(c.BaseURL, llm.DeepSeekBaseURL)),
			llm.WithAPIKey(key),
		), nil
	case "mock":
		return &llm.MockProvider{Response: mockAnswer}, nil
	default:
		return nil, errors.Newf(errors.CodeConfiguration, "unknown llm provider %q", c.Provider)
	}
}

// lineup builds fresh actors for one match. Human seats share console, which
// serves one request at a time. LLM seats get their own conversation memory.
func lineup(cfg *config.Config, console actor.Actor) (map[string]actor.Actor, error) {
	actors := make(map[string]actor.Actor, len(cfg.Match.Seats))
	for _, name := range cfg.Match.Seats {
		if cfg.Match.IsHuman(name) {
			if console == nil {
				return nil, errors.Newf(errors.CodeConfiguration, "seat %s is human but this command has no console", name)
			}
			actors[name] = console
			continue
		}
		sc := cfg.Seat(name)
		provider, err := buildProvider(sc)
		if err != nil {
			return nil, err
		}
		opts := []actor.LLMOption{
			actor.WithModel(sc.Model),
			actor.WithTemperature(sc.Temperature),
			actor.WithBackendName(sc.Provider),
		}
		if strategy := memoryStrategy(sc); strategy != nil {
			opts = append(opts, actor.WithMemory(memory.NewInMemoryConversation(memory.ConversationConfig{
				TruncationStrategy: strategy,
			})))
		}
		actors[name] = actor.NewLLM(provider, opts...)
	}
	return actors, nil
}

// memoryStrategy picks how much of its own conversation a seat replays.
// Nil means the seat plays without memory.
func memoryStrategy(sc config.LLMConfig) memory.TruncationStrategy {
	switch {
	case sc.MemoryTokens > 0:
		return memory.NewTokenStrategy(sc.MemoryTokens, true)
	case sc.MemoryWindow > 0:
		return memory.NewWindowStrategy(sc.MemoryWindow, true)
	}
	return nil
}

// matchOptions collects the engine options every command shares.
func (a *app) matchOptions(cfg *config.Config, actors map[string]actor.Actor, rec *recorder) []engine.Option {
	opts := []engine.Option{
		engine.WithActors(actors),
		engine.WithGatewayConfig(gatewayConfig(cfg.Actors)),
		engine.WithSinks(rec.sinks()...),
		engine.WithMetrics(a.metrics),
	}
	if cfg.Actors.ModerateComments {
		opts = append(opts, engine.WithModerator(moderation.New(
			moderation.WithMarkupFilter(),
			moderation.WithInjectionDetector(),
		)))
	}
	return opts
}

func gatewayConfig(a config.ActorsConfig) gateway.Config {
	gw := gateway.DefaultConfig()
	gw.Retry = resilience.DefaultRetryConfig().WithMaxAttempts(a.Retries)
	gw.Timeout = a.Timeout()
	gw.InteractiveTimeout = a.InteractiveTimeout()
	gw.Breaker.FailureThreshold = a.BreakerFailures
	gw.Breaker.Timeout = a.BreakerReset()
	gw.DisableBreaker = a.DisableBreaker
	return gw
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func describeSeat(cfg *config.Config, name string) string {
	if cfg.Match.IsHuman(name) {
		return "human"
	}
	sc := cfg.Seat(name)
	return fmt.Sprintf("%s/%s", sc.Provider, sc.Model)
}
