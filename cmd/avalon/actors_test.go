// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
	"time"

	"github.com/jllopis/avalon/pkg/actor"
	"github.com/jllopis/avalon/pkg/config"
	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/llm"
	"github.com/jllopis/avalon/pkg/memory"
)

func TestBuildProvider(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")

	tests := []struct {
		name    string
		cfg     config.LLMConfig
		check   func(llm.Provider) bool
		errCode errors.ErrorCode
	}{
		{
			name:  "ollama",
			cfg:   config.LLMConfig{Provider: "ollama", Model: "deepseek-r1"},
			check: func(p llm.Provider) bool { _, ok := p.(*llm.OllamaProvider); return ok },
		},
		{
			name:  "openai",
			cfg:   config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k"},
			check: func(p llm.Provider) bool { _, ok := p.(*llm.OpenAIProvider); return ok },
		},
		{
			name:  "deepseek with key",
			cfg:   config.LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "k"},
			check: func(p llm.Provider) bool { _, ok := p.(*llm.OpenAIProvider); return ok },
		},
		{
			name:    "deepseek without key",
			cfg:     config.LLMConfig{Provider: "deepseek", Model: "deepseek-chat"},
			errCode: errors.CodeConfiguration,
		},
		{
			name: "mock",
			cfg:  config.LLMConfig{Provider: "mock"},
			check: func(p llm.Provider) bool {
				m, ok := p.(*llm.MockProvider)
				return ok && m.Response == mockAnswer
			},
		},
		{
			name:    "unknown",
			cfg:     config.LLMConfig{Provider: "carrier-pigeon"},
			errCode: errors.CodeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := buildProvider(tt.cfg)
			if tt.errCode != "" {
				if !errors.IsCode(err, tt.errCode) {
					t.Fatalf("expected %s, got %v", tt.errCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(p) {
				t.Fatalf("unexpected provider %T", p)
			}
		})
	}
}

func TestDeepSeekKeyFromEnv(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "from-env")
	if _, err := buildProvider(config.LLMConfig{Provider: "deepseek", Model: "deepseek-chat"}); err != nil {
		t.Fatalf("expected env key to be used, got %v", err)
	}
}

func loadConfig(t *testing.T, sets ...string) *config.Config {
	t.Helper()
	var args []string
	for _, s := range sets {
		args = append(args, "--set", s)
	}
	cfg, err := config.LoadWithCLI(args)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func TestLineup(t *testing.T) {
	cfg := loadConfig(t,
		"llm.provider=mock",
		"match.humans=[Alice]",
		"actors.seats.Eve.provider=ollama",
		"actors.seats.Eve.model=llama3",
	)
	console := actor.NewHuman()
	actors, err := lineup(cfg, console)
	if err != nil {
		t.Fatalf("lineup: %v", err)
	}
	if len(actors) != 6 {
		t.Fatalf("expected 6 actors, got %d", len(actors))
	}
	if actors["Alice"] != actor.Actor(console) {
		t.Errorf("human seat should use the console")
	}
	if info := actor.InfoOf(actors["Eve"]); info.Type != "ollama" || info.Config != "llama3" {
		t.Errorf("seat override not applied: %+v", info)
	}
	if info := actor.InfoOf(actors["Bob"]); info.Type != "mock" {
		t.Errorf("expected shared mock backend, got %+v", info)
	}
	if actors["Bob"] == actors["Charlie"] {
		t.Errorf("llm seats must not share an actor")
	}

	if _, err := lineup(cfg, nil); !errors.IsCode(err, errors.CodeConfiguration) {
		t.Fatalf("expected configuration error without a console, got %v", err)
	}
}

func TestGatewayConfig(t *testing.T) {
	cfg := loadConfig(t,
		"actors.retries=2",
		"actors.timeout_seconds=5",
		"actors.interactive_timeout_seconds=30",
		"actors.breaker_failures=4",
		"actors.breaker_reset_seconds=9",
	)
	gw := gatewayConfig(cfg.Actors)
	if gw.Retry.MaxAttempts != 2 {
		t.Errorf("retries: %d", gw.Retry.MaxAttempts)
	}
	if gw.Timeout != 5*time.Second || gw.InteractiveTimeout != 30*time.Second {
		t.Errorf("timeouts: %v %v", gw.Timeout, gw.InteractiveTimeout)
	}
	if gw.Breaker.FailureThreshold != 4 || gw.Breaker.Timeout != 9*time.Second || gw.DisableBreaker {
		t.Errorf("breaker: %+v", gw.Breaker)
	}
}

func TestMemoryStrategy(t *testing.T) {
	if s := memoryStrategy(config.LLMConfig{}); s != nil {
		t.Errorf("expected no memory, got %T", s)
	}
	if s, ok := memoryStrategy(config.LLMConfig{MemoryWindow: 8}).(*memory.WindowStrategy); !ok || s.MaxMessages != 8 {
		t.Errorf("expected window of 8, got %+v", s)
	}
	s, ok := memoryStrategy(config.LLMConfig{MemoryWindow: 8, MemoryTokens: 900}).(*memory.TokenStrategy)
	if !ok || s.MaxTokens != 900 || !s.KeepSystemMessages {
		t.Errorf("token budget must win, got %+v", s)
	}
}
