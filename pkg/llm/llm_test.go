package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/avalon/pkg/errors"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "APPROVE"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Vote"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "APPROVE" {
		t.Errorf("Expected 'APPROVE', got '%s'", resp.Content)
	}
	if resp.Usage.PromptTokens != 1 || resp.Usage.CompletionTokens != 2 || resp.Usage.TotalTokens != 3 {
		t.Errorf("unexpected usage estimate %+v", resp.Usage)
	}
}

func TestChatRequestHelpers(t *testing.T) {
	req := ChatRequest{Messages: []Message{
		System("rules"),
		User("Round 1, vote: earlier task"),
		Assistant("APPROVE"),
		User("Your vote:"),
	}}
	if got := req.LastUser(); got != "Your vote:" {
		t.Errorf("LastUser = %q", got)
	}
	if (ChatRequest{}).LastUser() != "" {
		t.Errorf("empty request should have no user message")
	}
	total := Usage{PromptTokens: 1, TotalTokens: 1}.Add(Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5})
	if total != (Usage{PromptTokens: 3, CompletionTokens: 3, TotalTokens: 6}) {
		t.Errorf("unexpected sum %+v", total)
	}
}

func TestScriptedMockProvider(t *testing.T) {
	mock := NewScriptedMockProvider("first", "second")
	for _, want := range []string{"first", "second"} {
		resp, err := mock.Chat(context.Background(), ChatRequest{Model: "m"})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Content != want {
			t.Errorf("expected %q, got %q", want, resp.Content)
		}
	}
	if _, err := mock.Chat(context.Background(), ChatRequest{}); !errors.IsCode(err, errors.CodeLLMError) {
		t.Fatalf("expected llm error once responses are exhausted, got %v", err)
	}
	if mock.CallCount != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount)
	}
	if req, ok := mock.LastRequest(); !ok || req.Model != "" {
		t.Errorf("unexpected last request: %+v", req)
	}
}

func TestOllamaChat(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Message:         Message{Role: RoleAssistant, Content: "<think>hmm</think>\nI choose [Alice, Bob]"},
			Done:            true,
			PromptEvalCount: 5,
			EvalCount:       7,
		})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL + "/")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:       "deepseek-r1",
		Temperature: 0.7,
		Messages:    []Message{{Role: RoleUser, Content: "Propose a team"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "I choose [Alice, Bob]" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("expected 12 tokens, got %d", resp.Usage.TotalTokens)
	}
	if got.Stream {
		t.Errorf("expected non-streaming request")
	}
	if got.Options == nil || got.Options.Temperature != 0.7 {
		t.Errorf("expected temperature option, got %+v", got.Options)
	}
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "missing"})
	if !errors.IsCode(err, errors.CodeLLMError) {
		t.Fatalf("expected LLM error, got %v", err)
	}
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing api key header")
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "deepseek-chat" {
			t.Errorf("expected default model, got %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "REJECT"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAI(WithBaseURL(srv.URL), WithAPIKey("test-key"))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "You are Alice."},
			{Role: RoleUser, Content: "Vote"},
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "REJECT" || resp.Usage.TotalTokens != 4 {
		t.Errorf("unexpected response %+v", resp)
	}
}
