package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
)

// DefaultOllamaURL is where a local Ollama listens.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to the /api/chat endpoint of an Ollama server.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Local models can take minutes on the first prompt of a match.
		client: &http.Client{Timeout: 2 * time.Minute},
	}
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Reasoning models open their answer with a think block that may name the
// seat's role; it never reaches the parser.
var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Chat implements Provider.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := ollamaRequest{Model: req.Model, Messages: req.Messages}
	if req.Temperature != 0 {
		body.Options = &ollamaOptions{Temperature: req.Temperature}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "encode ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "build ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeLLMError, "ollama unreachable", err).
			WithContext("url", p.baseURL).
			WithContext("model", req.Model)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.CodeLLMError, "ollama returned %s", resp.Status).
			WithContext("model", req.Model).
			WithContext("body", strings.TrimSpace(string(snippet)))
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(errors.CodeLLMError, "decode ollama response", err)
	}
	return &ChatResponse{
		Content: strings.TrimSpace(thinkBlock.ReplaceAllString(out.Message.Content, "")),
		Usage: Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

var _ Provider = (*OllamaProvider)(nil)
