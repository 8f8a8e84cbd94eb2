package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DecideInbox/internal/config"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// ChatScorer implements ports.Scorer on top of an OpenAI-compatible
// chat-completions endpoint (OpenAI, Ollama, llama.cpp, vLLM).
type ChatScorer struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Scorer = (*ChatScorer)(nil)

// NewChatScorer builds a scorer from configuration.
func NewChatScorer(cfg config.ScorerConfig) *ChatScorer {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatScorer{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Evaluate asks the model for one verdict per item in a single call.
func (c *ChatScorer) Evaluate(ctx context.Context, items []domain.RawItem, evalCtx domain.EvalContext) ([]domain.Evaluation, domain.Usage, error) {
	if c == nil {
		return nil, domain.Usage{}, fmt.Errorf("chat scorer is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return nil, domain.Usage{}, fmt.Errorf("chat scorer misconfigured")
	}
	if len(items) == 0 {
		return nil, domain.Usage{}, nil
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: buildUserPrompt(items, evalCtx)},
		},
	})
	if err != nil {
		return nil, domain.Usage{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.Usage{}, fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	usage := domain.Usage{Calls: 1}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, usage, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, usage, fmt.Errorf("chat error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, usage, fmt.Errorf("decode chat response: %w", err)
	}
	usage.Tokens = decoded.Usage.TotalTokens
	if len(decoded.Choices) == 0 {
		return nil, usage, fmt.Errorf("chat response has no choices")
	}

	evals, err := parseEvaluations(decoded.Choices[0].Message.Content, len(items))
	if err != nil {
		return nil, usage, err
	}
	return evals, usage, nil
}

// Health probes the models listing next to the completions endpoint.
func (c *ChatScorer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelsURL(c.endpoint), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("chat health: unexpected status %s", resp.Status)
	}
	return nil
}

// modelsURL maps ".../v1/chat/completions" to ".../v1/models".
func modelsURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	base = strings.TrimSuffix(base, "/completions")
	base = strings.TrimSuffix(base, "/chat")
	return base + "/models"
}
