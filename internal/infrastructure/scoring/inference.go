package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// InferenceClient talks to an HTTP scoring service exposing /score and /health.
type InferenceClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Scorer = (*InferenceClient)(nil)

// NewInferenceClient creates a reusable HTTP client.
func NewInferenceClient(endpoint, apiKey string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InferenceClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type scoreItem struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Text   string   `json:"text"`
	URL    string   `json:"url,omitempty"`
	Source string   `json:"source"`
	Tags   []string `json:"tags,omitempty"`
}

type scoreContext struct {
	OperatorID string   `json:"operator_id"`
	Aspect     string   `json:"aspect"`
	Keywords   []string `json:"keywords,omitempty"`
}

type scoreRequest struct {
	Items   []scoreItem  `json:"items"`
	Context scoreContext `json:"context"`
}

type scoreResponse struct {
	Evaluations []domain.Evaluation `json:"evaluations"`
	Usage       domain.Usage        `json:"usage"`
}

// Evaluate sends the whole batch in one call and expects one evaluation per
// item, in request order.
func (c *InferenceClient) Evaluate(ctx context.Context, items []domain.RawItem, evalCtx domain.EvalContext) ([]domain.Evaluation, domain.Usage, error) {
	if len(items) == 0 {
		return nil, domain.Usage{}, nil
	}

	payload := scoreRequest{
		Items: make([]scoreItem, 0, len(items)),
		Context: scoreContext{
			OperatorID: evalCtx.OperatorID,
			Aspect:     evalCtx.Aspect,
			Keywords:   evalCtx.Keywords,
		},
	}
	for _, it := range items {
		payload.Items = append(payload.Items, scoreItem{
			ID:     it.ContentHash,
			Title:  it.Title,
			Text:   it.Text(),
			URL:    it.URL,
			Source: it.SourceName,
			Tags:   it.Tags,
		})
	}

	var resp scoreResponse
	if err := c.post(ctx, "/score", payload, &resp); err != nil {
		return nil, domain.Usage{Calls: 1}, err
	}
	if len(resp.Evaluations) != len(items) {
		return nil, domain.Usage{Calls: 1}, fmt.Errorf("score: expected %d evaluations, got %d", len(items), len(resp.Evaluations))
	}

	for i := range resp.Evaluations {
		resp.Evaluations[i] = resp.Evaluations[i].Normalize()
	}
	if resp.Usage.Calls == 0 {
		resp.Usage.Calls = 1
	}
	return resp.Evaluations, resp.Usage, nil
}

// Health reports whether the scoring service answers its health probe.
func (c *InferenceClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scorer health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scorer health: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *InferenceClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *InferenceClient) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	if v == nil {
		if err := resp.Body.Close(); err != nil {
			return fmt.Errorf("close response body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
