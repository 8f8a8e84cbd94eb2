package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"DecideInbox/internal/api"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// ErrUnregistered is returned when the coordinator does not know the worker.
// The daemon may register again.
var ErrUnregistered = ports.ErrUnregistered

// StatusError carries a non-2xx answer from the coordinator.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coordinator returned %d: %s", e.Code, e.Message)
}

// Client is the daemon-side HTTP client for the registry and the gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var (
	_ ports.Registrar = (*Client)(nil)
	_ ports.Reporter  = (*Client)(nil)
	_ ports.Submitter = (*Client)(nil)
)

// NewClient creates a client for the coordinator at baseURL.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Register announces the daemon and returns its assigned id.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (domain.Ack, error) {
	var ack domain.Ack
	if err := c.do(ctx, http.MethodPost, api.PathWorkers, api.RegisterRequest(reg), &ack); err != nil {
		return domain.Ack{}, fmt.Errorf("register: %w", err)
	}
	if ack.WorkerID == "" {
		return domain.Ack{}, fmt.Errorf("register: coordinator returned no worker id")
	}
	return ack, nil
}

// Heartbeat pushes one liveness report.
func (c *Client) Heartbeat(ctx context.Context, workerID string, report domain.HeartbeatReport) (domain.Ack, error) {
	var ack domain.Ack
	if err := c.do(ctx, http.MethodPost, api.HeartbeatPath(workerID), api.HeartbeatRequest(report), &ack); err != nil {
		return domain.Ack{}, fmt.Errorf("heartbeat: %w", err)
	}
	return ack, nil
}

// Submit hands one batch of candidates to the ingestion gateway.
func (c *Client) Submit(ctx context.Context, candidates []domain.IngestCandidate) (domain.SubmitResult, error) {
	var result api.IngestResponse
	if err := c.do(ctx, http.MethodPost, api.PathIngest, api.IngestRequest{Candidates: candidates}, &result); err != nil {
		return domain.SubmitResult{}, fmt.Errorf("submit: %w", err)
	}
	return result, nil
}

// Health checks that the coordinator answers.
func (c *Client) Health(ctx context.Context) error {
	var h api.Health
	if err := c.do(ctx, http.MethodGet, api.PathHealth, nil, &h); err != nil {
		return fmt.Errorf("coordinator health: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, v any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(snippet))
		var apiErr api.Error
		if json.Unmarshal(snippet, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrUnregistered, msg)
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
