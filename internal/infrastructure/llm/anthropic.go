package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"DecideInbox/internal/config"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicMaxTokens    = 2048
)

// AnthropicScorer implements ports.Scorer with the Anthropic Messages API.
type AnthropicScorer struct {
	client       anthropic.Client
	model        string
	systemPrompt string
}

var _ ports.Scorer = (*AnthropicScorer)(nil)

// NewAnthropicScorer builds a scorer; cfg.Endpoint overrides the API base URL.
func NewAnthropicScorer(cfg config.ScorerConfig) *AnthropicScorer {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.Timeout.Duration > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicScorer{
		client:       anthropic.NewClient(opts...),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Evaluate sends the batch as one message and parses the JSON answer.
func (a *AnthropicScorer) Evaluate(ctx context.Context, items []domain.RawItem, evalCtx domain.EvalContext) ([]domain.Evaluation, domain.Usage, error) {
	if len(items) == 0 {
		return nil, domain.Usage{}, nil
	}

	usage := domain.Usage{Calls: 1}
	response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: safePrompt(a.systemPrompt)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserPrompt(items, evalCtx))),
		},
	})
	if err != nil {
		return nil, usage, fmt.Errorf("anthropic API call failed: %w", err)
	}
	usage.Tokens = response.Usage.InputTokens + response.Usage.OutputTokens

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	evals, err := parseEvaluations(text, len(items))
	if err != nil {
		return nil, usage, err
	}
	return evals, usage, nil
}

// Health checks that the configured model is visible to the API key.
func (a *AnthropicScorer) Health(ctx context.Context) error {
	if _, err := a.client.Models.Get(ctx, a.model, anthropic.ModelGetParams{}); err != nil {
		return fmt.Errorf("anthropic health: %w", err)
	}
	return nil
}
