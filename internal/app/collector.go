// Package app wires configuration, adapters and use cases for both binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"DecideInbox/internal/config"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/infrastructure/configwatch"
	"DecideInbox/internal/infrastructure/coordinator"
	"DecideInbox/internal/infrastructure/llm"
	"DecideInbox/internal/infrastructure/parser"
	"DecideInbox/internal/infrastructure/scheduler"
	"DecideInbox/internal/infrastructure/scoring"
	"DecideInbox/internal/ports"
	"DecideInbox/internal/scanner"
	"DecideInbox/internal/usecase"
)

// Collector is the wired collection daemon.
type Collector struct {
	cfg    config.Collector
	core   *usecase.Collector
	logger *slog.Logger
}

// NewCollector builds the daemon from its configuration.
func NewCollector(cfg config.Collector, version string, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scorer, err := NewScorer(cfg.Scorer)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	registry := scanner.NewRegistry()
	registry.Register(parser.NewFeedScanner(httpClient))
	registry.Register(parser.NewGitHubScanner(httpClient, cfg.GitHub.APIBase, cfg.GitHub.Token, cfg.GitHub.RequestsPerMin))
	registry.Register(parser.NewPageScanner(httpClient))

	watchers := make([]usecase.Watcher, 0, len(cfg.Watchers))
	for _, w := range cfg.Watchers {
		for _, src := range w.Sources {
			if _, err := registry.Resolve(src.Scanner); err != nil {
				return nil, fmt.Errorf("watcher %s: source %s: %w", w.Name, src.Name, err)
			}
		}
		watchers = append(watchers, usecase.Watcher{
			Name:       w.Name,
			Interval:   w.Interval.Duration,
			StartDelay: w.StartDelay.Duration,
			Source: parser.NewStrategySource(registry, w.Sources, cfg.Pipeline.MaxItemsPerSource,
				logger.With("component", "source", "watcher", w.Name)),
		})
	}

	client := coordinator.NewClient(cfg.Coordinator.URL, cfg.Coordinator.Token, cfg.Coordinator.Timeout.Duration)
	clock := scheduler.RealClock{}
	stats := usecase.NewStats(0)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Filter:    scoring.NewKeywordFilter(cfg.Keywords.Include, cfg.Keywords.Exclude),
		Scorer:    scorer,
		Submitter: client,
		Clock:     clock,
		Stats:     stats,
		Logger:    logger.With("component", "pipeline"),
	}, usecase.PipelineSettings{
		OperatorID:   cfg.OperatorID,
		Aspect:       cfg.Worker.Aspect,
		BatchSize:    cfg.Pipeline.BatchSize,
		Cooldown:     cfg.Pipeline.Cooldown.Duration,
		MinRelevance: cfg.Pipeline.MinRelevance,
	})

	core := usecase.NewCollector(usecase.CollectorDeps{
		Registrar: client,
		Reporter:  client,
		Scorer:    scorer,
		Pipeline:  pipeline,
		Stats:     stats,
		Clock:     clock,
		Logger:    logger.With("component", "collector"),
	}, usecase.CollectorSettings{
		Registration: domain.Registration{
			OperatorID:   cfg.OperatorID,
			Name:         cfg.Worker.Name,
			Aspect:       cfg.Worker.Aspect,
			Host:         cfg.Worker.Host,
			Platform:     runtime.GOOS + "/" + runtime.GOARCH,
			Model:        cfg.Scorer.Model,
			Version:      version,
			Capabilities: cfg.Worker.Capabilities,
		},
		HeartbeatInterval: cfg.Heartbeat.Interval.Duration,
		ShutdownTimeout:   cfg.Heartbeat.ShutdownTimeout.Duration,
		Watchers:          watchers,
	})

	return &Collector{cfg: cfg, core: core, logger: logger}, nil
}

// NewScorer picks the scoring collaborator named by cfg.Kind.
func NewScorer(cfg config.ScorerConfig) (ports.Scorer, error) {
	switch cfg.Kind {
	case config.ScorerInference:
		return scoring.NewInferenceClient(cfg.Endpoint, cfg.APIKey, cfg.Timeout.Duration), nil
	case config.ScorerChat:
		return llm.NewChatScorer(cfg), nil
	case config.ScorerAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic scorer needs an api key", config.ErrInvalid)
		}
		return llm.NewAnthropicScorer(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown scorer kind %q", config.ErrInvalid, cfg.Kind)
	}
}

// Run registers, checks the scorer and runs until ctx is cancelled. Startup
// failures are returned before any loop starts.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.core.Start(ctx); err != nil {
		return err
	}

	if path := c.cfg.Path(); path != "" {
		c.watchConfig(ctx, path)
	}
	return c.core.Run(ctx)
}

func (c *Collector) watchConfig(ctx context.Context, path string) {
	w, err := configwatch.New(path, 0, c.logger)
	if err != nil {
		c.logger.Warn("config watcher disabled", "path", path, "error", err)
		return
	}
	go func() {
		_ = w.Run(ctx, func(p string) {
			c.logger.Info("configuration file changed; restart the collector to apply", "path", p)
		})
	}()
}
