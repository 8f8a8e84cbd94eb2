package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"DecideInbox/internal/config"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
	"DecideInbox/internal/scanner"
)

// StrategySource implements ItemSource for one watcher via registered
// scanner strategies.
type StrategySource struct {
	registry  *scanner.Registry
	sources   []config.SourceConfig
	perSource int
	logger    *slog.Logger
}

var _ ports.ItemSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with the watcher's sources.
// perSource caps the items taken from each source (0 = unlimited).
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, perSource int, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry:  reg,
		sources:   sources,
		perSource: perSource,
		logger:    log,
	}
}

// Fetch scans every source. A failing source is logged and skipped; its
// error is joined into the returned error alongside the items that were
// fetched from the others.
func (s *StrategySource) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch", "sources", len(s.sources))

	var (
		aggregated []domain.RawItem
		errs       []error
		seen       = map[string]struct{}{}
	)
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}

		name := src.Name
		if name == "" {
			name = src.URL
		}

		strategy, err := s.registry.Resolve(src.Scanner)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", name, err))
			continue
		}

		results, err := strategy.Scan(ctx, scanner.Request{
			Source:  name,
			URL:     src.URL,
			Options: src.Options,
			Limit:   s.perSource,
		})
		if err != nil {
			s.warn("source fetch failed", "source", name, "scanner", src.Scanner, "error", err)
			errs = append(errs, fmt.Errorf("source %s: %w", name, err))
			continue
		}

		if s.perSource > 0 && len(results) > s.perSource {
			results = results[:s.perSource]
		}
		for _, item := range results {
			if item.SourceName == "" {
				item.SourceName = name
			}
			if item.SourceType == "" {
				item.SourceType = strategy.Name()
			}
			item.ContentHash = domain.ContentHash(item.SourceType, item.ExternalID)
			if _, dup := seen[item.ContentHash]; dup {
				continue
			}
			seen[item.ContentHash] = struct{}{}
			aggregated = append(aggregated, item)
		}
		s.debug("source produced items", "source", name, "count", len(results))
	}

	s.debug("strategy source done", "total_items", len(aggregated), "failed_sources", len(errs))
	return aggregated, errors.Join(errs...)
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
