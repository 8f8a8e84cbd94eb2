package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// Watcher is one independently scheduled poll loop over a set of sources.
type Watcher struct {
	Name       string
	Interval   time.Duration
	StartDelay time.Duration
	Source     ports.ItemSource
}

// PipelineDeps wires all driven adapters into the collection pipeline.
type PipelineDeps struct {
	Filter    ports.ItemFilter
	Scorer    ports.Scorer
	Submitter ports.Submitter
	Clock     ports.Clock
	Stats     *Stats
	Logger    *slog.Logger
}

// PipelineSettings tunes batching and relevance.
type PipelineSettings struct {
	OperatorID   string
	Aspect       string
	BatchSize    int
	Cooldown     time.Duration
	MinRelevance float64
}

// TickReport summarizes one poll → evaluate → submit pass.
type TickReport struct {
	Watcher    string
	Fetched    int
	Filtered   int
	Batches    int
	Evaluated  int
	Submitted  int
	Accepted   int
	Duplicates int
	Routed     int
	Errors     int
	Duration   time.Duration
}

// Pipeline implements the poll, batch, evaluate and submit workflow.
type Pipeline struct {
	filter    ports.ItemFilter
	scorer    ports.Scorer
	submitter ports.Submitter
	clock     ports.Clock
	stats     *Stats
	logger    *slog.Logger
	settings  PipelineSettings

	mu             sync.RWMutex
	workerID       string
	onUnregistered func(ctx context.Context)
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, settings PipelineSettings) *Pipeline {
	if settings.BatchSize < 1 {
		settings.BatchSize = 1
	}
	if deps.Stats == nil {
		deps.Stats = NewStats(0)
	}
	return &Pipeline{
		filter:    deps.Filter,
		scorer:    deps.Scorer,
		submitter: deps.Submitter,
		clock:     deps.Clock,
		stats:     deps.Stats,
		logger:    deps.Logger,
		settings:  settings,
	}
}

// SetWorkerID records the id assigned by the registry; candidates are
// stamped with it.
func (p *Pipeline) SetWorkerID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workerID = id
}

// OnUnregistered sets the hook run when the coordinator no longer knows the
// worker id a submission was stamped with.
func (p *Pipeline) OnUnregistered(fn func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUnregistered = fn
}

func (p *Pipeline) unregistered(ctx context.Context) {
	p.mu.RLock()
	fn := p.onUnregistered
	p.mu.RUnlock()
	if fn != nil {
		fn(ctx)
	}
}

// WorkerID returns the id assigned by the registry.
func (p *Pipeline) WorkerID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.workerID
}

// RunTick performs one pass for w. Failures are isolated to their scope:
// a failing source is skipped, a failing evaluation skips its batch, and a
// failing submission is dropped until the next tick fetches afresh.
func (p *Pipeline) RunTick(ctx context.Context, w Watcher) TickReport {
	report := TickReport{Watcher: w.Name}
	if w.Source == nil || p.scorer == nil || p.submitter == nil {
		return report
	}

	start := p.clock.Now()
	p.stats.SetTask(w.Name, 0)
	defer p.stats.EndTask(w.Name)

	items, err := w.Source.Fetch(ctx)
	if err != nil {
		report.Errors++
		p.stats.RecordError(fmt.Errorf("%s: fetch: %w", w.Name, err))
		p.warn("fetch incomplete", "watcher", w.Name, "fetched", len(items), "error", err)
	}
	report.Fetched = len(items)
	p.stats.Add(domain.ReportCounters{ItemsFetched: int64(len(items))})

	if p.filter != nil {
		items = p.filter.Filter(items)
	}
	report.Filtered = len(items)
	if len(items) == 0 {
		report.Duration = p.clock.Now().Sub(start)
		return report
	}

	evalCtx := domain.EvalContext{OperatorID: p.settings.OperatorID, Aspect: p.settings.Aspect}
	if p.filter != nil {
		evalCtx.Keywords = p.filter.Keywords()
	}

	remaining := len(items)
	for i, batch := range chunk(items, p.settings.BatchSize) {
		if i > 0 && p.settings.Cooldown > 0 {
			if err := p.clock.Sleep(ctx, p.settings.Cooldown); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}
		p.stats.SetTask(w.Name, remaining)
		remaining -= len(batch)
		report.Batches++

		evals, usage, err := p.scorer.Evaluate(ctx, batch, evalCtx)
		p.stats.Add(domain.ReportCounters{APICalls: usage.Calls, Tokens: usage.Tokens})
		if err != nil {
			report.Errors++
			p.stats.SetScorerReachable(false)
			p.stats.RecordError(fmt.Errorf("%s: evaluate batch %d: %w", w.Name, i, err))
			p.warn("evaluation failed", "watcher", w.Name, "batch", i, "items", len(batch), "error", err)
			continue
		}
		p.stats.SetScorerReachable(true)
		report.Evaluated += len(batch)

		candidates := p.buildCandidates(batch, evals)
		if len(candidates) == 0 {
			p.debug("batch below relevance", "watcher", w.Name, "batch", i)
			continue
		}

		result, err := p.submitter.Submit(ctx, candidates)
		report.Submitted += len(candidates)
		p.stats.Add(domain.ReportCounters{ItemsSubmitted: int64(len(candidates))})
		if err != nil {
			report.Errors++
			p.stats.RecordError(fmt.Errorf("%s: submit batch %d: %w", w.Name, i, err))
			p.warn("submission failed", "watcher", w.Name, "batch", i, "candidates", len(candidates), "error", err)
			if errors.Is(err, ports.ErrUnregistered) {
				p.unregistered(ctx)
			}
			continue
		}
		if n := result.Unregistered(); n > 0 {
			p.warn("coordinator does not know this worker", "watcher", w.Name, "batch", i, "rejected", n)
			p.unregistered(ctx)
		}

		routed := result.Routed()
		report.Accepted += result.Accepted
		report.Duplicates += result.Duplicates()
		report.Routed += routed
		p.stats.Add(domain.ReportCounters{
			ItemsAccepted:     int64(result.Accepted),
			DecisionsSurfaced: int64(routed),
		})
	}

	report.Duration = p.clock.Now().Sub(start)
	return report
}

func (p *Pipeline) buildCandidates(batch []domain.RawItem, evals []domain.Evaluation) []domain.IngestCandidate {
	workerID := p.WorkerID()
	now := p.clock.Now().UTC()

	var out []domain.IngestCandidate
	for i, item := range batch {
		if i >= len(evals) {
			break
		}
		ev := evals[i]
		if ev.Score < p.settings.MinRelevance {
			continue
		}

		summary := ev.Summary
		if summary == "" {
			summary = item.Summary
		}

		out = append(out, domain.IngestCandidate{
			WorkerID:        workerID,
			OperatorID:      p.settings.OperatorID,
			Category:        ev.Category,
			Urgency:         ev.Urgency,
			Confidence:      ev.Score,
			Title:           item.Title,
			Summary:         summary,
			Detail:          ev.Rationale,
			SourceURL:       item.URL,
			SourceName:      item.SourceName,
			SourceType:      item.SourceType,
			SuggestedAction: ev.SuggestedAction,
			Tags:            mergeTags(item.Tags, ev.Tags),
			SignalKeys:      signalKeys(item.Matched, ev.Tags),
			ContentHash:     item.ContentHash,
			DiscoveredAt:    now,
		})
	}
	return out
}

func chunk(items []domain.RawItem, size int) [][]domain.RawItem {
	var out [][]domain.RawItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func mergeTags(a, b []string) []string {
	out := slices.Clone(a)
	for _, t := range b {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func signalKeys(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		for _, v := range g {
			if key := domain.SignalKey(v); key != "" && !slices.Contains(out, key) {
				out = append(out, key)
			}
		}
	}
	return out
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
