// Package gateway accepts candidate batches from workers: it deduplicates by
// content hash, routes accepted items and feeds the registry and the
// disclosure counters.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// ErrEmptyBatch is returned for a submission without candidates.
var ErrEmptyBatch = errors.New("empty batch")

// DefaultDedupWindow is how long an accepted content hash blocks re-submission.
const DefaultDedupWindow = 24 * time.Hour

// InboxConfidence is the confidence from which medium-urgency items reach the inbox.
const InboxConfidence = 0.7

// Workers is the slice of the registry the gateway depends on.
type Workers interface {
	Get(ctx context.Context, id string) (domain.WorkerRecord, error)
	MarkActivity(ctx context.Context, id string, ingested, surfaced int) (domain.WorkerRecord, error)
}

// IngestionRecorder receives the accepted count of each batch.
type IngestionRecorder interface {
	RecordIngestion(ctx context.Context, operatorID string, count int) (domain.DisclosureState, error)
}

// Deps wires the gateway collaborators. Notifier is optional.
type Deps struct {
	Workers    Workers
	Dedup      ports.DedupStore
	Inbox      ports.InboxStore
	Disclosure IngestionRecorder
	Activity   ports.ActivitySink
	Notifier   ports.Notifier
	Now        func() time.Time
	Logger     *slog.Logger
}

// Gateway is the ingestion boundary of the coordinator.
type Gateway struct {
	workers    Workers
	dedup      ports.DedupStore
	inbox      ports.InboxStore
	disclosure IngestionRecorder
	activity   ports.ActivitySink
	notifier   ports.Notifier
	now        func() time.Time
	window     time.Duration
	logger     *slog.Logger
	policy     *bluemonday.Policy
}

// New builds a gateway. A non-positive window uses DefaultDedupWindow.
func New(deps Deps, window time.Duration) *Gateway {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Gateway{
		workers:    deps.Workers,
		dedup:      deps.Dedup,
		inbox:      deps.Inbox,
		disclosure: deps.Disclosure,
		activity:   deps.Activity,
		notifier:   deps.Notifier,
		now:        deps.Now,
		window:     window,
		logger:     deps.Logger,
		policy:     bluemonday.StrictPolicy(),
	}
}

// Route decides where an accepted candidate goes. High and critical items
// always reach the inbox; medium ones only from InboxConfidence upwards.
func Route(urgency domain.Urgency, confidence float64) domain.Route {
	switch {
	case urgency.Rank() >= domain.UrgencyHigh.Rank():
		return domain.RouteInbox
	case urgency == domain.UrgencyMedium && confidence >= InboxConfidence:
		return domain.RouteInbox
	default:
		return domain.RouteFeedOnly
	}
}

// workerTally aggregates what one worker achieved in a batch.
type workerTally struct {
	operatorID string
	ingested   int
	surfaced   int
}

// accepted is a candidate whose hash this batch marked.
type accepted struct {
	candidate domain.IngestCandidate
	outcome   domain.Outcome
	at        time.Time
}

// Submit processes candidates in order. Each gets an outcome; store
// failures abort the batch with an error and release the hashes it marked,
// so a retry of the same batch is accepted again.
func (g *Gateway) Submit(ctx context.Context, candidates []domain.IngestCandidate) (domain.SubmitResult, error) {
	if len(candidates) == 0 {
		return domain.SubmitResult{}, ErrEmptyBatch
	}

	var (
		result  = domain.SubmitResult{Outcomes: make([]domain.Outcome, 0, len(candidates))}
		known   = map[string]*domain.WorkerRecord{}
		tallies = map[string]*workerTally{}
		order   []string
		marked  []accepted
		routed  = map[string][]domain.RoutedItem{}
		ops     []string
	)

	for i, c := range candidates {
		worker, err := g.lookup(ctx, known, c.WorkerID)
		if err != nil {
			g.release(ctx, marked, nil)
			return domain.SubmitResult{}, err
		}
		if worker == nil {
			result.Outcomes = append(result.Outcomes, dropped(i, domain.OutcomeUnregistered, "unregistered worker"))
			continue
		}
		tally, ok := tallies[worker.ID]
		if !ok {
			tally = &workerTally{operatorID: worker.OperatorID}
			tallies[worker.ID] = tally
			order = append(order, worker.ID)
		}

		c, reason := g.normalize(c, *worker)
		if reason != "" {
			result.Outcomes = append(result.Outcomes, dropped(i, domain.OutcomeInvalid, reason))
			continue
		}

		now := g.now().UTC()
		fresh, err := g.dedup.MarkSeen(ctx, c.ContentHash, now, g.window)
		if err != nil {
			g.release(ctx, marked, nil)
			return domain.SubmitResult{}, fmt.Errorf("dedup: %w", err)
		}
		if !fresh {
			result.Outcomes = append(result.Outcomes, dropped(i, domain.OutcomeDuplicate, "already seen"))
			continue
		}

		out := domain.Outcome{Index: i, Status: domain.OutcomeAccepted, Route: Route(c.Urgency, c.Confidence)}
		tally.ingested++
		if out.Route == domain.RouteInbox {
			out.ItemID = newID()
			tally.surfaced++
			if _, seen := routed[c.OperatorID]; !seen {
				ops = append(ops, c.OperatorID)
			}
			routed[c.OperatorID] = append(routed[c.OperatorID], domain.RoutedItem{
				ID:         out.ItemID,
				OperatorID: c.OperatorID,
				Candidate:  c,
				Status:     domain.ItemPending,
				RoutedAt:   now,
			})
		}
		marked = append(marked, accepted{candidate: c, outcome: out, at: now})
		result.Outcomes = append(result.Outcomes, out)
		result.Accepted++
	}
	result.Dropped = len(candidates) - result.Accepted

	stored := map[string]bool{}
	for _, op := range ops {
		if err := g.enqueue(ctx, op, routed[op]); err != nil {
			g.release(ctx, marked, stored)
			return domain.SubmitResult{}, err
		}
		stored[op] = true
	}

	for _, a := range marked {
		g.publish(ctx, a.candidate, a.outcome, a.at)
	}
	g.settle(ctx, order, tallies)

	g.debug("batch ingested", "candidates", len(candidates), "accepted", result.Accepted,
		"routed", result.Routed(), "duplicates", result.Duplicates())
	return result, nil
}

// release forgets the hashes of a failed batch, except those of inbox items
// already stored for an operator in stored.
func (g *Gateway) release(ctx context.Context, marked []accepted, stored map[string]bool) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range marked {
		if a.outcome.Route == domain.RouteInbox && stored[a.candidate.OperatorID] {
			continue
		}
		if err := g.dedup.Forget(ctx, a.candidate.ContentHash, a.at); err != nil {
			g.warn("release content hash failed", "hash", a.candidate.ContentHash, "error", err)
		}
	}
}

// lookup resolves the worker once per batch; nil means unregistered.
func (g *Gateway) lookup(ctx context.Context, known map[string]*domain.WorkerRecord, id string) (*domain.WorkerRecord, error) {
	if w, ok := known[id]; ok {
		return w, nil
	}
	if id == "" {
		return nil, nil
	}
	rec, err := g.workers.Get(ctx, id)
	switch {
	case err == nil:
		known[id] = &rec
		return &rec, nil
	case errors.Is(err, ports.ErrUnregistered), errors.Is(err, ports.ErrNotFound):
		known[id] = nil
		return nil, nil
	default:
		return nil, fmt.Errorf("lookup worker %s: %w", id, err)
	}
}

// normalize sanitizes text, binds the candidate to the worker's operator and
// validates required fields. A non-empty reason rejects the candidate.
func (g *Gateway) normalize(c domain.IngestCandidate, worker domain.WorkerRecord) (domain.IngestCandidate, string) {
	c.WorkerID = worker.ID
	c.OperatorID = worker.OperatorID

	c.Title = g.clean(c.Title)
	c.Summary = g.clean(c.Summary)
	c.Detail = g.clean(c.Detail)
	c.SourceName = g.clean(c.SourceName)
	c.SourceType = g.clean(c.SourceType)
	c.SuggestedAction = g.clean(c.SuggestedAction)
	c.SourceURL = strings.TrimSpace(c.SourceURL)
	c.ContentHash = strings.TrimSpace(c.ContentHash)
	c.Tags = g.cleanAll(c.Tags)
	c.SignalKeys = g.cleanAll(c.SignalKeys)

	if c.Title == "" {
		return c, "title is required"
	}
	if c.ContentHash == "" {
		return c, "content_hash is required"
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return c, "confidence must be within [0,1]"
	}
	cat, ok := domain.ParseCategory(string(c.Category))
	if !ok {
		return c, fmt.Sprintf("unknown category %q", c.Category)
	}
	c.Category = cat
	urg, ok := domain.ParseUrgency(string(c.Urgency))
	if !ok {
		return c, fmt.Sprintf("unknown urgency %q", c.Urgency)
	}
	c.Urgency = urg
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = g.now().UTC()
	}
	return c, ""
}

// clean reduces s to plain text the strict policy leaves unchanged, so markup
// hidden behind entity encoding is stripped like literal markup. Input that
// does not settle keeps the sanitizer's escaped output.
func (g *Gateway) clean(s string) string {
	for range 8 {
		text := html.UnescapeString(g.policy.Sanitize(s))
		if text == s {
			return strings.TrimSpace(text)
		}
		s = text
	}
	return strings.TrimSpace(g.policy.Sanitize(s))
}

func (g *Gateway) cleanAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = g.clean(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (g *Gateway) publish(ctx context.Context, c domain.IngestCandidate, out domain.Outcome, now time.Time) {
	if g.activity == nil {
		return
	}
	err := g.activity.Publish(ctx, domain.Activity{
		ID:         newID(),
		OperatorID: c.OperatorID,
		WorkerID:   c.WorkerID,
		ItemID:     out.ItemID,
		Title:      c.Title,
		Category:   c.Category,
		Urgency:    c.Urgency,
		Route:      out.Route,
		SourceName: c.SourceName,
		SignalKeys: c.SignalKeys,
		At:         now,
	})
	if err != nil {
		g.warn("publish activity failed", "operator", c.OperatorID, "error", err)
	}
}

func (g *Gateway) enqueue(ctx context.Context, operatorID string, items []domain.RoutedItem) error {
	evicted, err := g.inbox.AppendRouted(ctx, operatorID, items)
	if err != nil {
		return fmt.Errorf("append inbox %s: %w", operatorID, err)
	}
	for _, it := range evicted {
		g.info("inbox item evicted", "operator", operatorID, "item", it.ID, "status", it.Status)
	}

	if g.notifier == nil {
		return nil
	}
	for _, it := range items {
		if err := g.notifier.NotifyRouted(ctx, it); err != nil {
			g.warn("notify routed item failed", "operator", operatorID, "item", it.ID, "error", err)
		}
	}
	return nil
}

// settle updates worker activity and, once per operator, the disclosure
// ingestion counter. Failures here are logged: the items are already stored.
func (g *Gateway) settle(ctx context.Context, order []string, tallies map[string]*workerTally) {
	perOperator := map[string]int{}
	var operators []string
	for _, id := range order {
		t := tallies[id]
		if _, err := g.workers.MarkActivity(ctx, id, t.ingested, t.surfaced); err != nil {
			g.warn("mark worker activity failed", "worker", id, "error", err)
		}
		if _, seen := perOperator[t.operatorID]; !seen {
			operators = append(operators, t.operatorID)
		}
		perOperator[t.operatorID] += t.ingested
	}

	if g.disclosure == nil {
		return
	}
	for _, op := range operators {
		if _, err := g.disclosure.RecordIngestion(ctx, op, perOperator[op]); err != nil {
			g.warn("record ingestion failed", "operator", op, "error", err)
		}
	}
}

func dropped(i int, status domain.OutcomeStatus, reason string) domain.Outcome {
	return domain.Outcome{Index: i, Status: status, Route: domain.RouteDropped, Reason: reason}
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (g *Gateway) info(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Info(msg, args...)
	}
}

func (g *Gateway) debug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *Gateway) warn(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
