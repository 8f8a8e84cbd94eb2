package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

type fakeSource struct {
	items []domain.RawItem
	err   error
}

func (f fakeSource) Fetch(context.Context) ([]domain.RawItem, error) {
	return append([]domain.RawItem(nil), f.items...), f.err
}

func rawItems(n int) []domain.RawItem {
	items := make([]domain.RawItem, n)
	for i := range items {
		id := fmt.Sprintf("item-%d", i)
		items[i] = domain.RawItem{
			ExternalID:  id,
			Title:       "Title " + id,
			SourceName:  "blog",
			SourceType:  "feed",
			ContentHash: domain.ContentHash("feed", id),
		}
	}
	return items
}

// fakeScorer returns score for every item; failOn lists call numbers
// (1-based) that fail.
type fakeScorer struct {
	mu        sync.Mutex
	score     float64
	scores    []float64
	failOn    map[int]bool
	calls     int
	healthErr error
}

func (f *fakeScorer) Evaluate(_ context.Context, items []domain.RawItem, _ domain.EvalContext) ([]domain.Evaluation, domain.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn[f.calls] {
		return nil, domain.Usage{Calls: 1}, errors.New("scorer overloaded")
	}
	evals := make([]domain.Evaluation, len(items))
	for i := range items {
		score := f.score
		if i < len(f.scores) {
			score = f.scores[i]
		}
		evals[i] = domain.Evaluation{Score: score, Category: domain.CategoryRelease, Tags: []string{"Go Release"}}.Normalize()
	}
	return evals, domain.Usage{Calls: 1, Tokens: 10}, nil
}

func (f *fakeScorer) Health(context.Context) error { return f.healthErr }

type submitCall struct {
	at         time.Time
	candidates []domain.IngestCandidate
}

type fakeSubmitter struct {
	mu    sync.Mutex
	clock ports.Clock
	calls []submitCall
	err    error
	route  domain.Route
	status domain.OutcomeStatus
}

func (f *fakeSubmitter) Submit(_ context.Context, candidates []domain.IngestCandidate) (domain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submitCall{at: f.clock.Now(), candidates: candidates})
	if f.err != nil {
		return domain.SubmitResult{}, f.err
	}
	route := f.route
	if route == "" {
		route = domain.RouteInbox
	}
	res := domain.SubmitResult{}
	for i := range candidates {
		if f.status != "" && f.status != domain.OutcomeAccepted {
			res.Outcomes = append(res.Outcomes, domain.Outcome{Index: i, Status: f.status, Route: domain.RouteDropped})
			continue
		}
		res.Outcomes = append(res.Outcomes, domain.Outcome{Index: i, Status: domain.OutcomeAccepted, Route: route})
		res.Accepted++
	}
	res.Dropped = len(candidates) - res.Accepted
	return res, nil
}

func (f *fakeSubmitter) Calls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.calls...)
}

type fakeRegistrar struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRegistrar) Register(_ context.Context, reg domain.Registration) (domain.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Ack{}, f.err
	}
	return domain.Ack{WorkerID: "worker-1", Status: domain.WorkerOnline, ConfigVersion: 1}, nil
}

func (f *fakeRegistrar) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []domain.HeartbeatReport
	errs    []error
	block   bool
	version int64
}

func (f *fakeReporter) Heartbeat(ctx context.Context, workerID string, report domain.HeartbeatReport) (domain.Ack, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.Ack{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return domain.Ack{}, err
		}
	}
	return domain.Ack{WorkerID: workerID, ConfigVersion: f.version}, nil
}

func (f *fakeReporter) Reports() []domain.HeartbeatReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HeartbeatReport(nil), f.reports...)
}
