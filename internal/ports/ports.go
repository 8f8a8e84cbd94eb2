package ports

import (
	"context"
	"errors"
	"time"

	"DecideInbox/internal/domain"
)

// ErrNotFound is returned by stores when the keyed record does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnregistered is returned to a daemon when the coordinator does not know
// its worker id, for example after the registry was reset.
var ErrUnregistered = errors.New("worker is not registered")

// ItemSource pulls fresh raw items from the sources of one watcher.
// A partial failure returns the items that were fetched together with a
// joined error describing the sources that failed.
type ItemSource interface {
	Fetch(ctx context.Context) ([]domain.RawItem, error)
}

// ItemFilter narrows fetched items before scoring and records the operator
// keywords each kept item matched.
type ItemFilter interface {
	Filter(items []domain.RawItem) []domain.RawItem
	Keywords() []string
}

// Scorer is the scoring collaborator: a black box returning a verdict per item.
type Scorer interface {
	Evaluate(ctx context.Context, items []domain.RawItem, evalCtx domain.EvalContext) ([]domain.Evaluation, domain.Usage, error)
	Health(ctx context.Context) error
}

// Registrar announces a daemon to the coordinator.
type Registrar interface {
	Register(ctx context.Context, reg domain.Registration) (domain.Ack, error)
}

// Reporter pushes liveness reports to the coordinator.
type Reporter interface {
	Heartbeat(ctx context.Context, workerID string, report domain.HeartbeatReport) (domain.Ack, error)
}

// Submitter hands candidates to the ingestion gateway.
type Submitter interface {
	Submit(ctx context.Context, candidates []domain.IngestCandidate) (domain.SubmitResult, error)
}

// Clock controls how loops observe and wait on time.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// WorkerStore persists worker records. Every mutation is an atomic
// read-modify-write keyed by worker id (or by identity on registration).
type WorkerStore interface {
	RegisterWorker(ctx context.Context, identity domain.WorkerIdentity, apply func(rec *domain.WorkerRecord, exists bool)) (domain.WorkerRecord, error)
	UpdateWorker(ctx context.Context, id string, apply func(rec *domain.WorkerRecord) error) (domain.WorkerRecord, error)
	GetWorker(ctx context.Context, id string) (domain.WorkerRecord, error)
	ListWorkers(ctx context.Context, operatorID string) ([]domain.WorkerRecord, error)
	DeleteWorker(ctx context.Context, id string) error
}

// DedupStore is the content-hash index. MarkSeen is a single atomic
// check-and-mark: true means the hash was new (or expired) and is now marked.
// Forget removes a mark made at markedAt; a hash re-marked since is kept.
type DedupStore interface {
	MarkSeen(ctx context.Context, hash string, now time.Time, window time.Duration) (bool, error)
	Forget(ctx context.Context, hash string, markedAt time.Time) error
}

// InboxStore keeps each operator's capped, most-recent-first routed-item queue.
type InboxStore interface {
	AppendRouted(ctx context.Context, operatorID string, items []domain.RoutedItem) (evicted []domain.RoutedItem, err error)
	ListRouted(ctx context.Context, operatorID string, status domain.ItemStatus, limit int) ([]domain.RoutedItem, error)
	UpdateRouted(ctx context.Context, itemID string, apply func(item *domain.RoutedItem) error) (domain.RoutedItem, error)
}

// DisclosureStore keeps per-operator progression records. UpdateDisclosure
// creates the record at the onboarding stage when it does not exist yet.
type DisclosureStore interface {
	UpdateDisclosure(ctx context.Context, operatorID string, apply func(st *domain.DisclosureState) error) (domain.DisclosureState, error)
	GetDisclosure(ctx context.Context, operatorID string) (domain.DisclosureState, error)
}

// Store bundles the service-side persistence contracts.
type Store interface {
	WorkerStore
	DedupStore
	InboxStore
	DisclosureStore
	Close() error
}

// ActivitySink receives the lightweight projection of every accepted candidate.
type ActivitySink interface {
	Publish(ctx context.Context, activity domain.Activity) error
}

// Notifier streams inbox-routed items to Telegram or other channels.
type Notifier interface {
	NotifyRouted(ctx context.Context, item domain.RoutedItem) error
}

// CapabilityProvider reports environment-gated capabilities that may be
// unlocked independent of the disclosure stage.
type CapabilityProvider interface {
	Available(ctx context.Context) []string
}
