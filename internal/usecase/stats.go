package usecase

import (
	"sort"
	"strings"
	"sync"

	"DecideInbox/internal/domain"
)

const defaultErrorCap = 10

// Stats aggregates rolling counters between liveness reports. Counters are
// only subtracted once a report carrying them has been acknowledged, so a
// failed report loses nothing.
type Stats struct {
	mu       sync.Mutex
	pending  domain.ReportCounters
	lifetime domain.ReportCounters
	errors   []statsError
	errSeq   uint64
	errCap   int
	tasks    map[string]int
	scorerUp bool
}

type statsError struct {
	seq uint64
	msg string
}

// StatsSnapshot is what one liveness report carries.
type StatsSnapshot struct {
	Counters        domain.ReportCounters
	Errors          []string
	CurrentTask     string
	QueueDepth      int
	ScorerReachable bool

	errSeq uint64
}

// NewStats keeps at most errCap recent error messages (10 when <= 0).
func NewStats(errCap int) *Stats {
	if errCap <= 0 {
		errCap = defaultErrorCap
	}
	return &Stats{errCap: errCap, tasks: map[string]int{}}
}

// Add accumulates counters.
func (s *Stats) Add(c domain.ReportCounters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending.Add(c)
	s.lifetime = s.lifetime.Add(c)
}

// RecordError counts err and keeps its message in the bounded recent list.
func (s *Stats) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Errors++
	s.lifetime.Errors++
	s.errSeq++
	s.errors = append(s.errors, statsError{seq: s.errSeq, msg: err.Error()})
	if over := len(s.errors) - s.errCap; over > 0 {
		s.errors = s.errors[over:]
	}
}

// SetScorerReachable records the outcome of the last scorer interaction.
func (s *Stats) SetScorerReachable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scorerUp = ok
}

// SetTask marks a watcher as running with depth items waiting for evaluation.
func (s *Stats) SetTask(name string, depth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[name] = depth
}

// EndTask marks a watcher as idle.
func (s *Stats) EndTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// Snapshot captures everything accumulated since the last commit.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	depth := 0
	for name, d := range s.tasks {
		names = append(names, name)
		depth += d
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(s.errors))
	for _, e := range s.errors {
		msgs = append(msgs, e.msg)
	}

	return StatsSnapshot{
		Counters:        s.pending,
		Errors:          msgs,
		CurrentTask:     strings.Join(names, ","),
		QueueDepth:      depth,
		ScorerReachable: s.scorerUp,
		errSeq:          s.errSeq,
	}
}

// Commit subtracts a reported snapshot. Anything recorded after the
// snapshot was taken stays pending.
func (s *Stats) Commit(snap StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending.Sub(snap.Counters)
	keep := s.errors[:0]
	for _, e := range s.errors {
		if e.seq > snap.errSeq {
			keep = append(keep, e)
		}
	}
	s.errors = keep
}

// Lifetime returns the totals since process start.
func (s *Stats) Lifetime() domain.ReportCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifetime
}
