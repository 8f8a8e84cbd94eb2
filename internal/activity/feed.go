// Package activity keeps the per-operator feed of accepted candidates.
package activity

import (
	"context"
	"slices"
	"sync"

	"DecideInbox/internal/capped"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// DefaultCap bounds each operator's feed when no cap is configured.
const DefaultCap = 500

// Feed is an in-memory ActivitySink. Each operator's feed is a capped,
// most-recent-first list.
type Feed struct {
	mu    sync.Mutex
	cap   int
	feeds map[string]*capped.List[domain.Activity]
}

var _ ports.ActivitySink = (*Feed)(nil)

// NewFeed returns an empty feed keeping at most capacity activities per operator.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = DefaultCap
	}
	return &Feed{cap: capacity, feeds: map[string]*capped.List[domain.Activity]{}}
}

// Publish prepends the activity to its operator's feed.
func (f *Feed) Publish(_ context.Context, a domain.Activity) error {
	f.list(a.OperatorID).Push(a)
	return nil
}

// List returns up to limit activities, newest first. A non-positive limit
// returns the whole feed.
func (f *Feed) List(operatorID string, limit int) []domain.Activity {
	f.mu.Lock()
	l := f.feeds[operatorID]
	f.mu.Unlock()
	if l == nil {
		return nil
	}

	items := l.Items()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Converging returns signal keys seen from at least minOperators distinct
// operators, mapped to those operators.
func (f *Feed) Converging(minOperators int) map[string][]string {
	f.mu.Lock()
	lists := make(map[string]*capped.List[domain.Activity], len(f.feeds))
	for op, l := range f.feeds {
		lists[op] = l
	}
	f.mu.Unlock()

	byKey := map[string]map[string]struct{}{}
	for op, l := range lists {
		for _, a := range l.Items() {
			for _, key := range a.SignalKeys {
				if byKey[key] == nil {
					byKey[key] = map[string]struct{}{}
				}
				byKey[key][op] = struct{}{}
			}
		}
	}

	out := map[string][]string{}
	for key, ops := range byKey {
		if len(ops) < max(minOperators, 1) {
			continue
		}
		for op := range ops {
			out[key] = append(out[key], op)
		}
		slices.Sort(out[key])
	}
	return out
}

func (f *Feed) list(operatorID string) *capped.List[domain.Activity] {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.feeds[operatorID]
	if l == nil {
		l = capped.New[domain.Activity](f.cap, nil)
		f.feeds[operatorID] = l
	}
	return l
}
