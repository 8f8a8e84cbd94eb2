package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"DecideInbox/internal/capped"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// Memory is an in-process Store. Each worker and each operator has its own
// lock, so mutations on different keys never serialize against each other.
type Memory struct {
	mu          sync.RWMutex
	workers     map[string]*workerEntry
	identities  map[domain.WorkerIdentity]string
	inboxes     map[string]*capped.List[domain.RoutedItem]
	itemOwners  map[string]string
	disclosures map[string]*disclosureEntry
	inboxCap    int

	registerMu sync.Mutex

	dedupMu sync.Mutex
	seen    map[string]time.Time
}

type workerEntry struct {
	mu      sync.Mutex
	rec     domain.WorkerRecord
	deleted bool
}

type disclosureEntry struct {
	mu    sync.Mutex
	state domain.DisclosureState
}

var _ ports.Store = (*Memory)(nil)

// NewMemory returns an empty store whose per-operator inbox holds at most
// inboxCap items.
func NewMemory(inboxCap int) *Memory {
	if inboxCap < 1 {
		inboxCap = DefaultInboxCap
	}
	return &Memory{
		workers:     map[string]*workerEntry{},
		identities:  map[domain.WorkerIdentity]string{},
		inboxes:     map[string]*capped.List[domain.RoutedItem]{},
		itemOwners:  map[string]string{},
		disclosures: map[string]*disclosureEntry{},
		inboxCap:    inboxCap,
		seen:        map[string]time.Time{},
	}
}

// RegisterWorker upserts by identity. Registrations are serialized so two
// concurrent registrations of the same identity cannot both create a record.
func (m *Memory) RegisterWorker(_ context.Context, identity domain.WorkerIdentity, apply func(rec *domain.WorkerRecord, exists bool)) (domain.WorkerRecord, error) {
	m.registerMu.Lock()
	defer m.registerMu.Unlock()

	m.mu.RLock()
	id, exists := m.identities[identity]
	entry := m.workers[id]
	m.mu.RUnlock()

	if exists && entry != nil {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		rec := entry.rec.Clone()
		apply(&rec, true)
		entry.rec = rec
		return rec.Clone(), nil
	}

	var rec domain.WorkerRecord
	apply(&rec, false)
	if rec.ID == "" {
		return domain.WorkerRecord{}, fmt.Errorf("register worker: no id assigned")
	}

	m.mu.Lock()
	m.workers[rec.ID] = &workerEntry{rec: rec.Clone()}
	m.identities[identity] = rec.ID
	m.mu.Unlock()
	return rec.Clone(), nil
}

// UpdateWorker applies fn under the worker's lock; an fn error aborts the update.
func (m *Memory) UpdateWorker(_ context.Context, id string, apply func(rec *domain.WorkerRecord) error) (domain.WorkerRecord, error) {
	m.mu.RLock()
	entry := m.workers[id]
	m.mu.RUnlock()
	if entry == nil {
		return domain.WorkerRecord{}, ports.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.WorkerRecord{}, ports.ErrNotFound
	}
	rec := entry.rec.Clone()
	if err := apply(&rec); err != nil {
		return entry.rec.Clone(), err
	}
	entry.rec = rec
	return rec.Clone(), nil
}

// GetWorker returns a copy of the record.
func (m *Memory) GetWorker(_ context.Context, id string) (domain.WorkerRecord, error) {
	m.mu.RLock()
	entry := m.workers[id]
	m.mu.RUnlock()
	if entry == nil {
		return domain.WorkerRecord{}, ports.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.deleted {
		return domain.WorkerRecord{}, ports.ErrNotFound
	}
	return entry.rec.Clone(), nil
}

// ListWorkers returns the workers of operatorID (all when empty), oldest first.
func (m *Memory) ListWorkers(_ context.Context, operatorID string) ([]domain.WorkerRecord, error) {
	m.mu.RLock()
	entries := make([]*workerEntry, 0, len(m.workers))
	for _, e := range m.workers {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]domain.WorkerRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted && (operatorID == "" || e.rec.OperatorID == operatorID) {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sortWorkers(out)
	return out, nil
}

// DeleteWorker removes the record and frees its identity.
func (m *Memory) DeleteWorker(_ context.Context, id string) error {
	m.mu.Lock()
	entry := m.workers[id]
	if entry == nil {
		m.mu.Unlock()
		return ports.ErrNotFound
	}
	delete(m.workers, id)
	m.mu.Unlock()

	entry.mu.Lock()
	entry.deleted = true
	identity := entry.rec.Identity()
	entry.mu.Unlock()

	m.mu.Lock()
	if m.identities[identity] == id {
		delete(m.identities, identity)
	}
	m.mu.Unlock()
	return nil
}

// MarkSeen is the atomic dedup check-and-mark. Expired hashes are pruned on
// every call.
func (m *Memory) MarkSeen(_ context.Context, hash string, now time.Time, window time.Duration) (bool, error) {
	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()

	cutoff := now.Add(-window)
	for h, first := range m.seen {
		if first.Before(cutoff) {
			delete(m.seen, h)
		}
	}

	if first, ok := m.seen[hash]; ok && !first.Before(cutoff) {
		return false, nil
	}
	m.seen[hash] = now
	return true, nil
}

// Forget drops the mark for hash if it was made at markedAt.
func (m *Memory) Forget(_ context.Context, hash string, markedAt time.Time) error {
	m.dedupMu.Lock()
	defer m.dedupMu.Unlock()

	if first, ok := m.seen[hash]; ok && first.Equal(markedAt) {
		delete(m.seen, hash)
	}
	return nil
}

// AppendRouted pushes items onto the operator's capped inbox and returns
// whatever fell off the end.
func (m *Memory) AppendRouted(_ context.Context, operatorID string, items []domain.RoutedItem) ([]domain.RoutedItem, error) {
	if len(items) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	inbox := m.inboxes[operatorID]
	if inbox == nil {
		inbox = capped.New[domain.RoutedItem](m.inboxCap, nil)
		m.inboxes[operatorID] = inbox
	}
	for _, it := range items {
		m.itemOwners[it.ID] = operatorID
	}
	m.mu.Unlock()

	evicted := inbox.Push(items...)

	if len(evicted) > 0 {
		m.mu.Lock()
		for _, it := range evicted {
			delete(m.itemOwners, it.ID)
		}
		m.mu.Unlock()
	}
	return evicted, nil
}

// ListRouted returns inbox items newest first, optionally filtered by status.
func (m *Memory) ListRouted(_ context.Context, operatorID string, status domain.ItemStatus, limit int) ([]domain.RoutedItem, error) {
	m.mu.RLock()
	inbox := m.inboxes[operatorID]
	m.mu.RUnlock()
	if inbox == nil {
		return []domain.RoutedItem{}, nil
	}

	out := make([]domain.RoutedItem, 0)
	for _, it := range inbox.Items() {
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, it)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateRouted applies fn to one routed item under its inbox lock.
func (m *Memory) UpdateRouted(_ context.Context, itemID string, apply func(item *domain.RoutedItem) error) (domain.RoutedItem, error) {
	m.mu.RLock()
	owner, ok := m.itemOwners[itemID]
	inbox := m.inboxes[owner]
	m.mu.RUnlock()
	if !ok || inbox == nil {
		return domain.RoutedItem{}, ports.ErrNotFound
	}

	item, found, err := inbox.Update(func(it domain.RoutedItem) bool { return it.ID == itemID }, apply)
	if !found {
		return domain.RoutedItem{}, ports.ErrNotFound
	}
	return item, err
}

// UpdateDisclosure applies fn under the operator's lock, creating the record
// at the onboarding stage when it does not exist yet.
func (m *Memory) UpdateDisclosure(_ context.Context, operatorID string, apply func(st *domain.DisclosureState) error) (domain.DisclosureState, error) {
	m.mu.Lock()
	entry := m.disclosures[operatorID]
	if entry == nil {
		entry = &disclosureEntry{state: domain.NewDisclosureState(operatorID, time.Time{})}
		m.disclosures[operatorID] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	st := entry.state.Clone()
	if err := apply(&st); err != nil {
		return entry.state.Clone(), err
	}
	entry.state = st
	return st.Clone(), nil
}

// GetDisclosure returns a copy of the operator's record.
func (m *Memory) GetDisclosure(_ context.Context, operatorID string) (domain.DisclosureState, error) {
	m.mu.RLock()
	entry := m.disclosures[operatorID]
	m.mu.RUnlock()
	if entry == nil {
		return domain.DisclosureState{}, ports.ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state.Clone(), nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func sortWorkers(ws []domain.WorkerRecord) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].RegisteredAt.Equal(ws[j].RegisteredAt) {
			return ws[i].RegisteredAt.Before(ws[j].RegisteredAt)
		}
		return ws[i].ID < ws[j].ID
	})
}
