package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func stores(t *testing.T, inboxCap int) map[string]ports.Store {
	t.Helper()

	lite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "fleet.db"), inboxCap)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })

	return map[string]ports.Store{
		"memory": NewMemory(inboxCap),
		"sqlite": lite,
	}
}

func routed(id, operator string) domain.RoutedItem {
	return domain.RoutedItem{
		ID:         id,
		OperatorID: operator,
		Status:     domain.ItemPending,
		RoutedAt:   t0,
		Candidate:  domain.IngestCandidate{Title: "item " + id, ContentHash: "h-" + id},
	}
}

func TestRegisterWorkerUpsertsByIdentity(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := domain.WorkerIdentity{Host: "box", Aspect: "scout", OperatorID: "op"}

			first, err := store.RegisterWorker(ctx, ident, func(rec *domain.WorkerRecord, exists bool) {
				require.False(t, exists)
				rec.ID = "w-1"
				rec.Host, rec.Aspect, rec.OperatorID = ident.Host, ident.Aspect, ident.OperatorID
				rec.Name = "first"
				rec.RegisteredAt = t0
			})
			require.NoError(t, err)
			assert.Equal(t, "w-1", first.ID)

			second, err := store.RegisterWorker(ctx, ident, func(rec *domain.WorkerRecord, exists bool) {
				require.True(t, exists)
				rec.Name = "second"
			})
			require.NoError(t, err)
			assert.Equal(t, "w-1", second.ID)
			assert.Equal(t, "second", second.Name)

			all, err := store.ListWorkers(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestUpdateWorkerRollsBackOnError(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := domain.WorkerIdentity{Host: "box", Aspect: "scout", OperatorID: "op"}
			_, err := store.RegisterWorker(ctx, ident, func(rec *domain.WorkerRecord, _ bool) {
				rec.ID = "w-1"
				rec.Host, rec.Aspect, rec.OperatorID = ident.Host, ident.Aspect, ident.OperatorID
				rec.Status = domain.WorkerOnline
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			_, err = store.UpdateWorker(ctx, "w-1", func(rec *domain.WorkerRecord) error {
				rec.Status = domain.WorkerError
				return boom
			})
			require.ErrorIs(t, err, boom)

			got, err := store.GetWorker(ctx, "w-1")
			require.NoError(t, err)
			assert.Equal(t, domain.WorkerOnline, got.Status)

			_, err = store.UpdateWorker(ctx, "missing", func(*domain.WorkerRecord) error { return nil })
			require.ErrorIs(t, err, ports.ErrNotFound)

			require.NoError(t, store.DeleteWorker(ctx, "w-1"))
			_, err = store.GetWorker(ctx, "w-1")
			require.ErrorIs(t, err, ports.ErrNotFound)
			require.ErrorIs(t, store.DeleteWorker(ctx, "w-1"), ports.ErrNotFound)
		})
	}
}

func TestConcurrentWorkerUpdatesAreNotLost(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ident := domain.WorkerIdentity{Host: "box", Aspect: "scout", OperatorID: "op"}
			_, err := store.RegisterWorker(ctx, ident, func(rec *domain.WorkerRecord, _ bool) {
				rec.ID = "w-1"
				rec.Host, rec.Aspect, rec.OperatorID = ident.Host, ident.Aspect, ident.OperatorID
			})
			require.NoError(t, err)

			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.UpdateWorker(ctx, "w-1", func(rec *domain.WorkerRecord) error {
						rec.Counters.ItemsIngested++
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := store.GetWorker(ctx, "w-1")
			require.NoError(t, err)
			assert.EqualValues(t, 20, got.Counters.ItemsIngested)
		})
	}
}

func TestMarkSeenWindow(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			window := 24 * time.Hour

			fresh, err := store.MarkSeen(ctx, "h", t0, window)
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = store.MarkSeen(ctx, "h", t0.Add(23*time.Hour), window)
			require.NoError(t, err)
			assert.False(t, fresh, "hash inside the window is a duplicate")

			fresh, err = store.MarkSeen(ctx, "h", t0.Add(25*time.Hour), window)
			require.NoError(t, err)
			assert.True(t, fresh, "expired hash is accepted again")
		})
	}
}

func TestForgetReleasesOnlyItsOwnMark(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			window := 24 * time.Hour

			fresh, err := store.MarkSeen(ctx, "h", t0, window)
			require.NoError(t, err)
			require.True(t, fresh)

			require.NoError(t, store.Forget(ctx, "h", t0.Add(time.Second)), "a different mark time is a no-op")
			fresh, err = store.MarkSeen(ctx, "h", t0.Add(time.Minute), window)
			require.NoError(t, err)
			assert.False(t, fresh)

			require.NoError(t, store.Forget(ctx, "h", t0))
			fresh, err = store.MarkSeen(ctx, "h", t0.Add(time.Minute), window)
			require.NoError(t, err)
			assert.True(t, fresh, "forgotten hash is accepted again")

			require.NoError(t, store.Forget(ctx, "missing", t0))
		})
	}
}

func TestMarkSeenIsAtomic(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for range 16 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := store.MarkSeen(ctx, "same", t0, time.Hour)
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, fresh)
		})
	}
}

func TestInboxCapEvictsOldest(t *testing.T) {
	for name, store := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			evicted, err := store.AppendRouted(ctx, "op", []domain.RoutedItem{routed("a", "op"), routed("b", "op")})
			require.NoError(t, err)
			assert.Empty(t, evicted)

			evicted, err = store.AppendRouted(ctx, "op", []domain.RoutedItem{routed("c", "op"), routed("d", "op")})
			require.NoError(t, err)
			require.Len(t, evicted, 1)
			assert.Equal(t, "a", evicted[0].ID)

			items, err := store.ListRouted(ctx, "op", "", 0)
			require.NoError(t, err)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, []string{"d", "c", "b"}, ids)

			_, err = store.UpdateRouted(ctx, "a", func(*domain.RoutedItem) error { return nil })
			require.ErrorIs(t, err, ports.ErrNotFound)

			other, err := store.ListRouted(ctx, "someone-else", "", 0)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestUpdateRoutedAndStatusFilter(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.AppendRouted(ctx, "op", []domain.RoutedItem{routed("a", "op"), routed("b", "op")})
			require.NoError(t, err)

			decided := t0.Add(time.Minute)
			got, err := store.UpdateRouted(ctx, "a", func(it *domain.RoutedItem) error {
				it.Status = domain.ItemApproved
				it.DecidedAt = &decided
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, domain.ItemApproved, got.Status)

			pending, err := store.ListRouted(ctx, "op", domain.ItemPending, 0)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "b", pending[0].ID)

			limited, err := store.ListRouted(ctx, "op", "", 1)
			require.NoError(t, err)
			require.Len(t, limited, 1)
			assert.Equal(t, "b", limited[0].ID)
		})
	}
}

func TestDisclosureCreatedOnFirstUpdate(t *testing.T) {
	for name, store := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetDisclosure(ctx, "op")
			require.ErrorIs(t, err, ports.ErrNotFound)

			st, err := store.UpdateDisclosure(ctx, "op", func(st *domain.DisclosureState) error {
				assert.Equal(t, domain.StageOnboarding, st.Stage)
				st.TotalDecisions++
				st.Flags["inbox"] = true
				return nil
			})
			require.NoError(t, err)
			assert.EqualValues(t, 1, st.TotalDecisions)

			var wg sync.WaitGroup
			for i := range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.UpdateDisclosure(ctx, "op", func(st *domain.DisclosureState) error {
						st.TotalIngested++
						st.AddActiveDay(fmt.Sprintf("2026-03-%02d", i%3+1))
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			got, err := store.GetDisclosure(ctx, "op")
			require.NoError(t, err)
			assert.EqualValues(t, 10, got.TotalIngested)
			assert.Equal(t, 3, got.DaysActive)
			assert.True(t, got.Flags["inbox"])
		})
	}
}
