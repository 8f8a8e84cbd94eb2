package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/infrastructure/scheduler"
	"DecideInbox/internal/infrastructure/storage"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clock   *scheduler.ManualClock
	store   *storage.Memory
	service *Service
}

func newFixture() *fixture {
	clock := scheduler.NewManualClock(epoch)
	store := storage.NewMemory(0)
	return &fixture{
		clock:   clock,
		store:   store,
		service: New(store, Settings{ErrorHistory: 3}, clock.Now, nil),
	}
}

func registration() domain.Registration {
	return domain.Registration{
		OperatorID:   "op-1",
		Name:         "scout@box",
		Aspect:       "scout",
		Host:         "box",
		Platform:     "linux/amd64",
		Capabilities: []string{"feed"},
	}
}

func TestRegisterCreatesThenUpdatesInPlace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, err := f.service.Register(ctx, registration())
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, domain.WorkerOnline, first.Status)
	assert.Equal(t, epoch, first.RegisteredAt)
	assert.Zero(t, first.Counters)

	_, err = f.service.MarkActivity(ctx, first.ID, 4, 1)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	reg := registration()
	reg.Name = "renamed"
	reg.Version = "1.2.0"
	reg.Capabilities = []string{"feed", "github"}
	second, err := f.service.Register(ctx, reg)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "renamed", second.Name)
	assert.Equal(t, "1.2.0", second.Version)
	assert.Equal(t, []string{"feed", "github"}, second.Capabilities)
	assert.Equal(t, epoch, second.RegisteredAt)
	assert.EqualValues(t, 4, second.Counters.ItemsIngested, "counters survive re-registration")
	assert.Equal(t, domain.WorkerOnline, second.Status)

	all, err := f.service.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	reg.Aspect = "analyst"
	third, err := f.service.Register(ctx, reg)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID, "different aspect is a different worker")
}

func TestRegisterRequiresIdentity(t *testing.T) {
	f := newFixture()
	reg := registration()
	reg.Host = ""
	_, err := f.service.Register(context.Background(), reg)
	require.ErrorIs(t, err, ErrInvalidRegistration)
}

func TestHeartbeatStatusAndCounters(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	w, err := f.service.Register(ctx, registration())
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	rec, err := f.service.Heartbeat(ctx, w.ID, domain.HeartbeatReport{
		CurrentTask:     "feeds",
		QueueDepth:      3,
		Counters:        domain.ReportCounters{Tokens: 120},
		UptimeSeconds:   60,
		ScorerReachable: true,
		Errors:          []string{"e1", "e2"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerWorking, rec.Status)
	assert.Equal(t, epoch.Add(time.Minute), rec.LastHeartbeatAt)
	assert.EqualValues(t, 120, rec.Counters.TokensProcessed)

	rec, err = f.service.Heartbeat(ctx, w.ID, domain.HeartbeatReport{
		Counters:      domain.ReportCounters{Tokens: 30},
		UptimeSeconds: 60,
		Errors:        []string{"e3", "e4"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerOnline, rec.Status)
	assert.Empty(t, rec.CurrentTask)
	assert.EqualValues(t, 150, rec.Counters.TokensProcessed)
	assert.EqualValues(t, 120, rec.Counters.UptimeSeconds)
	assert.Equal(t, []string{"e2", "e3", "e4"}, rec.RecentErrors)

	rec, err = f.service.Heartbeat(ctx, w.ID, domain.HeartbeatReport{Status: domain.WorkerOffline})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerOffline, rec.Status)

	_, err = f.service.Heartbeat(ctx, "nope", domain.HeartbeatReport{})
	require.ErrorIs(t, err, ErrUnknownWorker)
}

func TestBumpConfigVersionAndRemove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	w, err := f.service.Register(ctx, registration())
	require.NoError(t, err)

	rec, err := f.service.BumpConfigVersion(ctx, w.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.ConfigVersion)

	require.NoError(t, f.service.Remove(ctx, w.ID))
	_, err = f.service.Get(ctx, w.ID)
	require.ErrorIs(t, err, ErrUnknownWorker)
	require.ErrorIs(t, f.service.Remove(ctx, w.ID), ErrUnknownWorker)
}

func TestReconcileMarksStaleWorkingWorkerOffline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	w, err := f.service.Register(ctx, registration())
	require.NoError(t, err)
	_, err = f.service.Heartbeat(ctx, w.ID, domain.HeartbeatReport{CurrentTask: "feeds"})
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	res, err := f.service.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{w.ID}, res.Offline)

	got, err := f.service.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerOffline, got.Status)

	res, err = f.service.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Offline, "offline workers are skipped")
}

func TestReconcileIdlesOnlyOnlineWorkers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	online, err := f.service.Register(ctx, registration())
	require.NoError(t, err)

	reg := registration()
	reg.Aspect = "analyst"
	working, err := f.service.Register(ctx, reg)
	require.NoError(t, err)
	_, err = f.service.Heartbeat(ctx, working.ID, domain.HeartbeatReport{CurrentTask: "repos"})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	res, err := f.service.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{online.ID}, res.Idle)
	assert.Empty(t, res.Offline)

	got, err := f.service.Get(ctx, working.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerWorking, got.Status)

	f.clock.Advance(time.Minute)
	_, err = f.service.Reconcile(ctx)
	require.NoError(t, err)
	got, err = f.service.Get(ctx, online.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerIdle, got.Status, "sweep never promotes back to online")

	_, err = f.service.Heartbeat(ctx, online.ID, domain.HeartbeatReport{})
	require.NoError(t, err)
	got, err = f.service.Get(ctx, online.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerOnline, got.Status)
}

func TestStalenessLeavesErrorAlone(t *testing.T) {
	f := newFixture()
	rec := domain.WorkerRecord{Status: domain.WorkerError, LastHeartbeatAt: epoch}
	status, changed := f.service.Staleness(rec, epoch.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, domain.WorkerError, status)
}

func TestConcurrentMarkActivityKeepsEveryIncrement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	w, err := f.service.Register(ctx, registration())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.MarkActivity(ctx, w.ID, 3, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.service.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 30, got.Counters.ItemsIngested)
	assert.EqualValues(t, 10, got.Counters.DecisionsSurfaced)
}

func TestReconcilerRunSweepsOnTicks(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := f.service.Register(ctx, registration())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- NewReconciler(f.service, f.clock, 30*time.Second).Run(ctx) }()

	require.Eventually(t, func() bool {
		f.clock.Advance(30 * time.Second)
		got, err := f.service.Get(ctx, w.ID)
		return err == nil && got.Status == domain.WorkerOffline
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
