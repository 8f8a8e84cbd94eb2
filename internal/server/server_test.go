package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DecideInbox/internal/activity"
	"DecideInbox/internal/api"
	"DecideInbox/internal/disclosure"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/gateway"
	"DecideInbox/internal/inbox"
	"DecideInbox/internal/infrastructure/coordinator"
	"DecideInbox/internal/infrastructure/scheduler"
	"DecideInbox/internal/infrastructure/storage"
	"DecideInbox/internal/logging"
	"DecideInbox/internal/registry"
)

const token = "s3cret"

var epoch = time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()

	clock := scheduler.NewManualClock(epoch)
	store := storage.NewMemory(0)
	feed := activity.NewFeed(0)
	reg := registry.New(store, registry.Settings{}, clock.Now, nil)
	machine := disclosure.NewMachine(store, nil, time.UTC, clock.Now, nil)
	gw := gateway.New(gateway.Deps{
		Workers:    reg,
		Dedup:      store,
		Inbox:      store,
		Disclosure: machine,
		Activity:   feed,
		Now:        clock.Now,
	}, 0)

	opts.Logger = logging.Discard()
	srv := httptest.NewServer(New(Services{
		Registry:   reg,
		Gateway:    gw,
		Inbox:      inbox.New(store, machine, clock.Now, nil),
		Disclosure: machine,
		Feed:       feed,
	}, opts))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func registration() domain.Registration {
	return domain.Registration{OperatorID: "op", Aspect: "scout", Host: "box", Name: "scout@box"}
}

func TestDaemonRoundTrip(t *testing.T) {
	srv := newTestServer(t, Options{WorkerToken: token})
	ctx := context.Background()
	client := coordinator.NewClient(srv.URL, token, time.Second)

	require.NoError(t, client.Health(ctx))

	ack, err := client.Register(ctx, registration())
	require.NoError(t, err)
	require.NotEmpty(t, ack.WorkerID)
	assert.Equal(t, domain.WorkerOnline, ack.Status)

	res, err := client.Submit(ctx, []domain.IngestCandidate{
		{WorkerID: ack.WorkerID, Category: domain.CategoryRelease, Urgency: domain.UrgencyHigh, Confidence: 0.9, Title: "Go 1.26", ContentHash: "h1"},
		{WorkerID: ack.WorkerID, Category: domain.CategoryTrend, Urgency: domain.UrgencyLow, Confidence: 0.4, Title: "Chatter", ContentHash: "h2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Routed())

	hb, err := client.Heartbeat(ctx, ack.WorkerID, domain.HeartbeatReport{CurrentTask: "feeds"})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkerWorking, hb.Status)

	_, err = client.Heartbeat(ctx, "ghost", domain.HeartbeatReport{})
	require.ErrorIs(t, err, coordinator.ErrUnregistered)

	var list api.InboxList
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+api.InboxPath("op")+"?status=pending", nil, &list))
	require.Len(t, list.Items, 1)
	itemID := list.Items[0].ID

	var decided domain.RoutedItem
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+api.DecisionPath(itemID), api.DecisionRequest{Status: domain.ItemApproved}, &decided))
	assert.Equal(t, domain.ItemApproved, decided.Status)

	var apiErr api.Error
	assert.Equal(t, http.StatusConflict, call(t, http.MethodPost, srv.URL+api.DecisionPath(itemID), api.DecisionRequest{Status: domain.ItemIgnored}, &apiErr))
	assert.Contains(t, apiErr.Error, "already decided")

	var st domain.DisclosureState
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+api.DisclosurePath("op"), nil, &st))
	assert.EqualValues(t, 1, st.TotalDecisions)
	assert.EqualValues(t, 2, st.TotalIngested)

	var feed api.FeedList
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+api.FeedPath("op")+"?limit=10", nil, &feed))
	assert.Len(t, feed.Activities, 2)
}

func TestWorkerRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, Options{WorkerToken: token})

	_, err := coordinator.NewClient(srv.URL, "wrong", time.Second).Register(context.Background(), registration())
	var se *coordinator.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	resp, err := http.Get(srv.URL + api.PathHealth)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health stays public")
}

func TestWorkerRoutesAreRateLimited(t *testing.T) {
	srv := newTestServer(t, Options{RatePerSecond: 0.001, Burst: 2})
	ctx := context.Background()
	client := coordinator.NewClient(srv.URL, "", time.Second)

	ack, err := client.Register(ctx, registration())
	require.NoError(t, err)

	var lastErr error
	for range 3 {
		_, lastErr = client.Heartbeat(ctx, ack.WorkerID, domain.HeartbeatReport{})
	}
	var se *coordinator.StatusError
	require.True(t, errors.As(lastErr, &se), "got %v", lastErr)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestOnboardingAndCelebration(t *testing.T) {
	srv := newTestServer(t, Options{})

	var st domain.DisclosureState
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+api.OnboardingPath("op"), nil, &st))
	assert.Equal(t, domain.StageActivation, st.Stage)
	assert.Equal(t, "activation", st.PendingCelebration)

	var acked domain.DisclosureState
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+api.CelebrationAckPath("op"), nil, &acked))
	assert.Empty(t, acked.PendingCelebration)
	assert.Equal(t, domain.StageActivation, acked.Stage)

	var again domain.DisclosureState
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+api.OnboardingPath("op"), nil, &again))
	assert.Len(t, again.History, 1)
	assert.Empty(t, again.PendingCelebration, "repeated onboarding does not celebrate again")
}

func TestWorkerAdministration(t *testing.T) {
	srv := newTestServer(t, Options{})
	ctx := context.Background()
	ack, err := coordinator.NewClient(srv.URL, "", time.Second).Register(ctx, registration())
	require.NoError(t, err)

	var bumped domain.Ack
	require.Equal(t, http.StatusOK, call(t, http.MethodPost, srv.URL+api.ConfigVersionPath(ack.WorkerID), nil, &bumped))
	assert.EqualValues(t, 1, bumped.ConfigVersion)

	var workers api.WorkerList
	require.Equal(t, http.StatusOK, call(t, http.MethodGet, srv.URL+api.PathWorkers+"?operator=op", nil, &workers))
	require.Len(t, workers.Workers, 1)

	assert.Equal(t, http.StatusNoContent, call(t, http.MethodDelete, srv.URL+api.WorkerPath(ack.WorkerID), nil, nil))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodGet, srv.URL+api.WorkerPath(ack.WorkerID), nil, &api.Error{}))
}

func TestBadRequests(t *testing.T) {
	srv := newTestServer(t, Options{})

	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, srv.URL+api.PathIngest, api.IngestRequest{}, &api.Error{}))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodPost, srv.URL+api.PathWorkers, domain.Registration{OperatorID: "op"}, &api.Error{}))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, srv.URL+api.InboxPath("op")+"?limit=ten", nil, &api.Error{}))
	assert.Equal(t, http.StatusBadRequest, call(t, http.MethodGet, srv.URL+api.InboxPath("op")+"?status=maybe", nil, &api.Error{}))
	assert.Equal(t, http.StatusNotFound, call(t, http.MethodPost, srv.URL+api.DecisionPath("nope"), api.DecisionRequest{Status: domain.ItemApproved}, &api.Error{}))
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusNotFound, statusOf(registry.ErrUnknownWorker))
	assert.Equal(t, http.StatusConflict, statusOf(inbox.ErrAlreadyDecided))
	assert.Equal(t, http.StatusBadRequest, statusOf(gateway.ErrEmptyBatch))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("disk full")))
}
