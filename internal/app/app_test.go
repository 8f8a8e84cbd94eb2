package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DecideInbox/internal/config"
	"DecideInbox/internal/infrastructure/llm"
	"DecideInbox/internal/infrastructure/scoring"
	"DecideInbox/internal/infrastructure/storage"
	"DecideInbox/internal/logging"
)

func TestNewScorerByKind(t *testing.T) {
	cfg := config.DefaultCollector().Scorer

	cfg.Kind = config.ScorerInference
	s, err := NewScorer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &scoring.InferenceClient{}, s)

	cfg.Kind = config.ScorerChat
	s, err = NewScorer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.ChatScorer{}, s)

	cfg.Kind = config.ScorerAnthropic
	_, err = NewScorer(cfg)
	require.ErrorIs(t, err, config.ErrInvalid, "anthropic without a key")

	cfg.APIKey = "key"
	s, err = NewScorer(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.AnthropicScorer{}, s)

	cfg.Kind = "oracle"
	_, err = NewScorer(cfg)
	require.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewCollectorRejectsUnknownScanner(t *testing.T) {
	cfg := config.DefaultCollector()
	cfg.OperatorID = "op"
	cfg.Watchers[0].Sources[0].Scanner = "carrier-pigeon"

	_, err := NewCollector(cfg, "test", logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNewCollectorWithDefaults(t *testing.T) {
	cfg := config.DefaultCollector()
	cfg.OperatorID = "op"
	c, err := NewCollector(cfg, "test", logging.Discard())
	require.NoError(t, err)
	require.NotNil(t, c.core)
}

func TestCollectorRunFailsWhenCoordinatorIsDown(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()

	cfg := config.DefaultCollector()
	cfg.OperatorID = "op"
	cfg.Coordinator.URL = down.URL
	c, err := NewCollector(cfg, "test", logging.Discard())
	require.NoError(t, err)

	require.Error(t, c.Run(context.Background()))
}

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultCoordinator()

	s, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.Memory{}, s)

	cfg.Storage = config.StorageConfig{Driver: config.StorageSQLite, Path: filepath.Join(t.TempDir(), "c.db")}
	s, err = OpenStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &storage.SQLite{}, s)
	require.NoError(t, s.Close())

	cfg.Storage.Driver = "etcd"
	_, err = OpenStore(ctx, cfg)
	require.True(t, errors.Is(err, config.ErrInvalid))
}

func TestCoordinatorServesHealth(t *testing.T) {
	c, err := NewCoordinator(context.Background(), config.DefaultCoordinator(), "1.0.0", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
