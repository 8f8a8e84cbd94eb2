package activity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DecideInbox/internal/domain"
)

func TestFeedIsCappedPerOperator(t *testing.T) {
	feed := NewFeed(2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, feed.Publish(ctx, domain.Activity{ID: id, OperatorID: "op"}))
	}
	require.NoError(t, feed.Publish(ctx, domain.Activity{ID: "x", OperatorID: "other"}))

	got := feed.List("op", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	assert.Len(t, feed.List("op", 1), 1)
	assert.Len(t, feed.List("other", 0), 1)
	assert.Empty(t, feed.List("nobody", 0))
}

func TestConvergingSignalKeys(t *testing.T) {
	feed := NewFeed(10)
	ctx := context.Background()

	require.NoError(t, feed.Publish(ctx, domain.Activity{OperatorID: "op-1", SignalKeys: []string{"go", "wasm"}}))
	require.NoError(t, feed.Publish(ctx, domain.Activity{OperatorID: "op-2", SignalKeys: []string{"go"}}))
	require.NoError(t, feed.Publish(ctx, domain.Activity{OperatorID: "op-2", SignalKeys: []string{"go"}}))

	got := feed.Converging(2)
	assert.Equal(t, map[string][]string{"go": {"op-1", "op-2"}}, got)
}

func TestListDoesNotCreateFeeds(t *testing.T) {
	feed := NewFeed(10)

	for _, op := range []string{"ghost-1", "ghost-2", "ghost-1"} {
		assert.Empty(t, feed.List(op, 0))
	}
	assert.Empty(t, feed.feeds)
	assert.Empty(t, feed.Converging(1))
}
