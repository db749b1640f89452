package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-battle-service/internal/domain"
)

func TestLedgerAppendDedupsAndOrders(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	ledger := NewLedger(client)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	later := domain.ActivityRecord{UserID: "u1", Type: domain.ActivityQuizCompleted, OccurredAt: base.Add(24 * time.Hour), Date: "2024-03-02", XPDelta: 30, DedupKey: "b"}
	earlier := domain.ActivityRecord{UserID: "u1", Type: domain.ActivityBattleWin, OccurredAt: base, Date: "2024-03-01", XPDelta: 50, DedupKey: "a"}
	require.NoError(t, ledger.Append(ctx, later))
	require.NoError(t, ledger.Append(ctx, earlier))
	assert.ErrorIs(t, ledger.Append(ctx, earlier), domain.ErrDuplicateActivity)
	require.NoError(t, ledger.Append(ctx, domain.ActivityRecord{UserID: "u2", OccurredAt: base, DedupKey: "a"}))

	all, err := ledger.List(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].DedupKey)
	assert.True(t, all[0].OccurredAt.Equal(base))
	assert.Equal(t, int64(50), all[0].XPDelta)

	window, err := ledger.List(ctx, "u1", base.Add(time.Hour), base.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b", window[0].DedupKey)
}

func TestProfileStoreVersions(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	store := NewProfileStore(client)

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, int64(0), p.Version)

	p.Version = 1
	p.Streak.CurrentStreak = 3
	require.NoError(t, store.UpdateProfileIfVersion(ctx, p, 0))
	assert.ErrorIs(t, store.UpdateProfileIfVersion(ctx, p, 0), domain.ErrVersionConflict)

	got, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Streak.CurrentStreak)
	assert.Equal(t, int64(1), got.Version)
}

func TestTopicDirectory(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	dir := NewTopicDirectory(client)

	require.NoError(t, dir.MarkCompleted(ctx, "u1", "sql", "go"))
	topics, err := dir.CompletedTopics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, topics)

	none, err := dir.CompletedTopics(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
