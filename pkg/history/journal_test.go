package history

import (
	"context"
	"testing"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/configstore"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, WithLogger(log.NewTestLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndCommitsOrdered(t *testing.T) {
	j := setupJournal(t, "")
	ctx := context.Background()
	base := time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC)

	_, err := j.Append(ctx, Commit{Author: "b", Timestamp: base.Add(2 * time.Hour), Key: "k2"})
	require.NoError(t, err)
	c, err := j.Append(ctx, Commit{Author: "a", Timestamp: base.Add(time.Hour), Key: "k1"})
	require.NoError(t, err)
	assert.Len(t, c.Hash, 32)
	assert.Len(t, c.ShortHash(), 7)

	commits, err := j.Commits(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "k1", commits[0].Key)
	assert.Equal(t, "k2", commits[1].Key)

	commits, err = j.Commits(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "b", commits[0].Author)
}

func TestRecordChangeMessages(t *testing.T) {
	j := setupJournal(t, "")
	ctx := context.Background()
	ts := time.Date(2025, 10, 29, 15, 0, 0, 0, time.UTC)

	cur := types.ConfigRecord{Key: "seo.title", Value: "A", Version: 1, UpdatedBy: "ops", UpdatedAt: ts}
	require.NoError(t, j.RecordChange(ctx, nil, cur))

	prev := cur
	cur = types.ConfigRecord{Key: "seo.title", Value: "B", Version: 2, UpdatedBy: "ops", UpdatedAt: ts.Add(time.Minute)}
	require.NoError(t, j.RecordChange(ctx, &prev, cur))

	require.NoError(t, j.RecordChange(ctx, &cur, types.ConfigRecord{Key: "seo.title", UpdatedBy: "admin", UpdatedAt: ts.Add(2 * time.Minute)}))

	commits, err := j.Commits(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "config: create seo.title", commits[0].Message)
	assert.Equal(t, "config: update seo.title (v1 -> v2)", commits[1].Message)
	assert.Equal(t, "A", commits[1].PreviousValue)
	assert.True(t, commits[2].Deleted)
	assert.Equal(t, "admin", commits[2].Author)
}

func TestKeyHistoryDeduplicatesValues(t *testing.T) {
	j := setupJournal(t, "")
	ctx := context.Background()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []string{"A", "A", "B", "B", "A"} {
		_, err := j.Append(ctx, Commit{Key: "k", Value: v, Version: i + 1, Timestamp: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}
	_, err := j.Append(ctx, Commit{Key: "other", Value: "x", Timestamp: base})
	require.NoError(t, err)

	hist, err := j.KeyHistory(ctx, "k")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []int{5, 3, 1}, []int{hist[0].Version, hist[1].Version, hist[2].Version})
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, WithLogger(log.NewTestLogger()))
	require.NoError(t, err)
	_, err = j.Append(context.Background(), Commit{Key: "k", Value: "v"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j = setupJournal(t, dir)
	commits, err := j.Commits(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "v", commits[0].Value)
}

func TestJournalAsStoreRecorder(t *testing.T) {
	j := setupJournal(t, "")
	now := time.Date(2025, 10, 29, 15, 0, 0, 0, time.UTC)
	cs, err := configstore.New(context.Background(), store.NewMemoryStorage(nil),
		configstore.WithRecorder(j),
		configstore.WithClock(func() time.Time { return now }),
		configstore.WithLogger(log.NewTestLogger()))
	require.NoError(t, err)

	_, err = cs.Update(context.Background(), "theme.color", "blue", "ops@example.com")
	require.NoError(t, err)
	_, err = cs.Update(context.Background(), "theme.color", "red", "ops@example.com")
	require.NoError(t, err)
	require.NoError(t, cs.Delete(context.Background(), "theme.color", "ops@example.com"))

	commits, err := j.Commits(context.Background(), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "ops@example.com", commits[1].Author)
	assert.Equal(t, "blue", commits[1].PreviousValue)
	assert.True(t, commits[2].Deleted)
}
