package configstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/log"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/store"
	"github.com/HenzeLabs/lab-ess-headless-sub002/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedTable = `key,value,updated_by,updated_at,version
security.rateLimit.api.maxRequests,60,system,2025-10-20T10:00:00.000Z,3
seo.siteUrl,https://labessentials.com,system,2025-10-21T10:00:00.000Z,1
features.quiz.enabled,true,system,2025-10-22T10:00:00.000Z,2
seo.title,Lab Essentials,system,2025-10-19T10:00:00.000Z,1
NEXT_PUBLIC_GA_MEASUREMENT_ID,G-TEST,system,2025-10-18T10:00:00.000Z,1
`

type recordingRecorder struct {
	mu      sync.Mutex
	changes []types.ConfigRecord
	err     error
}

func (r *recordingRecorder) RecordChange(_ context.Context, _ *types.ConfigRecord, current types.ConfigRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, current)
	return r.err
}

func setupTestStore(t *testing.T, seed string, opts ...Option) (*Store, *store.MemoryStorage) {
	t.Helper()
	var data []byte
	if seed != "" {
		data = []byte(seed)
	}
	mem := store.NewMemoryStorage(data)
	fixed := time.Date(2025, 10, 29, 15, 0, 0, 0, time.UTC)
	opts = append([]Option{WithLogger(log.NewTestLogger()), WithClock(func() time.Time { return fixed })}, opts...)
	s, err := New(context.Background(), mem, opts...)
	require.NoError(t, err)
	return s, mem
}

func TestUpdateIncrementsVersionAndPersists(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	ctx := context.Background()

	res, err := s.Update(ctx, "security.rateLimit.api.maxRequests", "120", "ops@example.com")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.Record.Version)
	assert.Equal(t, 3, res.PreviousVersion)
	assert.Equal(t, "ops@example.com", res.Record.UpdatedBy)

	assert.Equal(t, 120, s.GetInt("security.rateLimit.api.maxRequests", 0))
	assert.Equal(t, 120.0, s.GetNumber("security.rateLimit.api.maxRequests", 0))

	persisted, err := store.Decode(mem.Bytes())
	require.NoError(t, err)
	var found bool
	for _, r := range persisted {
		if r.Key == "security.rateLimit.api.maxRequests" {
			found = true
			assert.Equal(t, "120", r.Value)
			assert.Equal(t, 4, r.Version)
			assert.Equal(t, "ops@example.com", r.UpdatedBy)
		}
	}
	assert.True(t, found)
}

func TestUpdateCreatesNewKeyAtVersionOne(t *testing.T) {
	s, _ := setupTestStore(t, seedTable)

	res, err := s.Update(context.Background(), "seo.description", "Microscopes and more", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Record.Version)
	assert.Equal(t, DefaultActor, res.Record.UpdatedBy)
	assert.Equal(t, 0, res.PreviousVersion)
}

func TestUpdateOnMissingTableCreatesIt(t *testing.T) {
	s, mem := setupTestStore(t, "")

	_, err := s.Update(context.Background(), "seo.title", "Lab", "ops")
	require.NoError(t, err)
	assert.Contains(t, string(mem.Bytes()), "key,value,updated_by,updated_at,version")
}

func TestUpdateValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		msg   string
	}{
		{"empty value", "seo.title", "", MsgEmptyValue},
		{"whitespace value", "seo.title", "   ", MsgEmptyValue},
		{"negative number", "security.rateLimit.api.maxRequests", "-5", MsgPositiveNumber},
		{"zero window", "security.rateLimit.api.windowMs", "0", MsgPositiveNumber},
		{"non numeric", "security.rateLimit.api.maxRequests", "lots", MsgPositiveNumber},
		{"bad url", "seo.siteUrl", "not a url", MsgURL},
		{"relative url", "seo.canonical.url", "/home", MsgURL},
		{"bad bool", "features.quiz.enabled", "yes", MsgBool},
		{"capitalised bool", "seo.noindex", "True", MsgBool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mem := setupTestStore(t, seedTable)
			before := mem.Bytes()

			res, err := s.Update(context.Background(), tt.key, tt.value, "ops")
			require.Error(t, err)
			assert.True(t, types.IsValidationError(err))
			assert.False(t, res.Success)
			assert.Equal(t, tt.msg, res.Error)
			assert.Equal(t, before, mem.Bytes())
		})
	}
}

func TestUpdateProtectedKeyCheckedBeforeValue(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	before := mem.Bytes()

	for _, key := range []string{"NEXT_PUBLIC_GA_MEASUREMENT_ID", "CONFIG_ADMIN_TOKEN", "legacy.ADMIN_TOKEN.value"} {
		res, err := s.Update(context.Background(), key, "", "ops")
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrPermissionDenied)
		assert.False(t, res.Success)
	}
	assert.Equal(t, before, mem.Bytes())
	assert.Equal(t, "G-TEST", s.GetString("NEXT_PUBLIC_GA_MEASUREMENT_ID", ""))
}

func TestUpdatePersistFailureKeepsReadersOnOldValue(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	mem.FailWrites = true

	_, err := s.Update(context.Background(), "seo.title", "New Title", "ops")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransferFailed)
	assert.Equal(t, "Lab Essentials", s.GetString("seo.title", ""))
}

func TestConcurrentUpdatesAreSerialised(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Update(ctx, "seo.title", fmt.Sprintf("title-%d", i), "ops")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	r, ok := s.Record("seo.title")
	require.True(t, ok)
	assert.Equal(t, 1+n, r.Version)

	persisted, err := store.Decode(mem.Bytes())
	require.NoError(t, err)
	for _, p := range persisted {
		if p.Key == "seo.title" {
			assert.Equal(t, r.Value, p.Value)
		}
	}
}

func TestGettersReturnDefaults(t *testing.T) {
	s, _ := setupTestStore(t, seedTable+"seo.weird,abc,system,2025-10-19T10:00:00.000Z,1\n")
	def, _ := url.Parse("https://fallback.example")

	assert.Equal(t, "dflt", s.GetString("missing", "dflt"))
	assert.Equal(t, 7, s.GetInt("seo.weird", 7))
	assert.Equal(t, 1.5, s.GetNumber("seo.weird", 1.5))
	assert.True(t, s.GetBool("seo.weird", true))
	assert.Equal(t, def, s.GetURL("seo.weird", def))
	assert.True(t, s.GetBool("features.quiz.enabled", false))
	assert.Equal(t, "labessentials.com", s.GetURL("seo.siteUrl", def).Host)
}

func TestGettersOnUnreadableStore(t *testing.T) {
	mem := store.NewMemoryStorage([]byte("key,value\n\"broken"))
	s, err := New(context.Background(), mem, WithLogger(log.NewTestLogger()))
	require.NoError(t, err)

	assert.Equal(t, 42, s.GetInt("anything", 42))
	_, err = s.Update(context.Background(), "seo.title", "x", "ops")
	assert.Error(t, err)
}

func TestBatchUpdateIsAllOrNothing(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	before := mem.Bytes()

	res, err := s.BatchUpdate(context.Background(), []types.KeyValue{
		{Key: "seo.title", Value: "New"},
		{Key: "features.quiz.enabled", Value: "maybe"},
	}, "ops")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "features.quiz.enabled")
	assert.Equal(t, before, mem.Bytes())

	res, err = s.BatchUpdate(context.Background(), []types.KeyValue{
		{Key: "seo.title", Value: "New"},
		{Key: "features.quiz.enabled", Value: "false"},
		{Key: "seo.tagline", Value: "Science"},
	}, "ops")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "New", s.GetString("seo.title", ""))
	assert.False(t, s.GetBool("features.quiz.enabled", true))
	r, _ := s.Record("features.quiz.enabled")
	assert.Equal(t, 3, r.Version)
}

func TestListingHelpers(t *testing.T) {
	s, _ := setupTestStore(t, seedTable)

	assert.Len(t, s.All(), 5)
	assert.Len(t, s.ByPrefix("seo."), 2)

	found, err := s.Search("SITEURL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "seo.siteUrl", found[0].Key)

	_, err = s.Search("(")
	assert.ErrorIs(t, err, types.ErrValidationFailed)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, "features.quiz.enabled", latest.Key)
}

func TestDelete(t *testing.T) {
	s, _ := setupTestStore(t, seedTable)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "seo.title", "ops"))
	_, ok := s.Get("seo.title")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Delete(ctx, "seo.title", "ops"), types.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "NEXT_PUBLIC_GA_MEASUREMENT_ID", "ops"), types.ErrPermissionDenied)
}

func TestRecorderFailureDoesNotFailUpdate(t *testing.T) {
	rec := &recordingRecorder{err: errors.New("journal down")}
	s, _ := setupTestStore(t, seedTable, WithRecorder(rec))

	res, err := s.Update(context.Background(), "seo.title", "New", "ops")
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, rec.changes, 1)
	assert.Equal(t, "New", rec.changes[0].Value)
}

func TestExclusiveReloadsAfterReplace(t *testing.T) {
	s, mem := setupTestStore(t, seedTable)
	ctx := context.Background()

	err := s.Exclusive(ctx, func(ctx context.Context) error {
		return mem.AtomicReplace(ctx, []byte("key,value,updated_by,updated_at,version\nseo.title,Restored,system,2025-10-01T00:00:00.000Z,9\n"))
	})
	require.NoError(t, err)
	assert.Equal(t, "Restored", s.GetString("seo.title", ""))
	assert.Len(t, s.All(), 1)
}

func TestStoreWithFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.csv")
	fs := store.NewFileStorage(path, log.NewTestLogger())
	require.NoError(t, fs.Write(context.Background(), []byte(seedTable)))

	s, err := New(context.Background(), fs, WithLogger(log.NewTestLogger()))
	require.NoError(t, err)
	_, err = s.Update(context.Background(), "security.rateLimit.api.maxRequests", "120", "ops@example.com")
	require.NoError(t, err)

	reopened, err := New(context.Background(), store.NewFileStorage(path, log.NewTestLogger()), WithLogger(log.NewTestLogger()))
	require.NoError(t, err)
	r, ok := reopened.Record("security.rateLimit.api.maxRequests")
	require.True(t, ok)
	assert.Equal(t, 4, r.Version)
	assert.Equal(t, "120", r.Value)
}
