package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CareOpsHQ/mednotify/internal/domain/preference"
)

type countingPrefRepo struct {
	prefs map[int64]*preference.Preference
	gets  int
}

func (f *countingPrefRepo) GetOrCreate(_ context.Context, recipientID int64) (*preference.Preference, error) {
	f.gets++
	if p, ok := f.prefs[recipientID]; ok {
		return p, nil
	}
	p := preference.Defaults(recipientID)
	f.prefs[recipientID] = p
	return p, nil
}

func (f *countingPrefRepo) Update(_ context.Context, p *preference.Preference) error {
	f.prefs[p.RecipientID] = p
	return nil
}

func newCacheUnderTest(t *testing.T) (*PreferenceCache, *countingPrefRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	repo := &countingPrefRepo{prefs: map[int64]*preference.Preference{}}
	return NewPreferenceCache(repo, rdb, time.Minute, nil), repo, mr
}

func TestPreferenceCache_ReadThrough(t *testing.T) {
	cache, repo, _ := newCacheUnderTest(t)
	ctx := context.Background()

	p1, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.True(t, p1.EmailEnabled)
	assert.Equal(t, 1, repo.gets)

	p2, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, p1.RecipientID, p2.RecipientID)
	assert.Equal(t, 1, repo.gets, "second read must be served from cache")
}

func TestPreferenceCache_UpdateInvalidates(t *testing.T) {
	cache, repo, _ := newCacheUnderTest(t)
	ctx := context.Background()

	p, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)

	p.SMSEnabled = false
	require.NoError(t, cache.Update(ctx, p))

	got, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.False(t, got.SMSEnabled)
	assert.Equal(t, 2, repo.gets, "update must drop the cached entry")
}

func TestPreferenceCache_ExpiredEntryRefetches(t *testing.T) {
	cache, repo, mr := newCacheUnderTest(t)
	ctx := context.Background()

	_, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.gets)
}

func TestPreferenceCache_CorruptEntryFallsBack(t *testing.T) {
	cache, repo, mr := newCacheUnderTest(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(prefKey(42), "{not json"))

	p, err := cache.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	assert.True(t, p.InAppEnabled)
	assert.Equal(t, 1, repo.gets)
}
