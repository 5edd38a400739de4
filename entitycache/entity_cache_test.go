package entitycache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/cache/mocks"
	"github.com/goliatone/go-supply-cache/entitycache"
	"github.com/goliatone/go-supply-cache/pkg/testsupport"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"
)

type project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func newCache(t *testing.T, clock *testsupport.Clock, opts ...entitycache.Option[project]) (*entitycache.EntityCache[project], cache.Store) {
	t.Helper()
	store := testsupport.NewStore(t)
	base := []entitycache.Option[project]{
		entitycache.WithClock[project](clock.Now),
		entitycache.WithLogger[project](zaptest.NewLogger(t)),
	}
	return entitycache.New[project](store, append(base, opts...)...), store
}

func seed() []project {
	return []project{
		{ID: "p1", Name: "Bracket", Status: "active"},
		{ID: "p2", Name: "Housing", Status: "draft"},
	}
}

func TestGet_MissingIDLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, store := newCache(t, clock)

	require.True(t, c.Replace(ctx, seed()))
	before, _, err := store.Get(ctx, cache.KeyEntityCache)
	require.NoError(t, err)
	stamp, _, err := store.Get(ctx, cache.KeyEntityCacheTimestamp)
	require.NoError(t, err)

	got, ok := c.Get(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, project{}, got)

	after, _, err := store.Get(ctx, cache.KeyEntityCache)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	stampAfter, _, err := store.Get(ctx, cache.KeyEntityCacheTimestamp)
	require.NoError(t, err)
	assert.Equal(t, stamp, stampAfter)

	items, ok := c.All(ctx)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestGet_EmptyCache(t *testing.T) {
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, store := newCache(t, clock)

	_, ok := c.Get(context.Background(), "p1")
	assert.False(t, ok)

	size, err := store.Size(context.Background())
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, _ := newCache(t, clock, entitycache.WithTTL[project](time.Minute))

	require.True(t, c.Replace(ctx, seed()))

	clock.Advance(59 * time.Second)
	assert.True(t, c.IsValid(ctx))
	p, ok := c.Get(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, "Bracket", p.Name)

	clock.Advance(2 * time.Second)
	assert.False(t, c.IsValid(ctx))
	_, ok = c.All(ctx)
	assert.False(t, ok)

	written, ok := c.WrittenAt(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UnixMilli(), written.UnixMilli())
}

func TestReplace_DeduplicatesLastWins(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, _ := newCache(t, clock)

	require.True(t, c.Replace(ctx, []project{
		{ID: "p1", Name: "old"},
		{ID: "p2", Name: "Housing"},
		{ID: "p1", Name: "new"},
	}))

	items, ok := c.All(ctx)
	require.True(t, ok)
	want := []project{{ID: "p1", Name: "new"}, {ID: "p2", Name: "Housing"}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertUpdateRemove(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, _ := newCache(t, clock)

	assert.False(t, c.Upsert(ctx, project{ID: "p9"}), "upsert without collection is a no-op")
	assert.False(t, c.IsValid(ctx))

	require.True(t, c.Replace(ctx, seed()))

	require.True(t, c.Upsert(ctx, project{ID: "p3", Name: "Gasket"}))
	require.True(t, c.Upsert(ctx, project{ID: "p1", Name: "Bracket v2", Status: "active"}))

	require.True(t, c.Update(ctx, "p2", func(p project) project {
		p.Status = "active"
		return p
	}))
	assert.False(t, c.Update(ctx, "missing", func(p project) project { return p }))

	require.True(t, c.Remove(ctx, "p3"))
	assert.False(t, c.Remove(ctx, "p3"))

	items, ok := c.All(ctx)
	require.True(t, ok)
	want := []project{
		{ID: "p1", Name: "Bracket v2", Status: "active"},
		{ID: "p2", Name: "Housing", Status: "active"},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("collection mismatch (-want +got):\n%s", diff)
	}
}

func TestPatchesKeepWriteTime(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, _ := newCache(t, clock)

	require.True(t, c.Replace(ctx, seed()))
	clock.Advance(time.Minute)
	require.True(t, c.Upsert(ctx, project{ID: "p3"}))

	written, ok := c.WrittenAt(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Unix(1700000000, 0).UnixMilli(), written.UnixMilli())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, _ := newCache(t, clock)

	require.True(t, c.Replace(ctx, seed()))
	require.True(t, c.SaveOffline(ctx, seed()))
	c.Clear(ctx)

	_, ok := c.All(ctx)
	assert.False(t, ok)
	offline, ok := c.LoadOffline(ctx)
	require.True(t, ok, "clear keeps the offline copy")
	assert.Len(t, offline, 2)
}

func TestCorruptCollectionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, store := newCache(t, clock)

	require.True(t, c.Replace(ctx, seed()))
	require.NoError(t, store.Set(ctx, cache.KeyEntityCache, "{not json"))

	_, ok := c.Get(ctx, "p1")
	assert.False(t, ok)

	_, found, err := store.Get(ctx, cache.KeyEntityCache)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOfflineExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	c, store := newCache(t, clock, entitycache.WithOfflineTTL[project](time.Hour))

	require.True(t, c.SaveOffline(ctx, seed()))

	clock.Advance(59 * time.Minute)
	items, ok := c.LoadOffline(ctx)
	require.True(t, ok)
	assert.Len(t, items, 2)

	clock.Advance(time.Minute)
	_, ok = c.LoadOffline(ctx)
	assert.False(t, ok)

	_, found, err := store.Get(ctx, cache.KeyOfflineCache)
	require.NoError(t, err)
	assert.False(t, found, "expired offline copy is removed")
}

func TestSecondaryKeys(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(time.Unix(1700000000, 0))
	keys := cache.EntityKeysFor("ProjectContacts")
	c, store := newCache(t, clock, entitycache.WithKeys[project](keys))

	require.True(t, c.Replace(ctx, seed()))

	_, found, err := store.Get(ctx, "entity_cache_project_contacts")
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = store.Get(ctx, cache.KeyEntityCache)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, keys, c.Keys())
}

func TestStoreReadFailureIsAMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().
		Get(gomock.Any(), cache.KeyEntityCacheTimestamp).
		Return("", false, errors.New("disk unavailable"))

	c := entitycache.New[project](store, entitycache.WithLogger[project](zaptest.NewLogger(t)))

	_, ok := c.Get(context.Background(), "p1")
	assert.False(t, ok)
}
