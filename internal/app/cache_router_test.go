package app

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/storage"
	"zvit_agent/internal/infra/logger"
)

const (
	staticCache  = "zvit-static-v2"
	dynamicCache = "zvit-dynamic-v2"
)

type routerFixture struct {
	store    storage.CacheStorage
	upstream *fakeUpstream
	claimer  *fakeClaimer
	router   *CacheRouter
	ev       *events
	rec      *recorded
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ev := &events{}
	store := &tracingStore{CacheStorage: openStore(t), ev: ev}
	upstream := &fakeUpstream{responses: map[string]*storage.Entry{}, ev: ev}
	claimer := &fakeClaimer{}
	rec := newRecorded()
	cfg := CacheRouterConfig{
		APIPrefix:    "/api/",
		StaticCache:  staticCache,
		DynamicCache: dynamicCache,
		ShellURL:     "/app",
	}
	return &routerFixture{
		store:    store,
		upstream: upstream,
		claimer:  claimer,
		router:   NewCacheRouter(cfg, store, upstream, claimer, logger.Discard(), rec),
		ev:       ev,
		rec:      rec,
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCacheRouter_InterceptsOnlyGET(t *testing.T) {
	f := newRouterFixture(t)
	assert.True(t, f.router.Intercepts(http.MethodGet))
	for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
		assert.False(t, f.router.Intercepts(m), m)
	}
}

func TestCacheRouter_APITriesNetworkBeforeCache(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	f.upstream.responses["/api/v1/groups"] = response("/api/v1/groups", http.StatusOK, `{"success":true,"data":[]}`)

	res, err := f.router.Fetch(ctx, mustURL(t, "/api/v1/groups"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.Equal(t, StrategyNetworkFirst, res.Strategy)
	assert.Equal(t, []string{"network:/api/v1/groups"}, f.ev.all())

	cached, err := f.store.Match(ctx, dynamicCache, "/api/v1/groups")
	require.NoError(t, err)
	assert.Equal(t, `{"success":true,"data":[]}`, string(cached.Body))

	// Offline now: the dynamic copy answers, after the network was tried.
	f.upstream.offline = true
	res, err = f.router.Fetch(ctx, mustURL(t, "/api/v1/groups"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, []string{"network:/api/v1/groups", "network:/api/v1/groups", "cache:/api/v1/groups"}, f.ev.all())
}

func TestCacheRouter_APIOfflineEnvelope(t *testing.T) {
	f := newRouterFixture(t)
	f.upstream.offline = true

	res, err := f.router.Fetch(context.Background(), mustURL(t, "/api/v1/groups/g1"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceOffline, res.Source)
	assert.Equal(t, "application/json", res.Entry.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"success":false,"message":"offline"}`, string(res.Entry.Body))
	assert.Equal(t, 1, f.rec.count("cache:network-first:offline"))
}

func TestCacheRouter_APINon2xxIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	f.upstream.responses["/api/v1/groups"] = response("/api/v1/groups", http.StatusInternalServerError, "boom")

	res, err := f.router.Fetch(ctx, mustURL(t, "/api/v1/groups"), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, res.Entry.Status)

	_, err = f.store.Match(ctx, dynamicCache, "/api/v1/groups")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCacheRouter_StaticTriesCacheBeforeNetwork(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	f.upstream.responses["/pwa/js/app.js"] = response("/pwa/js/app.js", http.StatusOK, "v1")

	res, err := f.router.Fetch(ctx, mustURL(t, "/pwa/js/app.js"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, res.Source)
	assert.Equal(t, []string{"cache:/pwa/js/app.js", "network:/pwa/js/app.js"}, f.ev.all())

	// A newer upstream version is not picked up: no revalidation.
	f.upstream.responses["/pwa/js/app.js"] = response("/pwa/js/app.js", http.StatusOK, "v2")
	res, err = f.router.Fetch(ctx, mustURL(t, "/pwa/js/app.js"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "v1", string(res.Entry.Body))
	assert.Len(t, f.upstream.calls, 1)
}

func TestCacheRouter_StaticFallsBackToShell(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	require.NoError(t, f.store.Put(ctx, staticCache, response("/app", http.StatusOK, "<html>shell</html>")))
	f.upstream.offline = true

	res, err := f.router.Fetch(ctx, mustURL(t, "/groups/g1"), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceShell, res.Source)
	assert.Equal(t, "<html>shell</html>", string(res.Entry.Body))
}

func TestCacheRouter_StaticOfflineWithoutShell(t *testing.T) {
	f := newRouterFixture(t)
	f.upstream.offline = true

	_, err := f.router.Fetch(context.Background(), mustURL(t, "/groups/g1"), nil)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestCacheRouter_QueryIsPartOfKey(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	require.NoError(t, f.store.Put(ctx, staticCache, response("/icons/icon.svg?v=1", http.StatusOK, "old")))
	f.upstream.responses["/icons/icon.svg?v=2"] = response("/icons/icon.svg?v=2", http.StatusOK, "new")

	res, err := f.router.Fetch(ctx, mustURL(t, "/icons/icon.svg?v=2"), nil)
	require.NoError(t, err)
	assert.Equal(t, "new", string(res.Entry.Body))
}

func TestCacheRouter_NeverServesQueuedReports(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	key := "/pending-report-01700000000000000000"
	require.NoError(t, f.store.Put(ctx, PendingCacheName, response(key, http.StatusOK, `{"token":"secret"}`)))
	f.upstream.offline = true

	_, err := f.router.Fetch(ctx, mustURL(t, key), nil)
	assert.ErrorIs(t, err, ErrOffline)
}

func TestCacheRouter_InstallIsPartialAndNonFatal(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	f.upstream.responses["/app"] = response("/app", http.StatusOK, "shell")
	f.upstream.responses["/manifest.json"] = response("/manifest.json", http.StatusOK, "{}")
	f.upstream.responses["/icons/icon.svg"] = response("/icons/icon.svg", http.StatusNotFound, "")
	// /pwa/js/app.js fails at transport level.

	cached := f.router.Install(ctx)
	assert.Equal(t, 2, cached)

	keys, err := f.store.Keys(ctx, staticCache)
	require.NoError(t, err)
	assert.Equal(t, []string{"/app", "/manifest.json"}, keys)
}

func TestCacheRouter_ActivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newRouterFixture(t)
	for _, name := range []string{"zvit-static-v1", "zvit-dynamic-v1", staticCache, dynamicCache, PendingCacheName} {
		require.NoError(t, f.store.Put(ctx, name, response("/x", http.StatusOK, name)))
	}

	deleted, err := f.router.Activate(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"zvit-static-v1", "zvit-dynamic-v1"}, deleted)

	deleted, err = f.router.Activate(ctx)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	names, err := f.store.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{staticCache, dynamicCache, PendingCacheName}, names)
	assert.Equal(t, 2, f.claimer.claims)
}
