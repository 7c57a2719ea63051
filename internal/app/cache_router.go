// internal/app/cache_router.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/storage"
)

// Fetch strategies.
const (
	StrategyNetworkFirst = "network-first"
	StrategyCacheFirst   = "cache-first"
)

// Where a routed response came from.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceOffline = "offline"
	SourceShell   = "shell"
)

// ErrOffline is returned by cache-first fetches that found neither a cached
// response, the network, nor a cached shell.
var ErrOffline = errors.New("offline and nothing cached")

// DefaultPrecache is the shell manifest fetched on install.
var DefaultPrecache = []string{"/app", "/manifest.json", "/icons/icon.svg", "/pwa/js/app.js"}

var offlineEnvelope = []byte(`{"success":false,"message":"offline"}`)

// Claimer takes control of every open window.
type Claimer interface {
	Claim(ctx context.Context) error
}

type CacheRouterConfig struct {
	APIPrefix    string // GET paths under it are network-first
	StaticCache  string
	DynamicCache string
	ShellURL     string
	Precache     []string
}

// Result is a routed response.
type Result struct {
	Entry    *storage.Entry
	Strategy string
	Source   string
}

// CacheRouter answers GET requests from the static and dynamic caches and
// the network, and manages the caches across deployments.
type CacheRouter struct {
	cfg      CacheRouterConfig
	store    storage.CacheStorage
	upstream Upstream
	claimer  Claimer
	log      *logrus.Entry
	rec      Recorder
}

func NewCacheRouter(cfg CacheRouterConfig, store storage.CacheStorage, upstream Upstream, claimer Claimer, log *logrus.Entry, rec Recorder) *CacheRouter {
	if cfg.Precache == nil {
		cfg.Precache = DefaultPrecache
	}
	return &CacheRouter{
		cfg:      cfg,
		store:    store,
		upstream: upstream,
		claimer:  claimer,
		log:      log,
		rec:      orNop(rec),
	}
}

// Intercepts reports whether requests with this method are routed. Anything
// else goes to the network untouched.
func (r *CacheRouter) Intercepts(method string) bool {
	return method == http.MethodGet
}

func (r *CacheRouter) Strategy(path string) string {
	if strings.HasPrefix(path, r.cfg.APIPrefix) {
		return StrategyNetworkFirst
	}
	return StrategyCacheFirst
}

// Fetch routes a GET request.
func (r *CacheRouter) Fetch(ctx context.Context, target *url.URL, header http.Header) (*Result, error) {
	strategy := r.Strategy(target.Path)
	var (
		res *Result
		err error
	)
	if strategy == StrategyNetworkFirst {
		res, err = r.networkFirst(ctx, target, header)
	} else {
		res, err = r.cacheFirst(ctx, target, header)
	}
	if err != nil {
		r.rec.CacheResult(strategy, "error")
		return nil, err
	}
	res.Strategy = strategy
	r.rec.CacheResult(strategy, res.Source)
	return res, nil
}

func (r *CacheRouter) networkFirst(ctx context.Context, target *url.URL, header http.Header) (*Result, error) {
	key := storage.RequestKey(target)

	live, err := r.upstream.Fetch(ctx, target, header)
	if err == nil {
		r.store2xx(ctx, r.cfg.DynamicCache, live)
		return &Result{Entry: live, Source: SourceNetwork}, nil
	}
	r.log.WithError(err).WithField("key", key).Debug("Network failed, trying cache")

	if cached := r.match(ctx, key); cached != nil {
		return &Result{Entry: cached, Source: SourceCache}, nil
	}
	return &Result{Entry: offlineEntry(key), Source: SourceOffline}, nil
}

func (r *CacheRouter) cacheFirst(ctx context.Context, target *url.URL, header http.Header) (*Result, error) {
	key := storage.RequestKey(target)

	if cached := r.match(ctx, key); cached != nil {
		return &Result{Entry: cached, Source: SourceCache}, nil
	}

	live, err := r.upstream.Fetch(ctx, target, header)
	if err == nil {
		r.store2xx(ctx, r.cfg.StaticCache, live)
		return &Result{Entry: live, Source: SourceNetwork}, nil
	}
	r.log.WithError(err).WithField("key", key).Debug("Network failed, falling back to shell")

	if shell := r.match(ctx, r.cfg.ShellURL); shell != nil {
		return &Result{Entry: shell, Source: SourceShell}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOffline, key)
}

// match looks a key up in every cache. Queued reports carry tokens and are
// never served.
func (r *CacheRouter) match(ctx context.Context, key string) *storage.Entry {
	if IsPendingKey(key) {
		return nil
	}
	e, err := r.store.MatchAny(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.WithError(err).WithField("key", key).Error("Cache lookup failed")
		}
		return nil
	}
	return e
}

func (r *CacheRouter) store2xx(ctx context.Context, cacheName string, e *storage.Entry) {
	if !e.OK() || IsPendingKey(e.Key) {
		return
	}
	if err := r.store.Put(ctx, cacheName, e.Clone()); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{"cache": cacheName, "key": e.Key}).Warn("Failed to cache response")
	}
}

func offlineEntry(key string) *storage.Entry {
	return &storage.Entry{
		Key:      key,
		URL:      key,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     append([]byte(nil), offlineEnvelope...),
		StoredAt: time.Now(),
	}
}

// Install precaches the shell manifest into the static cache. Failures are
// logged and skipped; it returns how many assets were cached.
func (r *CacheRouter) Install(ctx context.Context) int {
	cached := 0
	for _, path := range r.cfg.Precache {
		target, err := url.Parse(path)
		if err != nil {
			r.log.WithError(err).WithField("asset", path).Warn("Invalid precache path")
			continue
		}
		e, err := r.upstream.Fetch(ctx, target, nil)
		if err != nil {
			r.log.WithError(err).WithField("asset", path).Warn("Failed to precache asset")
			continue
		}
		if !e.OK() {
			r.log.WithFields(logrus.Fields{"asset": path, "status": e.Status}).Warn("Precache asset not available")
			continue
		}
		if err := r.store.Put(ctx, r.cfg.StaticCache, e); err != nil {
			r.log.WithError(err).WithField("asset", path).Warn("Failed to store precached asset")
			continue
		}
		cached++
	}
	r.log.WithFields(logrus.Fields{"cached": cached, "total": len(r.cfg.Precache)}).Info("Install finished")
	return cached
}

// Activate deletes caches left by other deployments and claims open
// windows. The pending-report cache is always kept. Calling it again
// without a new deployment deletes nothing.
func (r *CacheRouter) Activate(ctx context.Context) ([]string, error) {
	// Activate runs on every agent start, so queued reports must survive it.
	keep := []string{r.cfg.StaticCache, r.cfg.DynamicCache, PendingCacheName}
	deleted, err := r.store.EvictExcept(ctx, keep)
	if err != nil {
		return nil, fmt.Errorf("failed to evict old caches: %w", err)
	}
	for _, name := range deleted {
		r.log.WithField("cache", name).Info("Deleted cache from previous deployment")
	}
	if r.claimer != nil {
		if err := r.claimer.Claim(ctx); err != nil {
			return deleted, fmt.Errorf("failed to claim windows: %w", err)
		}
	}
	return deleted, nil
}
