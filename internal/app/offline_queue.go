// internal/app/offline_queue.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/storage"
)

const (
	PendingCacheName = "zvit-pending-reports"
	SyncTagReports   = "sync-reports"
	pendingKeyPrefix = "/pending-report-"
)

// ErrSyncUnsupported is returned by Enqueue when the platform cannot queue
// requests for background delivery. Nothing is stored.
var ErrSyncUnsupported = errors.New("background sync is not available")

// Capabilities describes what the runtime offers for deferred delivery.
type Capabilities struct {
	Queue          bool // durable request queue
	BackgroundSync bool // a way to run the queue when connectivity returns
}

// SyncRegistrar asks the platform to fire a sync tag once online.
type SyncRegistrar interface {
	Register(ctx context.Context, tag string) error
}

// QueuedReport is a pending report together with its queue key.
type QueuedReport struct {
	Key string
	report.Pending
}

type OfflineQueue struct {
	store storage.CacheStorage
	sync  SyncRegistrar
	caps  Capabilities
	now   func() time.Time
	log   *logrus.Entry
	rec   Recorder

	mu sync.Mutex // serializes key allocation
}

func NewOfflineQueue(store storage.CacheStorage, registrar SyncRegistrar, caps Capabilities, log *logrus.Entry, rec Recorder) *OfflineQueue {
	return &OfflineQueue{
		store: store,
		sync:  registrar,
		caps:  caps,
		now:   time.Now,
		log:   log,
		rec:   orNop(rec),
	}
}

// Supported reports whether Enqueue can store anything.
func (q *OfflineQueue) Supported() bool {
	return q.caps.Queue && q.caps.BackgroundSync && q.store != nil && q.sync != nil
}

// Enqueue stores the report with the token captured now and registers the
// reports sync tag. It returns the entry key, which doubles as the
// idempotency key on replay.
func (q *OfflineQueue) Enqueue(ctx context.Context, r report.Report, token string) (string, error) {
	if !q.Supported() {
		return "", ErrSyncUnsupported
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	body, err := json.Marshal(report.Pending{
		Report:    r,
		Token:     token,
		Endpoint:  r.Endpoint(),
		CreatedAt: now.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode pending report: %w", err)
	}

	key, err := q.freeKey(ctx, now)
	if err != nil {
		return "", err
	}

	entry := &storage.Entry{
		Key:      key,
		URL:      key,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     body,
		StoredAt: now,
	}
	if err := q.store.Put(ctx, PendingCacheName, entry); err != nil {
		return "", fmt.Errorf("failed to store pending report: %w", err)
	}

	logCtx := q.log.WithFields(logrus.Fields{"key": key, "group_id": r.GroupID})
	logCtx.Info("Report saved for background sync")

	// The entry is already durable; a failed registration is repaired by the
	// next startup, which re-registers the tag while entries remain.
	if err := q.sync.Register(ctx, SyncTagReports); err != nil {
		logCtx.WithError(err).Warn("Failed to register sync tag")
	}

	q.refreshGauge(ctx)
	return key, nil
}

func (q *OfflineQueue) freeKey(ctx context.Context, now time.Time) (string, error) {
	ts := now.UnixNano()
	for {
		key := fmt.Sprintf("%s%020d", pendingKeyPrefix, ts)
		_, err := q.store.Match(ctx, PendingCacheName, key)
		if errors.Is(err, storage.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check pending key %s: %w", key, err)
		}
		ts++
	}
}

// List returns the queued reports in key order. Entries that cannot be
// decoded are skipped.
func (q *OfflineQueue) List(ctx context.Context) ([]QueuedReport, error) {
	keys, err := q.store.Keys(ctx, PendingCacheName)
	if err != nil {
		return nil, err
	}
	out := make([]QueuedReport, 0, len(keys))
	for _, key := range keys {
		entry, err := q.store.Match(ctx, PendingCacheName, key)
		if err != nil {
			continue
		}
		var p report.Pending
		if err := json.Unmarshal(entry.Body, &p); err != nil {
			continue
		}
		out = append(out, QueuedReport{Key: key, Pending: p})
	}
	return out, nil
}

// Len is the number of entries in the pending-report cache.
func (q *OfflineQueue) Len(ctx context.Context) (int, error) {
	keys, err := q.store.Keys(ctx, PendingCacheName)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// RestoreRegistration re-registers the sync tag if reports are still queued.
func (q *OfflineQueue) RestoreRegistration(ctx context.Context) error {
	if !q.Supported() {
		return nil
	}
	n, err := q.Len(ctx)
	if err != nil {
		return err
	}
	q.rec.PendingReports(n)
	if n == 0 {
		return nil
	}
	q.log.WithField("pending", n).Info("Queued reports found, registering sync")
	return q.sync.Register(ctx, SyncTagReports)
}

func (q *OfflineQueue) refreshGauge(ctx context.Context) {
	if n, err := q.Len(ctx); err == nil {
		q.rec.PendingReports(n)
	}
}

// IsPendingKey reports whether a cache key belongs to the pending queue.
func IsPendingKey(key string) bool {
	return strings.HasPrefix(key, pendingKeyPrefix)
}
