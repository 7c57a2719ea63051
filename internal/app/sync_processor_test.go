package app

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/storage"
	"zvit_agent/internal/infra/logger"
)

type syncFixture struct {
	store    storage.CacheStorage
	queue    *OfflineQueue
	replayer *fakeReplayer
	proc     *SyncProcessor
	rec      *recorded
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	store := openStore(t)
	rec := newRecorded()
	q := NewOfflineQueue(store, &fakeRegistrar{}, fullCaps, logger.Discard(), rec)
	tick := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	replayer := &fakeReplayer{}
	return &syncFixture{
		store:    store,
		queue:    q,
		replayer: replayer,
		proc:     NewSyncProcessor(store, replayer, logger.Discard(), rec),
		rec:      rec,
	}
}

func TestSyncProcessor_RoundTripUsesCapturedTokens(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	const n = 5
	var keys []string
	for i := 0; i < n; i++ {
		key, err := f.queue.Enqueue(ctx, report.Report{
			GroupID:        fmt.Sprintf("g%d", i),
			SimpleResponse: report.ResponseOK,
		}, fmt.Sprintf("token-%d", i))
		require.NoError(t, err)
		keys = append(keys, key)
	}

	res, err := f.proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: n, Delivered: n, Remaining: 0}, res)

	require.Len(t, f.replayer.calls, n)
	for i, c := range f.replayer.calls {
		assert.Equal(t, fmt.Sprintf("token-%d", i), c.Token)
		assert.Equal(t, keys[i], c.Key)
		assert.Equal(t, report.EndpointSimple, c.Endpoint)
		assert.Equal(t, map[string]any{"groupId": fmt.Sprintf("g%d", i), "simpleResponse": "OK"}, c.Body)
	}

	left, err := f.store.Keys(ctx, PendingCacheName)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, n, f.rec.count("sync:"+ReplayDelivered))
	assert.Equal(t, 0, f.rec.pending)
}

func TestSyncProcessor_PartialDrainRetriesOnlyFailures(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	for _, g := range []string{"ok-1", "net", "ok-2", "rejected"} {
		_, err := f.queue.Enqueue(ctx, report.Report{GroupID: g, Field1: "x"}, "t")
		require.NoError(t, err)
	}
	f.replayer.status = func(c replayCall) int {
		switch c.Body["groupId"] {
		case "net":
			return 0
		case "rejected":
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}

	res, err := f.proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 4, Delivered: 2, Remaining: 2}, res)
	assert.Equal(t, 1, f.rec.count("sync:"+ReplayFailed))
	assert.Equal(t, 1, f.rec.count("sync:"+ReplayRejected))

	f.replayer.calls = nil
	f.replayer.status = nil

	res, err = f.proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 2, Delivered: 2, Remaining: 0}, res)

	var groups []any
	for _, c := range f.replayer.calls {
		groups = append(groups, c.Body["groupId"])
	}
	assert.Equal(t, []any{"net", "rejected"}, groups)
}

func TestSyncProcessor_CorruptEntryIsKept(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	require.NoError(t, f.store.Put(ctx, PendingCacheName, &storage.Entry{
		Key:  "/pending-report-00000000000000000001",
		Body: []byte("{not json"),
	}))
	_, err := f.queue.Enqueue(ctx, report.Report{GroupID: "g1", SimpleResponse: report.ResponseOK}, "t")
	require.NoError(t, err)

	res, err := f.proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 2, Delivered: 1, Remaining: 1}, res)
	assert.Len(t, f.replayer.calls, 1)
	assert.Equal(t, 1, f.rec.count("sync:"+ReplayCorrupt))
}

func TestSyncProcessor_HandleSync(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	done, err := f.proc.HandleSync(ctx, "some-other-tag")
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, f.replayer.calls)

	_, err = f.queue.Enqueue(ctx, report.Report{GroupID: "g1", SimpleResponse: report.ResponseOK}, "t")
	require.NoError(t, err)

	f.replayer.status = func(replayCall) int { return 0 }
	done, err = f.proc.HandleSync(ctx, SyncTagReports)
	require.NoError(t, err)
	assert.False(t, done)

	f.replayer.status = nil
	done, err = f.proc.HandleSync(ctx, SyncTagReports)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSyncProcessor_CancelledContext(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.queue.Enqueue(context.Background(), report.Report{GroupID: "g1", SimpleResponse: report.ResponseOK}, "t")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.proc.Drain(ctx)
	assert.Error(t, err)
	assert.Empty(t, f.replayer.calls)
}

// vanishingStore lists a key whose entry is already gone when it is read.
type vanishingStore struct {
	storage.CacheStorage
	ghost string
}

func (s *vanishingStore) Keys(ctx context.Context, cacheName string) ([]string, error) {
	keys, err := s.CacheStorage.Keys(ctx, cacheName)
	return append([]string{s.ghost}, keys...), err
}

func TestSyncProcessor_RemovedEntryIsNotCountedAsDelivered(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	_, err := f.queue.Enqueue(ctx, report.Report{GroupID: "g1", SimpleResponse: report.ResponseOK}, "t")
	require.NoError(t, err)

	proc := NewSyncProcessor(&vanishingStore{CacheStorage: f.store, ghost: "/pending-report-00000000000000000001"},
		f.replayer, logger.Discard(), f.rec)

	res, err := proc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Attempted: 1, Delivered: 1, Remaining: 0, Skipped: 1}, res)
	assert.Len(t, f.replayer.calls, 1)
}
