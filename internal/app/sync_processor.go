// internal/app/sync_processor.go
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/report"
	"zvit_agent/internal/domain/storage"
)

// Replay outcomes, as recorded in metrics.
const (
	ReplayDelivered = "delivered"
	ReplayRejected  = "rejected"
	ReplayFailed    = "failed"
	ReplayCorrupt   = "corrupt"
)

// Replayer posts a stored report body with a captured token.
// err is non-nil only when no HTTP response was received.
type Replayer interface {
	Replay(ctx context.Context, endpoint, token, idempotencyKey string, body json.RawMessage) (int, error)
}

// DrainResult summarizes one pass over the pending queue. Skipped counts
// entries that were removed by someone else during the pass.
type DrainResult struct {
	Attempted int
	Delivered int
	Remaining int
	Skipped   int
}

type replayResult int

const (
	replayKept replayResult = iota
	replayDone
	replayGone
)

// SyncProcessor replays queued reports. Every entry is tried on every
// drain; an entry is deleted only after the backend accepted it.
type SyncProcessor struct {
	store    storage.CacheStorage
	replayer Replayer
	log      *logrus.Entry
	rec      Recorder

	mu sync.Mutex // one drain at a time
}

func NewSyncProcessor(store storage.CacheStorage, replayer Replayer, log *logrus.Entry, rec Recorder) *SyncProcessor {
	return &SyncProcessor{store: store, replayer: replayer, log: log, rec: orNop(rec)}
}

// HandleSync runs the handler for a fired sync tag. done is true when the
// tag has no more work and can be unregistered.
func (p *SyncProcessor) HandleSync(ctx context.Context, tag string) (bool, error) {
	if tag != SyncTagReports {
		p.log.WithField("tag", tag).Debug("Ignoring unknown sync tag")
		return true, nil
	}
	res, err := p.Drain(ctx)
	if err != nil {
		return false, err
	}
	return res.Remaining == 0, nil
}

// Drain replays every pending entry in key order.
func (p *SyncProcessor) Drain(ctx context.Context) (DrainResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var res DrainResult
	keys, err := p.store.Keys(ctx, PendingCacheName)
	if err != nil {
		return res, fmt.Errorf("failed to list pending reports: %w", err)
	}

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			res.Remaining += len(keys) - i
			p.rec.PendingReports(res.Remaining)
			return res, err
		}
		switch p.replay(ctx, key) {
		case replayGone:
			res.Skipped++
		case replayDone:
			res.Attempted++
			res.Delivered++
		default:
			res.Attempted++
			res.Remaining++
		}
	}

	p.rec.PendingReports(res.Remaining)
	if res.Attempted > 0 {
		p.log.WithFields(logrus.Fields{
			"attempted": res.Attempted,
			"delivered": res.Delivered,
			"remaining": res.Remaining,
			"skipped":   res.Skipped,
		}).Info("Pending reports drained")
	}
	return res, nil
}

func (p *SyncProcessor) replay(ctx context.Context, key string) replayResult {
	logCtx := p.log.WithField("key", key)

	entry, err := p.store.Match(ctx, PendingCacheName, key)
	if errors.Is(err, storage.ErrNotFound) {
		// Removed by someone else since Keys; nothing left to do.
		return replayGone
	}
	if err != nil {
		logCtx.WithError(err).Error("Failed to read pending report")
		p.rec.SyncReplay(ReplayFailed)
		return replayKept
	}

	var pending report.Pending
	if err := json.Unmarshal(entry.Body, &pending); err != nil {
		logCtx.WithError(err).Error("Pending report is corrupt, keeping it")
		p.rec.SyncReplay(ReplayCorrupt)
		return replayKept
	}
	endpoint := pending.Endpoint
	if endpoint == "" {
		endpoint = pending.Report.Endpoint()
	}
	body, err := json.Marshal(pending.Report)
	if err != nil {
		logCtx.WithError(err).Error("Failed to encode pending report")
		p.rec.SyncReplay(ReplayCorrupt)
		return replayKept
	}

	status, err := p.replayer.Replay(ctx, endpoint, pending.Token, key, body)
	if err != nil {
		logCtx.WithError(err).Warn("Replay failed, will retry on next sync")
		p.rec.SyncReplay(ReplayFailed)
		return replayKept
	}
	if status < 200 || status >= 300 {
		logCtx.WithField("status", status).Warn("Backend rejected replayed report, will retry on next sync")
		p.rec.SyncReplay(ReplayRejected)
		return replayKept
	}

	if _, err := p.store.Delete(ctx, PendingCacheName, key); err != nil {
		// Delivered but still queued: the next drain sends it again with
		// the same idempotency key.
		logCtx.WithError(err).Error("Failed to delete delivered report")
		p.rec.SyncReplay(ReplayDelivered)
		return replayKept
	}
	logCtx.WithField("group_id", pending.Report.GroupID).Info("Pending report delivered")
	p.rec.SyncReplay(ReplayDelivered)
	return replayDone
}
