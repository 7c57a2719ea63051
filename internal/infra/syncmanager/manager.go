// internal/infra/syncmanager/manager.go
package syncmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/session"
	"zvit_agent/internal/domain/storage"
)

// Pinger checks whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler runs the work of one sync tag. done reports that the tag has
// nothing left to do and can be unregistered.
type Handler func(ctx context.Context, tag string) (done bool, err error)

// Manager stands in for the platform's background sync: registered tags are
// persisted and fired on a schedule once the backend answers a ping.
type Manager struct {
	kv       storage.KeyValue
	pinger   Pinger
	log      *logrus.Entry
	online   atomic.Bool
	mu       sync.Mutex
	handlers map[string]Handler
	gen      map[string]uint64 // bumped on every Register
	firing   sync.Mutex
}

func New(kv storage.KeyValue, pinger Pinger, log *logrus.Entry) *Manager {
	return &Manager{
		kv:       kv,
		pinger:   pinger,
		log:      log,
		handlers: map[string]Handler{},
		gen:      map[string]uint64{},
	}
}

// Handle sets the handler for a tag.
func (m *Manager) Handle(tag string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[tag] = h
}

// Register asks for tag to be fired when the backend is reachable.
// Registering a tag that is already pending is a no-op apart from marking
// that new work arrived.
func (m *Manager) Register(ctx context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen[tag]++
	tags, err := m.loadTags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	if err := m.storeTags(ctx, append(tags, tag)); err != nil {
		return err
	}
	m.log.WithField("tag", tag).Debug("Sync tag registered")
	return nil
}

// Tags returns the registered tags.
func (m *Manager) Tags(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadTags(ctx)
}

// Online is the result of the last ping.
func (m *Manager) Online() bool {
	return m.online.Load()
}

// CheckOnline pings the backend now and records the result.
func (m *Manager) CheckOnline(ctx context.Context) bool {
	err := m.pinger.Ping(ctx)
	online := err == nil
	if prev := m.online.Swap(online); prev != online {
		entry := m.log.WithField("online", online)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("Connectivity changed")
	}
	return online
}

// Fire checks connectivity and, when online, runs the handler of every
// registered tag. A tag is unregistered when its handler is done and no
// Register happened while it ran. It returns the tags that were run.
func (m *Manager) Fire(ctx context.Context) ([]string, error) {
	m.firing.Lock()
	defer m.firing.Unlock()

	tags, err := m.Tags(ctx)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	if !m.CheckOnline(ctx) {
		m.log.WithField("pending_tags", len(tags)).Debug("Offline, sync postponed")
		return nil, nil
	}

	var ran []string
	var errs []error
	for _, tag := range tags {
		m.mu.Lock()
		h, ok := m.handlers[tag]
		startGen := m.gen[tag]
		m.mu.Unlock()
		if !ok {
			m.log.WithField("tag", tag).Warn("No handler for sync tag")
			continue
		}

		ran = append(ran, tag)
		done, err := h(ctx, tag)
		if err != nil {
			m.log.WithError(err).WithField("tag", tag).Error("Sync handler failed")
			errs = append(errs, fmt.Errorf("sync %s: %w", tag, err))
			continue
		}
		if done {
			if err := m.unregister(ctx, tag, startGen); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return ran, errors.Join(errs...)
}

func (m *Manager) unregister(ctx context.Context, tag string, startGen uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen[tag] != startGen {
		// New work was registered while the handler ran.
		return nil
	}
	tags, err := m.loadTags(ctx)
	if err != nil {
		return err
	}
	kept := tags[:0]
	for _, t := range tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	m.log.WithField("tag", tag).Debug("Sync tag completed")
	return m.storeTags(ctx, kept)
}

func (m *Manager) loadTags(ctx context.Context) ([]string, error) {
	raw, err := m.kv.Get(ctx, session.KeySyncTags)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync tags: %w", err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		m.log.WithError(err).Warn("Sync tags are corrupt, resetting")
		return nil, nil
	}
	return tags, nil
}

func (m *Manager) storeTags(ctx context.Context, tags []string) error {
	if len(tags) == 0 {
		return m.kv.Delete(ctx, session.KeySyncTags)
	}
	sort.Strings(tags)
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	if err := m.kv.Set(ctx, session.KeySyncTags, string(raw)); err != nil {
		return fmt.Errorf("failed to store sync tags: %w", err)
	}
	return nil
}
