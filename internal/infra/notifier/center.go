// internal/infra/notifier/center.go
package notifier

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"zvit_agent/internal/domain/push"
)

const tagPrefix = "tag:"

// Backend renders notifications somewhere a user can see them.
type Backend interface {
	Name() string
	Deliver(ctx context.Context, n push.Notification) error
	Retract(ctx context.Context, id string) error
}

// Center is the registry of shown notifications. A notification lives until
// it is closed, replaced by another with the same tag, or its TTL runs out;
// notifications that require interaction never expire.
type Center struct {
	cache    *gocache.Cache
	ttl      time.Duration
	backends []Backend
	log      *logrus.Entry
	mu       sync.Mutex
}

func NewCenter(ttl time.Duration, log *logrus.Entry, backends ...Backend) *Center {
	return &Center{
		cache:    gocache.New(ttl, 10*time.Minute),
		ttl:      ttl,
		backends: backends,
		log:      log,
	}
}

// AddBackend attaches another display backend.
func (c *Center) AddBackend(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backends = append(c.backends, b)
}

// Show registers n and hands it to every backend. A shown notification with
// the same tag is replaced. Backend failures are logged.
func (c *Center) Show(ctx context.Context, n push.Notification) error {
	if n.ID == "" {
		return errors.New("notification without id")
	}

	c.mu.Lock()
	var replaced string
	if n.Tag != "" {
		if prev, ok := c.cache.Get(tagPrefix + n.Tag); ok && prev.(string) != n.ID {
			replaced = prev.(string)
			c.cache.Delete(replaced)
		}
	}
	exp := gocache.DefaultExpiration
	if n.RequireInteraction {
		exp = gocache.NoExpiration
	}
	c.cache.Set(n.ID, n, exp)
	if n.Tag != "" {
		c.cache.Set(tagPrefix+n.Tag, n.ID, exp)
	}
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	logCtx := c.log.WithFields(logrus.Fields{"notification_id": n.ID, "tag": n.Tag})
	if replaced != "" {
		logCtx.WithField("replaced", replaced).Debug("Notification replaced by tag")
		c.retract(ctx, backends, replaced)
	}
	for _, b := range backends {
		if err := b.Deliver(ctx, n); err != nil {
			logCtx.WithError(err).WithField("backend", b.Name()).Warn("Failed to deliver notification")
		}
	}
	return nil
}

// Close removes a notification. Closing an unknown id is not an error.
func (c *Center) Close(ctx context.Context, id string) error {
	c.mu.Lock()
	v, ok := c.cache.Get(id)
	if ok {
		c.cache.Delete(id)
		n := v.(push.Notification)
		if cur, found := c.cache.Get(tagPrefix + n.Tag); found && cur.(string) == id {
			c.cache.Delete(tagPrefix + n.Tag)
		}
	}
	backends := append([]Backend(nil), c.backends...)
	c.mu.Unlock()

	if ok {
		c.retract(ctx, backends, id)
	}
	return nil
}

func (c *Center) retract(ctx context.Context, backends []Backend, id string) {
	for _, b := range backends {
		if err := b.Retract(ctx, id); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"backend": b.Name(), "notification_id": id}).Warn("Failed to retract notification")
		}
	}
}

func (c *Center) Get(id string) (push.Notification, bool) {
	v, ok := c.cache.Get(id)
	if !ok {
		return push.Notification{}, false
	}
	n, ok := v.(push.Notification)
	return n, ok
}

// List returns the shown notifications, oldest first.
func (c *Center) List() []push.Notification {
	var out []push.Notification
	for _, item := range c.cache.Items() {
		if n, ok := item.Object.(push.Notification); ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
