// internal/domain/storage/storage.go
package storage

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// ErrNotFound is returned when a key or cache entry does not exist.
var ErrNotFound = errors.New("storage: not found")

// Entry is a response stored in a named cache, keyed by the request it answers.
type Entry struct {
	Key      string      `json:"key"`
	URL      string      `json:"url"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// OK reports whether the stored status is in the 2xx range.
func (e *Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

// Clone returns a deep copy, so a caller can hand one copy to a cache and
// serve the other.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// RequestKey is the cache key for a request URL: path plus query.
func RequestKey(u *url.URL) string {
	return u.RequestURI()
}

// KeyValue is a durable string key/value store (the page's local storage).
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CacheStorage holds named caches of responses. Writes to a single cache are
// serialized by the implementation.
type CacheStorage interface {
	// Put stores e under e.Key, replacing any previous entry with that key.
	// A replaced entry moves to the end of the insertion order.
	Put(ctx context.Context, cacheName string, e *Entry) error
	Match(ctx context.Context, cacheName, key string) (*Entry, error)
	// MatchAny searches every cache, in name order.
	MatchAny(ctx context.Context, key string) (*Entry, error)
	// Keys lists the keys of a cache in insertion order.
	Keys(ctx context.Context, cacheName string) ([]string, error)
	Delete(ctx context.Context, cacheName, key string) (bool, error)
	Names(ctx context.Context) ([]string, error)
	DeleteCache(ctx context.Context, cacheName string) (bool, error)
	// EvictExcept deletes every cache whose name is not in keep and returns
	// the deleted names.
	EvictExcept(ctx context.Context, keep []string) ([]string, error)
}
