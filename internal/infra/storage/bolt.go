// internal/infra/storage/bolt.go
package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	domainStorage "zvit_agent/internal/domain/storage"
)

const (
	localStorageBucket = "local_storage"
	cookiesBucket      = "cookies"
	cachePrefix        = "cache:"
	entriesBucket      = "entries" // seq -> entry JSON
	indexBucket        = "index"   // request key -> seq
)

// BoltStore keeps local storage, the cookie mirror and named response
// caches in a single bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the store at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{localStorageBucket, cookiesBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// LocalStorage returns the page's local storage.
func (s *BoltStore) LocalStorage() *BoltKV {
	return &BoltKV{db: s.db, bucket: []byte(localStorageBucket)}
}

// Cookies returns the cookie mirror used for keys that must survive a
// local storage wipe.
func (s *BoltStore) Cookies() *BoltKV {
	return &BoltKV{db: s.db, bucket: []byte(cookiesBucket)}
}

func cacheBucketName(cacheName string) []byte {
	return []byte(cachePrefix + cacheName)
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

// Put stores e, replacing an existing entry with the same key.
func (s *BoltStore) Put(ctx context.Context, cacheName string, e *domainStorage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", e.Key, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(cacheBucketName(cacheName))
		if err != nil {
			return err
		}
		entries, err := root.CreateBucketIfNotExists([]byte(entriesBucket))
		if err != nil {
			return err
		}
		index, err := root.CreateBucketIfNotExists([]byte(indexBucket))
		if err != nil {
			return err
		}

		if old := index.Get([]byte(e.Key)); old != nil {
			if err := entries.Delete(old); err != nil {
				return err
			}
		}
		seq, err := entries.NextSequence()
		if err != nil {
			return err
		}
		if err := entries.Put(seqKey(seq), value); err != nil {
			return err
		}
		return index.Put([]byte(e.Key), seqKey(seq))
	})
}

// cacheBuckets returns the entries and index buckets of a cache, or nils.
func cacheBuckets(tx *bolt.Tx, cacheName string) (entries, index *bolt.Bucket) {
	root := tx.Bucket(cacheBucketName(cacheName))
	if root == nil {
		return nil, nil
	}
	return root.Bucket([]byte(entriesBucket)), root.Bucket([]byte(indexBucket))
}

func (s *BoltStore) Match(ctx context.Context, cacheName, key string) (*domainStorage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var e *domainStorage.Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		e, err = matchIn(tx, cacheName, key)
		return err
	})
	return e, err
}

func matchIn(tx *bolt.Tx, cacheName, key string) (*domainStorage.Entry, error) {
	entries, index := cacheBuckets(tx, cacheName)
	if entries == nil || index == nil {
		return nil, domainStorage.ErrNotFound
	}
	seq := index.Get([]byte(key))
	if seq == nil {
		return nil, domainStorage.ErrNotFound
	}
	raw := entries.Get(seq)
	if raw == nil {
		return nil, domainStorage.ErrNotFound
	}
	var e domainStorage.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s/%s: %w", cacheName, key, err)
	}
	return &e, nil
}

// MatchAny searches every cache in name order and returns the first hit.
func (s *BoltStore) MatchAny(ctx context.Context, key string) (*domainStorage.Entry, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	var found *domainStorage.Entry
	err = s.db.View(func(tx *bolt.Tx) error {
		for _, name := range names {
			e, err := matchIn(tx, name, key)
			if errors.Is(err, domainStorage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			found = e
			return nil
		}
		return domainStorage.ErrNotFound
	})
	return found, err
}

// Keys lists request keys in insertion order.
func (s *BoltStore) Keys(ctx context.Context, cacheName string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		entries, _ := cacheBuckets(tx, cacheName)
		if entries == nil {
			return nil
		}
		return entries.ForEach(func(_, v []byte) error {
			var head struct {
				Key string `json:"key"`
			}
			if err := json.Unmarshal(v, &head); err != nil {
				return fmt.Errorf("corrupt cache entry in %s: %w", cacheName, err)
			}
			keys = append(keys, head.Key)
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) Delete(ctx context.Context, cacheName, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries, index := cacheBuckets(tx, cacheName)
		if entries == nil || index == nil {
			return nil
		}
		seq := index.Get([]byte(key))
		if seq == nil {
			return nil
		}
		seq = bytes.Clone(seq)
		if err := index.Delete([]byte(key)); err != nil {
			return err
		}
		deleted = true
		return entries.Delete(seq)
	})
	return deleted, err
}

// Names lists cache names in lexical order.
func (s *BoltStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if bytes.HasPrefix(name, []byte(cachePrefix)) {
				names = append(names, string(name[len(cachePrefix):]))
			}
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (s *BoltStore) DeleteCache(ctx context.Context, cacheName string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket(cacheBucketName(cacheName))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

// BoltKV is a string key/value view over one bucket.
type BoltKV struct {
	db     *bolt.DB
	bucket []byte
}

func (kv *BoltKV) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var value []byte
	err := kv.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(kv.bucket).Get([]byte(key))
		if v == nil {
			return domainStorage.ErrNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	return string(value), err
}

func (kv *BoltKV) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return kv.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kv.bucket).Put([]byte(key), []byte(value))
	})
}

func (kv *BoltKV) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return kv.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(kv.bucket).Delete([]byte(key))
	})
}

// EvictExcept drops, in one transaction, every cache not named in keep.
func (s *BoltStore) EvictExcept(ctx context.Context, keep []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(keep))
	for _, name := range keep {
		kept[name] = true
	}

	var evicted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		var victims [][]byte
		err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			if bytes.HasPrefix(name, []byte(cachePrefix)) && !kept[string(name[len(cachePrefix):])] {
				victims = append(victims, bytes.Clone(name))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range victims {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			evicted = append(evicted, string(name[len(cachePrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evicted, nil
}
