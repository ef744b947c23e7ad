// Package cache memoizes (document, revision) pairs to avoid redundant
// remote reads within one interactive turn. It is not a consistency
// mechanism: callers invalidate after every mutation, and nothing here
// guarantees freshness against concurrent writers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/successcugo/ULAS/internal/errs"
)

// Store is the slice of the document store the cache needs.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, string, error)
	WriteJSON(ctx context.Context, path string, doc any, message, expectedRev string) (string, error)
}

type entry struct {
	raw []byte
	rev string
}

// Cache holds fetched documents keyed by a caller-chosen cache key.
type Cache struct {
	store Store

	mu   sync.Mutex
	docs map[string]entry
}

// New creates an empty cache over store.
func New(store Store) *Cache {
	return &Cache{store: store, docs: make(map[string]entry)}
}

// Read returns the cached copy for key if present, otherwise fetches path
// from the store and populates the cache. An absent document yields def
// (with an empty revision), which is also cached.
func (c *Cache) Read(ctx context.Context, key, path string, def []byte) ([]byte, string, error) {
	c.mu.Lock()
	if e, ok := c.docs[key]; ok {
		c.mu.Unlock()
		return e.raw, e.rev, nil
	}
	c.mu.Unlock()

	raw, rev, err := c.store.Read(ctx, path)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, "", err
		}
		raw, rev = def, ""
	}

	c.mu.Lock()
	c.docs[key] = entry{raw: raw, rev: rev}
	c.mu.Unlock()
	return raw, rev, nil
}

// ReadJSON is Read plus unmarshal into v.
func (c *Cache) ReadJSON(ctx context.Context, key, path string, def []byte, v any) (string, error) {
	raw, rev, err := c.Read(ctx, key, path, def)
	if err != nil {
		return "", err
	}
	return rev, json.Unmarshal(raw, v)
}

// Invalidate drops the cached copy and revision for key, forcing the next
// Read to hit the store.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.docs, key)
	c.mu.Unlock()
}

// WriteThrough writes doc to path using the revision currently cached for
// key, then replaces the cached copy with doc and the new revision. A stale
// cached revision surfaces as errs.ErrConflict from the store; the cache
// entry is dropped so the next read refetches.
func (c *Cache) WriteThrough(ctx context.Context, key, path string, doc any, message string) error {
	c.mu.Lock()
	rev := c.docs[key].rev
	c.mu.Unlock()

	newRev, err := c.store.WriteJSON(ctx, path, doc, message, rev)
	if err != nil {
		c.Invalidate(key)
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		c.Invalidate(key)
		return err
	}
	c.mu.Lock()
	c.docs[key] = entry{raw: raw, rev: newRev}
	c.mu.Unlock()
	return nil
}
