package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/successcugo/ULAS/internal/errs"
)

type fakeStore struct {
	docs  map[string][]byte
	revs  map[string]int
	reads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}, revs: map[string]int{}}
}

func (f *fakeStore) Read(_ context.Context, path string) ([]byte, string, error) {
	f.reads++
	raw, ok := f.docs[path]
	if !ok {
		return nil, "", errs.ErrNotFound
	}
	return raw, strconv.Itoa(f.revs[path]), nil
}

func (f *fakeStore) WriteJSON(_ context.Context, path string, doc any, _ string, expectedRev string) (string, error) {
	if f.docs[path] != nil && expectedRev != strconv.Itoa(f.revs[path]) {
		return "", errs.ErrConflict
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	f.docs[path] = raw
	f.revs[path]++
	return strconv.Itoa(f.revs[path]), nil
}

func TestRead_MemoizesUntilInvalidated(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.docs["data/users.json"] = []byte(`{"a":1}`)
	c := New(store)
	ctx := context.Background()

	raw, rev, err := c.Read(ctx, "users", "data/users.json", []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(raw))
	require.Equal(t, "0", rev)
	require.Equal(t, 1, store.reads)

	_, _, err = c.Read(ctx, "users", "data/users.json", []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, 1, store.reads, "second read must be served from cache")

	c.Invalidate("users")
	_, _, err = c.Read(ctx, "users", "data/users.json", []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, 2, store.reads)
}

func TestRead_AbsentYieldsDefault(t *testing.T) {
	t.Parallel()
	c := New(newFakeStore())

	raw, rev, err := c.Read(context.Background(), "users", "data/users.json", []byte(`{"users":{}}`))
	require.NoError(t, err)
	require.Equal(t, `{"users":{}}`, string(raw))
	require.Empty(t, rev)
}

func TestReadJSON(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.docs["data/settings.json"] = []byte(`{"TOKEN_LIFETIME":10}`)
	c := New(store)

	var got map[string]int
	rev, err := c.ReadJSON(context.Background(), "settings", "data/settings.json", []byte("{}"), &got)
	require.NoError(t, err)
	require.Equal(t, "0", rev)
	require.Equal(t, 10, got["TOKEN_LIFETIME"])
}

func TestWriteThrough(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.docs["data/settings.json"] = []byte(`{"TOKEN_LIFETIME":7}`)
	store.revs["data/settings.json"] = 3
	c := New(store)
	ctx := context.Background()

	// Prime the cache so the write carries the current revision.
	var got map[string]int
	_, err := c.ReadJSON(ctx, "settings", "data/settings.json", []byte("{}"), &got)
	require.NoError(t, err)

	got["TOKEN_LIFETIME"] = 30
	require.NoError(t, c.WriteThrough(ctx, "settings", "data/settings.json", got, "update"))
	require.Equal(t, `{"TOKEN_LIFETIME":30}`, string(store.docs["data/settings.json"]))

	// The cache now holds the written doc with the new revision; no refetch.
	reads := store.reads
	raw, rev, err := c.Read(ctx, "settings", "data/settings.json", []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, reads, store.reads)
	require.Equal(t, "4", rev)
	require.JSONEq(t, `{"TOKEN_LIFETIME":30}`, string(raw))
}

func TestWriteThrough_ConflictDropsEntry(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.docs["data/users.json"] = []byte(`{"a":1}`)
	c := New(store)
	ctx := context.Background()

	_, _, err := c.Read(ctx, "users", "data/users.json", []byte("{}"))
	require.NoError(t, err)

	// Bump the store behind the cache's back.
	store.revs["data/users.json"] = 9

	err = c.WriteThrough(ctx, "users", "data/users.json", map[string]int{"a": 2}, "update")
	require.ErrorIs(t, err, errs.ErrConflict)

	// Next read refetches.
	reads := store.reads
	_, _, err = c.Read(ctx, "users", "data/users.json", []byte("{}"))
	require.NoError(t, err)
	require.Equal(t, reads+1, store.reads)
}
