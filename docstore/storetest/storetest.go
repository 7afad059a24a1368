// Package storetest is the behaviour suite every docstore.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) docstore.Store

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store)
	}{
		{"SetGetDelete", testSetGetDelete},
		{"MergeIsShallow", testMergeIsShallow},
		{"InvalidPaths", testInvalidPaths},
		{"QueryOrderAndLimit", testQueryOrderAndLimit},
		{"QueryFilterAndOrderField", testQueryFilterAndOrderField},
		{"ListCollections", testListCollections},
		{"TransactionCommit", testTransactionCommit},
		{"TransactionRollback", testTransactionRollback},
		{"TransactionReadAfterWrite", testTransactionReadAfterWrite},
		{"BatchCommit", testBatchCommit},
		{"BatchInvalidPath", testBatchInvalidPath},
		{"Closed", testClosed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testSetGetDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	snap, err := s.Get(ctx, "entities/e1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "e1", snap.ID)

	require.NoError(t, s.Set(ctx, "entities/e1", docstore.Data{"name": "Uno", "count": 3, "tags": []string{"a"}}))
	snap, err = s.Get(ctx, "entities/e1")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "entities/e1", snap.Path)
	// values come back in their JSON shape
	assert.Equal(t, docstore.Data{"name": "Uno", "count": float64(3), "tags": []any{"a"}}, snap.Data)
	assert.False(t, snap.CreatedAt.IsZero())

	// a plain set replaces the document
	require.NoError(t, s.Set(ctx, "entities/e1", docstore.Data{"name": "Dos"}))
	snap, err = s.Get(ctx, "entities/e1")
	require.NoError(t, err)
	assert.Equal(t, docstore.Data{"name": "Dos"}, snap.Data)

	require.NoError(t, s.Delete(ctx, "entities/e1"))
	snap, err = s.Get(ctx, "entities/e1")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	// deleting a missing document is fine
	require.NoError(t, s.Delete(ctx, "entities/e1"))
}

func testMergeIsShallow(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "entities/e1", docstore.Data{
		"name": "Uno",
		"meta": map[string]any{"a": 1, "b": 2},
	}))
	require.NoError(t, s.Set(ctx, "entities/e1", docstore.Data{
		"meta":  map[string]any{"a": 5},
		"extra": true,
	}, docstore.Merge()))

	snap, err := s.Get(ctx, "entities/e1")
	require.NoError(t, err)
	assert.Equal(t, docstore.Data{
		"name":  "Uno",
		"meta":  map[string]any{"a": float64(5)},
		"extra": true,
	}, snap.Data)

	// merge onto a missing document creates it
	require.NoError(t, s.Set(ctx, "entities/e2", docstore.Data{"name": "Dos"}, docstore.Merge()))
	snap, err = s.Get(ctx, "entities/e2")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
}

func testInvalidPaths(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	for _, p := range []string{"", "entities", "entities/e1/useCases", "entities//x"} {
		_, err := s.Get(ctx, p)
		assert.ErrorIs(t, err, docstore.ErrInvalidPath, p)
		assert.ErrorIs(t, s.Set(ctx, p, docstore.Data{"a": 1}), docstore.ErrInvalidPath, p)
	}
	_, err := s.Query(ctx, docstore.Query{Collection: "entities/e1"})
	assert.ErrorIs(t, err, docstore.ErrInvalidPath)
	_, err = s.ListCollections(ctx, "entities")
	assert.ErrorIs(t, err, docstore.ErrInvalidPath)
}

func seed(t *testing.T, s docstore.Store, docs map[string]docstore.Data) {
	t.Helper()
	ctx := context.Background()
	for p, d := range docs {
		require.NoError(t, s.Set(ctx, p, d))
	}
}

func ids(snaps []*docstore.Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.ID
	}
	return out
}

func testQueryOrderAndLimit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s, map[string]docstore.Data{
		"c/d/history/2024-10-25T14:30:00.000Z": {"v": 1},
		"c/d/history/2024-10-25T14:30:00.001Z": {"v": 2},
		"c/d/history/2024-09-01T00:00:00.000Z": {"v": 3},
		"c/d/history/2024-10-25T14:30:00.001Z/nested/x": {"v": 4},
		"c/other/history/2025-01-01T00:00:00.000Z":       {"v": 5},
	})

	all, err := s.Query(ctx, docstore.Query{Collection: "c/d/history", OrderBy: docstore.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-09-01T00:00:00.000Z",
		"2024-10-25T14:30:00.000Z",
		"2024-10-25T14:30:00.001Z",
	}, ids(all))

	newest, err := s.Query(ctx, docstore.Query{
		Collection: "c/d/history", OrderBy: docstore.DocumentID, Direction: docstore.Desc, Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-10-25T14:30:00.001Z"}, ids(newest))

	empty, err := s.Query(ctx, docstore.Query{Collection: "c/missing/history"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testQueryFilterAndOrderField(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s, map[string]docstore.Data{
		"files/a": {"fileId": "f1", "uploadedAt": "2024-03-01"},
		"files/b": {"fileId": "f2", "uploadedAt": "2024-01-01"},
		"files/c": {"fileId": "f1", "uploadedAt": "2024-02-01"},
		"files/d": {"fileId": "f1"},
	})

	byFile, err := s.Query(ctx, docstore.Query{
		Collection: "files",
		Filters:    []docstore.Filter{{Field: "fileId", Value: "f1"}},
		OrderBy:    "uploadedAt",
		Direction:  docstore.Desc,
	})
	require.NoError(t, err)
	// d has no uploadedAt and is left out of the ordered result
	assert.Equal(t, []string{"a", "c"}, ids(byFile))

	byID, err := s.Query(ctx, docstore.Query{
		Collection: "files",
		Filters:    []docstore.Filter{{Field: docstore.DocumentID, Value: "b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(byID))
}

func testListCollections(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s, map[string]docstore.Data{
		"entities/e1":                         {"n": 1},
		"entities/e1/useCases/u1":             {"n": 2},
		"entities/e1/useCases/u1/history/v1":  {"n": 3},
		"entities/e1/history/v1":              {"n": 4},
		"entities/e10/useCases/u2":            {"n": 5},
		"dashboardConfigs/e1__u1__generalInfo": {"n": 6},
	})

	got, err := s.ListCollections(ctx, "entities/e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"history", "useCases"}, got)

	// the parent document need not exist
	got, err = s.ListCollections(ctx, "entities/e10")
	require.NoError(t, err)
	assert.Equal(t, []string{"useCases"}, got)

	got, err = s.ListCollections(ctx, "entities/e1/useCases/u1/history/v1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.ListCollections(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"dashboardConfigs", "entities"}, got)
}

func testTransactionCommit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s, map[string]docstore.Data{"docs/a": {"n": 1}})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		snap, err := tx.Get("docs/a")
		if err != nil {
			return err
		}
		n := snap.Data["n"].(float64)
		if err := tx.Set("docs/a/history/v1", snap.Data); err != nil {
			return err
		}
		if err := tx.Set("docs/a", docstore.Data{"n": n + 1}, docstore.Merge()); err != nil {
			return err
		}
		return tx.Delete("docs/gone")
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.Equal(t, float64(2), snap.Data["n"])
	hist, err := s.Get(ctx, "docs/a/history/v1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), hist.Data["n"])
}

func testTransactionRollback(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		if err := tx.Set("docs/a", docstore.Data{"n": 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	snap, err := s.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func testTransactionReadAfterWrite(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		if err := tx.Set("docs/a", docstore.Data{"n": 1}); err != nil {
			return err
		}
		_, err := tx.Get("docs/b")
		return err
	})
	assert.ErrorIs(t, err, docstore.ErrReadAfterWrite)

	snap, err := s.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
}

func testBatchCommit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s, map[string]docstore.Data{"docs/old": {"n": 0}})

	b := s.Batch()
	b.Set("docs/a", docstore.Data{"n": 1})
	b.Set("docs/a", docstore.Data{"m": 2}, docstore.Merge())
	b.Delete("docs/old")
	assert.Equal(t, 3, b.Len())
	require.NoError(t, b.Commit(ctx))

	snap, err := s.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.Equal(t, docstore.Data{"n": float64(1), "m": float64(2)}, snap.Data)
	old, err := s.Get(ctx, "docs/old")
	require.NoError(t, err)
	assert.False(t, old.Exists)

	// an empty batch commits as a no-op
	require.NoError(t, s.Batch().Commit(ctx))
}

func testBatchInvalidPath(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	b := s.Batch()
	b.Set("docs/a", docstore.Data{"n": 1})
	b.Delete("docs")
	assert.ErrorIs(t, b.Commit(ctx), docstore.ErrInvalidPath)

	snap, err := s.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists, "nothing from a rejected batch is applied")
}

func testClosed(t *testing.T, s docstore.Store) {
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "docs/a")
	assert.ErrorIs(t, err, docstore.ErrClosed)
}
