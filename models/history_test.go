package models

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const docPath = "entities/e1/useCases/uc1"

func TestVersionedUpdateKeepsPriorStateInHistory(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	clock.Advance(time.Second)
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 2}))

	live := mustGet(t, store, docPath)
	assert.Equal(t, float64(2), live.Data["a"])
	assert.Equal(t, "2024-10-25T14:30:01.000Z", live.Data[FieldUpdatedAt])

	versions, err := store.Query(ctx, docstore.Query{Collection: HistoryPath(docPath)})
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "2024-10-25T14:30:01.000Z", versions[0].ID)
	assert.Equal(t, float64(1), versions[0].Data["a"])
	assert.Equal(t, "2024-10-25T14:30:01.000Z", versions[0].Data[FieldVersionedAt])
	assert.Equal(t, "2024-10-25T14:30:00.000Z", versions[0].Data[FieldUpdatedAt])
}

func TestVersionedUpdateFirstWriteHasNoHistory(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"name": "new"}))

	assert.True(t, mustGet(t, store, docPath).Exists)
	assert.Equal(t, 0, countDocs(t, store, HistoryPath(docPath)))
}

func TestVersionedUpdateMergesShallow(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	mustSet(t, store, docPath, docstore.Data{"keep": "yes", "nested": map[string]any{"x": 1, "y": 2}})

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"nested": map[string]any{"x": 5}}))

	live := mustGet(t, store, docPath)
	assert.Equal(t, "yes", live.Data["keep"])
	assert.Equal(t, map[string]any{"x": float64(5)}, live.Data["nested"])
}

func TestVersionedUpdateSameMillisecondGetsDistinctVersions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	mustSet(t, store, docPath, docstore.Data{"a": 0})

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 2}))

	versions, err := svc.ListHistory(ctx, docPath, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "2024-10-25T14:30:00.001Z", versions[0].VersionID)
	assert.Equal(t, float64(1), versions[0].Data["a"])
	assert.Equal(t, "2024-10-25T14:30:00.000Z", versions[1].VersionID)
	assert.Equal(t, float64(0), versions[1].Data["a"])
	assert.NotContains(t, versions[0].Data, FieldVersionedAt)
}

func TestVersionedUpdateRejectsBadInput(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		path    string
		partial docstore.Data
	}{
		{"collection path", "entities", docstore.Data{"a": 1}},
		{"empty path", "", docstore.Data{"a": 1}},
		{"empty update", docPath, docstore.Data{}},
		{"versionedAt", docPath, docstore.Data{FieldVersionedAt: "x"}},
		{"lastRevertedFrom", docPath, docstore.Data{FieldLastRevertedFrom: "x"}},
		{"updatedAt", docPath, docstore.Data{FieldUpdatedAt: "x"}},
		{"history", docPath, docstore.Data{"history": "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.VersionedUpdate(ctx, tc.path, tc.partial)
			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}
	assert.False(t, mustGet(t, store, docPath).Exists)
}

func TestRevertRestoresVersionWithoutBookkeeping(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	clock.Advance(time.Second)
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 2, "b": "added later"}))
	versionID := "2024-10-25T14:30:01.000Z"

	clock.Advance(time.Second)
	require.NoError(t, svc.RevertToVersion(ctx, docPath, versionID))

	live := mustGet(t, store, docPath)
	assert.Equal(t, float64(1), live.Data["a"])
	assert.Equal(t, versionID, live.Data[FieldLastRevertedFrom])
	assert.Equal(t, "2024-10-25T14:30:02.000Z", live.Data[FieldUpdatedAt])
	assert.NotContains(t, live.Data, FieldVersionedAt)
	assert.Equal(t, "added later", live.Data["b"], "fields newer than the version are kept")
}

func TestRevertIsItselfVersioned(t *testing.T) {
	svc, store, clock := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	clock.Advance(time.Second)
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 2}))
	clock.Advance(time.Second)
	require.NoError(t, svc.RevertToVersion(ctx, docPath, "2024-10-25T14:30:01.000Z"))

	versions, err := svc.ListHistory(ctx, docPath, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "2024-10-25T14:30:02.000Z", versions[0].VersionID)
	assert.Equal(t, float64(2), versions[0].Data["a"])

	// undo the revert
	clock.Advance(time.Second)
	require.NoError(t, svc.RevertToVersion(ctx, docPath, versions[0].VersionID))
	assert.Equal(t, float64(2), mustGet(t, store, docPath).Data["a"])
}

func TestRevertMissingVersionFailsWithoutChanges(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	before := mustGet(t, store, docPath)

	err := svc.RevertToVersion(ctx, docPath, "does-not-exist")
	require.Error(t, err)
	assert.True(t, utils.IsNotFoundError(err))

	after := mustGet(t, store, docPath)
	assert.Equal(t, before.Data, after.Data)
	assert.Equal(t, 0, countDocs(t, store, HistoryPath(docPath)))
}

func TestRevertRequiresVersionID(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.RevertToVersion(context.Background(), docPath, "")
	assert.True(t, utils.IsValidationError(err))
}

func TestGetHistoryVersion(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 1}))
	clock.Advance(time.Second)
	require.NoError(t, svc.VersionedUpdate(ctx, docPath, docstore.Data{"a": 2}))

	v, err := svc.GetHistoryVersion(ctx, docPath, "2024-10-25T14:30:01.000Z")
	require.NoError(t, err)
	assert.Equal(t, "2024-10-25T14:30:01.000Z", v.VersionedAt)
	assert.Equal(t, float64(1), v.Data["a"])

	_, err = svc.GetHistoryVersion(ctx, docPath, "2000-01-01T00:00:00.000Z")
	assert.True(t, utils.IsNotFoundError(err))
}
