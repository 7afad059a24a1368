package models

import (
	"context"
	"fmt"
	"testing"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTree(t *testing.T, store docstore.Store) {
	t.Helper()
	mustSet(t, store, "entities/e1", docstore.Data{"name": "E1"})
	mustSet(t, store, "entities/e1/useCases/uc1", docstore.Data{"name": "UC1"})
	for i := 0; i < 3; i++ {
		mustSet(t, store, fmt.Sprintf("entities/e1/useCases/uc1/history/v%d", i), docstore.Data{"i": i})
	}
	mustSet(t, store, "entities/e1/useCases/uc1/technicalMetrics/m1", docstore.Data{"DS1": "ana"})
	mustSet(t, store, "entities/e1/useCases/uc1/technicalMetrics/m1/history/v1", docstore.Data{"DS1": "bob"})
	mustSet(t, store, "entities/e2", docstore.Data{"name": "E2"})
	mustSet(t, store, "entities/e3", docstore.Data{"name": "E3"})
	mustSet(t, store, "dashboardConfigs/e1__uc1__technicalMetrics", docstore.Data{"layout": "grid"})
}

func TestDeleteCollectionRecursiveDrainsNestedTrees(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	seedTree(t, store)

	require.NoError(t, svc.DeleteCollectionRecursive(ctx, "entities", 2))

	assert.Equal(t, 0, countDocs(t, store, "entities"))
	for _, sub := range []string{
		"entities/e1/useCases",
		"entities/e1/useCases/uc1/history",
		"entities/e1/useCases/uc1/technicalMetrics",
		"entities/e1/useCases/uc1/technicalMetrics/m1/history",
	} {
		assert.Equal(t, 0, countDocs(t, store, sub), sub)
	}
	children, err := store.ListCollections(ctx, "entities/e1")
	require.NoError(t, err)
	assert.Empty(t, children)

	// other top-level collections are untouched
	assert.Equal(t, 1, countDocs(t, store, "dashboardConfigs"))
	assert.Equal(t, 1, store.Len())
}

func TestDeleteCollectionRecursiveBatchSizeOne(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedTree(t, store)

	require.NoError(t, svc.DeleteCollectionRecursive(context.Background(), "entities/e1/useCases", 1))

	assert.Equal(t, 0, countDocs(t, store, "entities/e1/useCases"))
	assert.True(t, mustGet(t, store, "entities/e1").Exists)
	assert.Equal(t, 4, store.Len())
}

func TestDeleteCollectionRecursiveEmptyIsNoop(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.DeleteCollectionRecursive(ctx, "entities", 10))
	require.NoError(t, svc.DeleteCollectionRecursive(ctx, "entities", 10))
}

func TestDeleteCollectionRecursiveRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.True(t, utils.IsValidationError(svc.DeleteCollectionRecursive(ctx, "entities/e1", 10)))
	assert.True(t, utils.IsValidationError(svc.DeleteCollectionRecursive(ctx, "entities", 0)))
}

func TestDeleteCollectionRecursiveOrphanedChildren(t *testing.T) {
	svc, store, _ := newTestService(t)
	// sub-collection under a document that was never written
	mustSet(t, store, "entities/ghost/useCases/uc1", docstore.Data{"name": "x"})

	require.NoError(t, svc.DeleteDocumentRecursive(context.Background(), "entities/ghost", 10))
	assert.Equal(t, 0, store.Len())
}

func TestDeleteDocumentRecursive(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedTree(t, store)

	require.NoError(t, svc.DeleteDocumentRecursive(context.Background(), "entities/e1", 3))

	assert.False(t, mustGet(t, store, "entities/e1").Exists)
	assert.Equal(t, 2, countDocs(t, store, "entities"))
	assert.Equal(t, 0, countDocs(t, store, "entities/e1/useCases"))
}

func TestDeleteCollectionRecursiveStopsOnCancel(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedTree(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.DeleteCollectionRecursive(ctx, "entities", 2)
	require.Error(t, err)
	assert.True(t, mustGet(t, store, "entities/e2").Exists)
}
