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

func TestParseMetricCategory(t *testing.T) {
	for _, c := range MetricCategories {
		got, err := ParseMetricCategory(" " + string(c) + " ")
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseMetricCategory("metrics")
	assert.True(t, utils.IsValidationError(err))
	_, err = ParseMetricCategory("")
	assert.True(t, utils.IsValidationError(err))
}

func TestAddMetricSnapshotKeyedByUploadTime(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})

	first, err := svc.AddMetricSnapshot(ctx, &NewMetricSnapshot{
		EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(BusinessMetrics),
		Period: "2024-Q3", Values: map[string]any{"ventas": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-10-25T14:30:00.000Z", first.ID)
	assert.Equal(t, "2024-10-25T14:30:00.000Z", first.UploadedAt)
	assert.Equal(t, "2024-Q3", first.Period)
	assert.Equal(t, map[string]any{"ventas": float64(100)}, first.Values)

	// same millisecond: the key moves forward instead of overwriting
	second, err := svc.AddMetricSnapshot(ctx, &NewMetricSnapshot{
		EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(BusinessMetrics), Values: map[string]any{"ventas": 120},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-10-25T14:30:00.001Z", second.ID)

	stored := mustGet(t, store, MetricSnapshotPath(uc.EntityID, uc.ID, BusinessMetrics, first.ID))
	assert.Equal(t, float64(100), stored.Data["ventas"])
	assert.Equal(t, "2024-Q3", stored.Data[FieldPeriod])

	latest, err := svc.LatestMetricSnapshot(ctx, uc.EntityID, uc.ID, BusinessMetrics)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	none, err := svc.LatestMetricSnapshot(ctx, uc.EntityID, uc.ID, TechnicalMetrics)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAddMetricSnapshotValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})

	cases := map[string]*NewMetricSnapshot{
		"no values":      {EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(GeneralInfo)},
		"reserved name":  {EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(GeneralInfo), Values: map[string]any{"uploadedAt": "x"}},
		"bad category":   {EntityID: uc.EntityID, UseCaseID: uc.ID, Category: "other", Values: map[string]any{"a": 1}},
		"missing entity": {UseCaseID: uc.ID, Category: string(GeneralInfo), Values: map[string]any{"a": 1}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AddMetricSnapshot(ctx, input)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}

	_, err := svc.AddMetricSnapshot(ctx, &NewMetricSnapshot{
		EntityID: uc.EntityID, UseCaseID: "missing", Category: string(GeneralInfo), Values: map[string]any{"a": 1},
	})
	assert.True(t, utils.IsNotFoundError(err))
}

func TestUpdateMetricSnapshotIsVersioned(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})
	snap, err := svc.AddMetricSnapshot(ctx, &NewMetricSnapshot{
		EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(FinancialMetrics),
		Values: map[string]any{"roi": 1.2, "coste": 10},
	})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, svc.UpdateMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID, map[string]any{"roi": 1.5}))

	got, err := svc.GetMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.Values["roi"])
	assert.Equal(t, float64(10), got.Values["coste"])
	assert.Equal(t, snap.UploadedAt, got.UploadedAt)
	assert.Equal(t, "2024-10-25T15:30:00.000Z", got.UpdatedAt)

	versions, err := svc.MetricSnapshotHistory(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID, 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1.2, versions[0].Data["roi"])

	require.NoError(t, svc.RevertMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID, versions[0].VersionID))
	got, err = svc.GetMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.2, got.Values["roi"])
	assert.Equal(t, versions[0].VersionID, got.LastRevertedFrom)
	assert.NotContains(t, got.Values, FieldVersionedAt)

	err = svc.UpdateMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, "missing", map[string]any{"roi": 2})
	assert.True(t, utils.IsNotFoundError(err))
	err = svc.UpdateMetricSnapshot(ctx, uc.EntityID, uc.ID, FinancialMetrics, snap.ID, map[string]any{"fileId": "x"})
	assert.True(t, utils.IsValidationError(err))
}

func TestMigrateLegacyMetrics(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})
	legacy := LegacyMetricsPath(uc.EntityID, uc.ID)
	mustSet(t, store, docstore.Join(legacy, "2024-01"), docstore.Data{"ventas": 10, "updatedAt": "2024-02-01T10:00:00.000Z"})
	mustSet(t, store, docstore.Join(legacy, "2024-02"), docstore.Data{"DS1": "Ana", "category": "technicalMetrics"})
	mustSet(t, store, docstore.Join(legacy, "2024-02", "history", "v1"), docstore.Data{"DS1": "Old"})
	mustSet(t, store, docstore.Join(legacy, "empty"), docstore.Data{"updatedAt": "2024-02-01T10:00:00.000Z"})

	dry, err := svc.MigrateLegacyMetrics(ctx, uc.EntityID, uc.ID, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"generalInfo": 1, "technicalMetrics": 1}, dry.Migrated)
	assert.Equal(t, 1, dry.Skipped)
	assert.Equal(t, 3, countDocs(t, store, legacy), "dry run leaves legacy rows")

	results, err := svc.MigrateAllLegacyMetrics(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)

	general, err := svc.ListMetricSnapshots(ctx, uc.EntityID, uc.ID, GeneralInfo, 0)
	require.NoError(t, err)
	require.Len(t, general, 1)
	assert.Equal(t, "2024-02-01T10:00:00.000Z", general[0].ID)
	assert.Equal(t, "2024-01", general[0].Period)
	assert.Equal(t, float64(10), general[0].Values["ventas"])

	technical, err := svc.LatestMetricSnapshot(ctx, uc.EntityID, uc.ID, TechnicalMetrics)
	require.NoError(t, err)
	require.NotNil(t, technical)
	assert.Equal(t, "Ana", technical.Values["DS1"])
	assert.NotContains(t, technical.Values, "category")

	// migrated rows and their history are gone, the empty row stays for manual review
	assert.Equal(t, 1, countDocs(t, store, legacy))
	assert.Equal(t, 0, countDocs(t, store, docstore.Join(legacy, "2024-02", "history")))
}
