package models

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardConfigDefaultsAndSave(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	cfg, err := svc.GetDashboardConfig(ctx, "e1", "uc1", TechnicalMetrics)
	require.NoError(t, err)
	assert.Equal(t, LayoutGrid, cfg.Layout)
	assert.Empty(t, cfg.KPIs)

	saved, err := svc.SaveDashboardConfig(ctx, &DashboardConfig{
		EntityID: "e1", UseCaseID: "uc1", Category: TechnicalMetrics,
		KPIs:           []KPIWidget{{ID: "k1", Label: "Precisión", MetricKey: "accuracy", Format: "percent"}},
		Visualizations: []Visualization{{ID: "v1", Type: "line", MetricKeys: []string{"accuracy"}}},
		Layout:         LayoutList,
	})
	require.NoError(t, err)
	assert.Equal(t, LayoutList, saved.Layout)
	require.Len(t, saved.KPIs, 1)
	assert.Equal(t, "accuracy", saved.KPIs[0].MetricKey)

	clock.Advance(time.Minute)
	_, err = svc.SaveDashboardConfig(ctx, &DashboardConfig{EntityID: "e1", UseCaseID: "uc1", Category: TechnicalMetrics})
	require.NoError(t, err)

	versions, err := svc.DashboardConfigHistory(ctx, "e1", "uc1", TechnicalMetrics, 0)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, LayoutList, versions[0].Data["layout"])

	current, err := svc.GetDashboardConfig(ctx, "e1", "uc1", TechnicalMetrics)
	require.NoError(t, err)
	assert.Equal(t, LayoutGrid, current.Layout)
	assert.Empty(t, current.KPIs)
}

func TestDashboardConfigValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]*DashboardConfig{
		"nil":              nil,
		"bad layout":       {EntityID: "e1", UseCaseID: "uc1", Category: GeneralInfo, Layout: "masonry"},
		"bad category":     {EntityID: "e1", UseCaseID: "uc1", Category: "x"},
		"missing use case": {EntityID: "e1", Category: GeneralInfo},
		"bad chart type":   {EntityID: "e1", UseCaseID: "uc1", Category: GeneralInfo, Visualizations: []Visualization{{ID: "v", Type: "radar", MetricKeys: []string{"a"}}}},
		"kpi without key":  {EntityID: "e1", UseCaseID: "uc1", Category: GeneralInfo, KPIs: []KPIWidget{{ID: "k", Label: "K"}}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SaveDashboardConfig(ctx, cfg)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}
}

func TestDashboardConfigSurvivesUseCaseDelete(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})
	_, err := svc.SaveDashboardConfig(ctx, &DashboardConfig{EntityID: uc.EntityID, UseCaseID: uc.ID, Category: GeneralInfo, Layout: LayoutList})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUseCase(ctx, uc.EntityID, uc.ID))

	cfg, err := svc.GetDashboardConfig(ctx, uc.EntityID, uc.ID, GeneralInfo)
	require.NoError(t, err)
	assert.Equal(t, LayoutList, cfg.Layout)

	require.NoError(t, svc.DeleteDashboardConfig(ctx, uc.EntityID, uc.ID, GeneralInfo))
	assert.True(t, utils.IsNotFoundError(svc.DeleteDashboardConfig(ctx, uc.EntityID, uc.ID, GeneralInfo)))
}
