package models

import (
	"context"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
)

const (
	LayoutGrid = "grid"
	LayoutList = "list"
)

type KPIWidget struct {
	ID        string `json:"id" validate:"required,max=100"`
	Label     string `json:"label" validate:"required,max=200"`
	MetricKey string `json:"metricKey" validate:"required"`
	Format    string `json:"format,omitempty" validate:"omitempty,oneof=number percent currency text"`
}

type Visualization struct {
	ID         string   `json:"id" validate:"required,max=100"`
	Type       string   `json:"type" validate:"required,oneof=line bar pie area table"`
	Title      string   `json:"title,omitempty" validate:"max=200"`
	MetricKeys []string `json:"metricKeys" validate:"required,min=1"`
}

// DashboardConfig is the widget setup of one use case and metric category. It outlives
// the use case it describes.
type DashboardConfig struct {
	EntityID       string          `json:"entityId"`
	UseCaseID      string          `json:"useCaseId"`
	Category       MetricCategory  `json:"category"`
	KPIs           []KPIWidget     `json:"kpis" validate:"dive"`
	Visualizations []Visualization `json:"visualizations" validate:"dive"`
	Layout         string          `json:"layout" validate:"omitempty,oneof=grid list"`
	UpdatedAt      string          `json:"updatedAt,omitempty"`

	LastRevertedFrom string `json:"lastRevertedFrom,omitempty"`
}

func defaultDashboardConfig(entityID, useCaseID string, category MetricCategory) *DashboardConfig {
	return &DashboardConfig{
		EntityID:       entityID,
		UseCaseID:      useCaseID,
		Category:       category,
		KPIs:           []KPIWidget{},
		Visualizations: []Visualization{},
		Layout:         LayoutGrid,
	}
}

func checkConfigKey(entityID, useCaseID string, category MetricCategory) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return err
	}
	if _, err := ParseMetricCategory(string(category)); err != nil {
		return err
	}
	return nil
}

// GetDashboardConfig returns the stored config, or the default layout when none was
// saved yet.
func (s *Service) GetDashboardConfig(ctx context.Context, entityID, useCaseID string, category MetricCategory) (*DashboardConfig, error) {
	if err := checkConfigKey(entityID, useCaseID, category); err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, DashboardConfigPath(entityID, useCaseID, category))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return defaultDashboardConfig(entityID, useCaseID, category), nil
	}
	cfg, err := decodeDoc[DashboardConfig](snap)
	if err != nil {
		return nil, err
	}
	cfg.EntityID, cfg.UseCaseID, cfg.Category = entityID, useCaseID, category
	if cfg.Layout == "" {
		cfg.Layout = LayoutGrid
	}
	return cfg, nil
}

// SaveDashboardConfig replaces the widget lists and layout. Prior saves are kept in
// history.
func (s *Service) SaveDashboardConfig(ctx context.Context, cfg *DashboardConfig) (*DashboardConfig, error) {
	if cfg == nil {
		return nil, utils.NewValidationError("body", "is required")
	}
	if err := checkConfigKey(cfg.EntityID, cfg.UseCaseID, cfg.Category); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(cfg); err != nil {
		return nil, err
	}
	saved := *cfg
	if saved.Layout == "" {
		saved.Layout = LayoutGrid
	}
	if saved.KPIs == nil {
		saved.KPIs = []KPIWidget{}
	}
	if saved.Visualizations == nil {
		saved.Visualizations = []Visualization{}
	}
	fields := docstore.Data{
		"entityId":       saved.EntityID,
		"useCaseId":      saved.UseCaseID,
		"category":       string(saved.Category),
		"kpis":           saved.KPIs,
		"visualizations": saved.Visualizations,
		"layout":         saved.Layout,
	}
	if err := s.versionedUpdate(ctx, DashboardConfigPath(saved.EntityID, saved.UseCaseID, saved.Category), fields, versionedWrite{}); err != nil {
		return nil, err
	}
	return s.GetDashboardConfig(ctx, saved.EntityID, saved.UseCaseID, saved.Category)
}

func (s *Service) DeleteDashboardConfig(ctx context.Context, entityID, useCaseID string, category MetricCategory) error {
	if err := checkConfigKey(entityID, useCaseID, category); err != nil {
		return err
	}
	path := DashboardConfigPath(entityID, useCaseID, category)
	snap, err := s.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return utils.NewNotFoundError("dashboard config", docstore.ID(path))
	}
	return s.DeleteDocumentRecursive(ctx, path, s.deleteBatchSize)
}

func (s *Service) DashboardConfigHistory(ctx context.Context, entityID, useCaseID string, category MetricCategory, limit int) ([]*HistoryVersion, error) {
	if err := checkConfigKey(entityID, useCaseID, category); err != nil {
		return nil, err
	}
	return s.ListHistory(ctx, DashboardConfigPath(entityID, useCaseID, category), limit)
}
