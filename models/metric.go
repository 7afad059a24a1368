package models

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
)

type MetricCategory string

const (
	TechnicalMetrics MetricCategory = "technicalMetrics"
	BusinessMetrics  MetricCategory = "businessMetrics"
	FinancialMetrics MetricCategory = "financialMetrics"
	GeneralInfo      MetricCategory = "generalInfo"
)

var MetricCategories = []MetricCategory{TechnicalMetrics, BusinessMetrics, FinancialMetrics, GeneralInfo}

func (c MetricCategory) IsValid() bool {
	for _, known := range MetricCategories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseMetricCategory(s string) (MetricCategory, error) {
	c := MetricCategory(strings.TrimSpace(s))
	if c == "" {
		return "", utils.RequiredError("category")
	}
	if !c.IsValid() {
		return "", utils.NewValidationError("category", fmt.Sprintf("unknown category %q", s))
	}
	return c, nil
}

const (
	FieldUploadedAt = "uploadedAt"
	FieldFileID     = "fileId"
	FieldPeriod     = "period"
)

// Bookkeeping fields stored next to the metric values of a snapshot.
var snapshotFields = map[string]bool{
	FieldUploadedAt:       true,
	FieldUpdatedAt:        true,
	FieldFileID:           true,
	FieldPeriod:           true,
	FieldVersionedAt:      true,
	FieldLastRevertedFrom: true,
	CollectionHistory:     true,
}

// MetricSnapshot is one upload of metric values for a use case and category. Values are
// stored as top-level document fields beside the bookkeeping fields.
type MetricSnapshot struct {
	ID               string         `json:"id"`
	EntityID         string         `json:"entityId"`
	UseCaseID        string         `json:"useCaseId"`
	Category         MetricCategory `json:"category"`
	Period           string         `json:"period,omitempty"`
	FileID           string         `json:"fileId,omitempty"`
	Values           map[string]any `json:"values"`
	UploadedAt       string         `json:"uploadedAt,omitempty"`
	UpdatedAt        string         `json:"updatedAt,omitempty"`
	LastRevertedFrom string         `json:"lastRevertedFrom,omitempty"`
}

type NewMetricSnapshot struct {
	EntityID  string         `json:"entityId" binding:"required"`
	UseCaseID string         `json:"useCaseId" binding:"required"`
	Category  string         `json:"category" binding:"required"`
	Period    string         `json:"period"`
	FileID    string         `json:"fileId"`
	Values    map[string]any `json:"values" binding:"required"`
}

func checkMetricValues(values map[string]any) error {
	if len(values) == 0 {
		return utils.NewValidationError("values", "at least one metric is required")
	}
	for k := range values {
		if strings.TrimSpace(k) == "" {
			return utils.NewValidationError("values", "metric names must not be empty")
		}
		if snapshotFields[k] {
			return utils.NewValidationError("values", fmt.Sprintf("%q is a reserved name", k))
		}
	}
	return nil
}

func snapshotFromDoc(snap *docstore.Snapshot, entityID, useCaseID string, category MetricCategory) *MetricSnapshot {
	m := &MetricSnapshot{
		ID:        snap.ID,
		EntityID:  entityID,
		UseCaseID: useCaseID,
		Category:  category,
		Values:    map[string]any{},
	}
	for k, v := range snap.Data {
		switch k {
		case FieldUploadedAt:
			m.UploadedAt, _ = v.(string)
		case FieldUpdatedAt:
			m.UpdatedAt, _ = v.(string)
		case FieldFileID:
			m.FileID, _ = v.(string)
		case FieldPeriod:
			m.Period, _ = v.(string)
		case FieldLastRevertedFrom:
			m.LastRevertedFrom, _ = v.(string)
		case FieldVersionedAt, CollectionHistory:
		default:
			m.Values[k] = v
		}
	}
	return m
}

func snapshotDoc(values map[string]any, uploadedAt, fileID, period string) docstore.Data {
	data := docstore.Data{}
	for k, v := range values {
		data[k] = v
	}
	data[FieldUploadedAt] = uploadedAt
	data[FieldUpdatedAt] = uploadedAt
	if fileID != "" {
		data[FieldFileID] = fileID
	}
	if period != "" {
		data[FieldPeriod] = period
	}
	return data
}

func requireUseCase(tx docstore.Transaction, entityID, useCaseID string) error {
	useCase, err := tx.Get(UseCasePath(entityID, useCaseID))
	if err != nil {
		return err
	}
	if !useCase.Exists {
		return utils.NewNotFoundError("use case", useCaseID)
	}
	return nil
}

// freeSnapshotID is freeVersionID for a metrics collection: the upload timestamp,
// advanced by a millisecond while taken.
func freeSnapshotID(tx docstore.Transaction, collection string, t time.Time) (string, error) {
	for i := 0; i < versionIDProbeLimit; i++ {
		id := utils.FormatTimestamp(t)
		snap, err := tx.Get(docstore.Join(collection, id))
		if err != nil {
			return "", err
		}
		if !snap.Exists {
			return id, nil
		}
		t = t.Add(time.Millisecond)
	}
	return "", fmt.Errorf("%w in %s", errVersionIDExhausted, collection)
}

// AddMetricSnapshot stores a new snapshot keyed by its upload timestamp.
func (s *Service) AddMetricSnapshot(ctx context.Context, input *NewMetricSnapshot) (*MetricSnapshot, error) {
	if input == nil {
		return nil, utils.NewValidationError("body", "is required")
	}
	if err := validateIDs("entityId", input.EntityID, "useCaseId", input.UseCaseID); err != nil {
		return nil, err
	}
	category, err := ParseMetricCategory(input.Category)
	if err != nil {
		return nil, err
	}
	if err := checkMetricValues(input.Values); err != nil {
		return nil, err
	}
	values, err := docstore.Normalize(input.Values)
	if err != nil {
		return nil, utils.NewValidationError("values", err.Error())
	}

	collection := MetricsPath(input.EntityID, input.UseCaseID, category)
	var created *docstore.Snapshot
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		now, stamp := s.timestamp()
		if err := requireUseCase(tx, input.EntityID, input.UseCaseID); err != nil {
			return err
		}
		id, err := freeSnapshotID(tx, collection, now)
		if err != nil {
			return err
		}
		data := snapshotDoc(values, stamp, input.FileID, input.Period)
		created = &docstore.Snapshot{ID: id, Path: docstore.Join(collection, id), Exists: true, Data: data}
		return tx.Set(created.Path, data)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return snapshotFromDoc(created, input.EntityID, input.UseCaseID, category), nil
}

func (s *Service) GetMetricSnapshot(ctx context.Context, entityID, useCaseID string, category MetricCategory, snapshotID string) (*MetricSnapshot, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID, "snapshotId", snapshotID); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, utils.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	snap, err := s.store.Get(ctx, MetricSnapshotPath(entityID, useCaseID, category, snapshotID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, utils.NewNotFoundError("metric snapshot", snapshotID)
	}
	return snapshotFromDoc(snap, entityID, useCaseID, category), nil
}

// ListMetricSnapshots returns snapshots newest first. limit <= 0 returns all.
func (s *Service) ListMetricSnapshots(ctx context.Context, entityID, useCaseID string, category MetricCategory, limit int) ([]*MetricSnapshot, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, utils.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: MetricsPath(entityID, useCaseID, category),
		OrderBy:    docstore.DocumentID,
		Direction:  docstore.Desc,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	results := make([]*MetricSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		results = append(results, snapshotFromDoc(snap, entityID, useCaseID, category))
	}
	return results, nil
}

// LatestMetricSnapshot returns nil without error when the use case has no snapshot yet.
func (s *Service) LatestMetricSnapshot(ctx context.Context, entityID, useCaseID string, category MetricCategory) (*MetricSnapshot, error) {
	snaps, err := s.ListMetricSnapshots(ctx, entityID, useCaseID, category, 1)
	if err != nil || len(snaps) == 0 {
		return nil, err
	}
	return snaps[0], nil
}

// UpdateMetricSnapshot merges values into an existing snapshot through the versioned
// write path.
func (s *Service) UpdateMetricSnapshot(ctx context.Context, entityID, useCaseID string, category MetricCategory, snapshotID string, values map[string]any) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID, "snapshotId", snapshotID); err != nil {
		return err
	}
	if !category.IsValid() {
		return utils.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	if err := checkMetricValues(values); err != nil {
		return err
	}
	err := s.versionedUpdate(ctx, MetricSnapshotPath(entityID, useCaseID, category, snapshotID), values, versionedWrite{
		mustExist: true, resource: "metric snapshot", id: snapshotID,
	})
	if err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

func (s *Service) MetricSnapshotHistory(ctx context.Context, entityID, useCaseID string, category MetricCategory, snapshotID string, limit int) ([]*HistoryVersion, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID, "snapshotId", snapshotID); err != nil {
		return nil, err
	}
	if !category.IsValid() {
		return nil, utils.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	return s.ListHistory(ctx, MetricSnapshotPath(entityID, useCaseID, category, snapshotID), limit)
}

func (s *Service) RevertMetricSnapshot(ctx context.Context, entityID, useCaseID string, category MetricCategory, snapshotID, versionID string) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID, "snapshotId", snapshotID); err != nil {
		return err
	}
	if !category.IsValid() {
		return utils.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}
	if err := s.RevertToVersion(ctx, MetricSnapshotPath(entityID, useCaseID, category, snapshotID), versionID); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// MigrationResult counts what MigrateLegacyMetrics moved for one use case.
type MigrationResult struct {
	EntityID  string         `json:"entityId"`
	UseCaseID string         `json:"useCaseId"`
	Migrated  map[string]int `json:"migrated"`
	Skipped   int            `json:"skipped"`
}

// MigrateLegacyMetrics moves rows of the period-keyed metrics collection into the
// category collections. A row lands in the category named by its "category" field, or
// generalInfo. The new key is the row's updatedAt (or now) so ordering is preserved.
// With dryRun nothing is written.
func (s *Service) MigrateLegacyMetrics(ctx context.Context, entityID, useCaseID string, dryRun bool) (*MigrationResult, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return nil, err
	}
	legacy, err := s.store.Query(ctx, docstore.Query{Collection: LegacyMetricsPath(entityID, useCaseID), OrderBy: docstore.DocumentID})
	if err != nil {
		return nil, err
	}
	result := &MigrationResult{EntityID: entityID, UseCaseID: useCaseID, Migrated: map[string]int{}}
	for _, row := range legacy {
		category := GeneralInfo
		if c, ok := row.Data["category"].(string); ok && MetricCategory(c).IsValid() {
			category = MetricCategory(c)
		}
		values := map[string]any{}
		for k, v := range row.Data {
			if k == "category" || snapshotFields[k] {
				continue
			}
			values[k] = v
		}
		if len(values) == 0 {
			result.Skipped++
			continue
		}
		period, _ := row.Data[FieldPeriod].(string)
		if period == "" {
			period = row.ID
		}
		uploadedAt := s.now().UTC()
		if raw, ok := row.Data[FieldUpdatedAt].(string); ok {
			if t, err := utils.ParseTimestamp(raw); err == nil {
				uploadedAt = t.UTC()
			}
		}
		result.Migrated[string(category)]++
		if dryRun {
			continue
		}

		collection := MetricsPath(entityID, useCaseID, category)
		err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
			id, err := freeSnapshotID(tx, collection, uploadedAt)
			if err != nil {
				return err
			}
			data := snapshotDoc(values, utils.FormatTimestamp(uploadedAt), "", period)
			return tx.Set(docstore.Join(collection, id), data)
		})
		if err != nil {
			return result, fmt.Errorf("migrate %s: %w", row.Path, err)
		}
		if err := s.DeleteDocumentRecursive(ctx, row.Path, s.deleteBatchSize); err != nil {
			return result, err
		}
	}
	if !dryRun && len(legacy) > 0 {
		s.invalidateStats(ctx)
	}
	return result, nil
}

// MigrateAllLegacyMetrics runs MigrateLegacyMetrics for every use case that still has a
// legacy metrics collection.
func (s *Service) MigrateAllLegacyMetrics(ctx context.Context, dryRun bool) ([]*MigrationResult, error) {
	useCases, err := s.ListAllUseCases(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(useCases, func(i, j int) bool {
		if useCases[i].EntityID != useCases[j].EntityID {
			return useCases[i].EntityID < useCases[j].EntityID
		}
		return useCases[i].ID < useCases[j].ID
	})
	var results []*MigrationResult
	for _, useCase := range useCases {
		children, err := s.store.ListCollections(ctx, UseCasePath(useCase.EntityID, useCase.ID))
		if err != nil {
			return results, err
		}
		if !slices.Contains(children, CollectionLegacyMetrics) {
			continue
		}
		result, err := s.MigrateLegacyMetrics(ctx, useCase.EntityID, useCase.ID, dryRun)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
