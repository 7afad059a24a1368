package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/google/uuid"
)

// UploadedFile records one CSV import. The file content is not kept; the metric rows it
// produced carry its id in fileId.
type UploadedFile struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entityId"`
	UseCaseID  string         `json:"useCaseId"`
	Category   MetricCategory `json:"category"`
	FileName   string         `json:"fileName"`
	RowCount   int            `json:"rowCount"`
	UploadedAt string         `json:"uploadedAt"`
}

// NewUploadedFile registers a file together with the parsed rows it contains. Rows may
// be empty when the client imports them separately with AddMetricSnapshot.
type NewUploadedFile struct {
	EntityID  string           `json:"entityId" binding:"required"`
	UseCaseID string           `json:"useCaseId" binding:"required"`
	Category  string           `json:"category" binding:"required"`
	FileName  string           `json:"fileName" binding:"required" validate:"required,max=255"`
	Period    string           `json:"period"`
	Rows      []map[string]any `json:"rows"`
}

// RegisterUploadedFile stores the file record and its rows as metric snapshots in one
// transaction. Row snapshot ids share a timestamp prefix with a row-number suffix so they
// keep file order.
func (s *Service) RegisterUploadedFile(ctx context.Context, input *NewUploadedFile) (*UploadedFile, error) {
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
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	rows := make([]docstore.Data, 0, len(input.Rows))
	for i, row := range input.Rows {
		if err := checkMetricValues(row); err != nil {
			return nil, utils.NewValidationError(fmt.Sprintf("rows[%d]", i), err.Error())
		}
		normalized, err := docstore.Normalize(row)
		if err != nil {
			return nil, utils.NewValidationError(fmt.Sprintf("rows[%d]", i), err.Error())
		}
		rows = append(rows, normalized)
	}

	now, stamp := s.timestamp()
	file := &UploadedFile{
		ID:         uuid.NewString(),
		EntityID:   input.EntityID,
		UseCaseID:  input.UseCaseID,
		Category:   category,
		FileName:   input.FileName,
		RowCount:   len(rows),
		UploadedAt: stamp,
	}
	data, err := encodeDoc(file, "id")
	if err != nil {
		return nil, err
	}

	collection := MetricsPath(file.EntityID, file.UseCaseID, category)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		if err := requireUseCase(tx, file.EntityID, file.UseCaseID); err != nil {
			return err
		}
		base, err := freeRowBase(tx, collection, now, len(rows))
		if err != nil {
			return err
		}
		if err := tx.Set(UploadedFilePath(file.EntityID, file.UseCaseID, file.ID), data); err != nil {
			return err
		}
		for i, row := range rows {
			if err := tx.Set(docstore.Join(collection, rowSnapshotID(base, i)), snapshotDoc(row, stamp, file.ID, input.Period)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register file %s: %w", file.FileName, err)
	}
	if len(rows) > 0 {
		s.invalidateStats(ctx)
	}
	return file, nil
}

func rowSnapshotID(base string, i int) string {
	return fmt.Sprintf("%s-%05d", base, i)
}

// freeRowBase picks the timestamp prefix for a file's row ids. The prefix moves forward
// a millisecond while any of the n row ids under it is taken, so rows of another file
// are never overwritten.
func freeRowBase(tx docstore.Transaction, collection string, t time.Time, n int) (string, error) {
	for attempt := 0; attempt < versionIDProbeLimit; attempt++ {
		base := utils.FormatTimestamp(t)
		free := true
		for i := 0; i < n && free; i++ {
			snap, err := tx.Get(docstore.Join(collection, rowSnapshotID(base, i)))
			if err != nil {
				return "", err
			}
			free = !snap.Exists
		}
		if free {
			return base, nil
		}
		t = t.Add(time.Millisecond)
	}
	return "", fmt.Errorf("%w in %s", errVersionIDExhausted, collection)
}

func (s *Service) ListUploadedFiles(ctx context.Context, entityID, useCaseID string) ([]*UploadedFile, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return nil, err
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: UploadedFilesPath(entityID, useCaseID),
		OrderBy:    FieldUploadedAt,
		Direction:  docstore.Desc,
	})
	if err != nil {
		return nil, err
	}
	results := make([]*UploadedFile, 0, len(snaps))
	for _, snap := range snaps {
		file, err := decodeDoc[UploadedFile](snap)
		if err != nil {
			return nil, err
		}
		file.ID = snap.ID
		results = append(results, file)
	}
	return results, nil
}

// DeleteUploadedFile removes the file record and every metric snapshot (with history)
// that the file produced. Rows are removed in batches before the record, so a failed
// call can be repeated.
func (s *Service) DeleteUploadedFile(ctx context.Context, entityID, useCaseID, fileID string) (int, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID, "fileId", fileID); err != nil {
		return 0, err
	}
	path := UploadedFilePath(entityID, useCaseID, fileID)
	snap, err := s.store.Get(ctx, path)
	if err != nil {
		return 0, err
	}
	if !snap.Exists {
		return 0, utils.NewNotFoundError("file", fileID)
	}
	file, err := decodeDoc[UploadedFile](snap)
	if err != nil {
		return 0, err
	}
	categories := MetricCategories
	if file.Category.IsValid() {
		categories = []MetricCategory{file.Category}
	}

	release := s.lock(ctx, "delete:"+path)
	defer release()

	removed := 0
	for _, category := range categories {
		n, err := s.deleteFileRows(ctx, MetricsPath(entityID, useCaseID, category), fileID)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	if err := s.store.Delete(ctx, path); err != nil {
		return removed, err
	}
	if removed > 0 {
		s.invalidateStats(ctx)
	}
	s.log(ctx).WithField("fileId", fileID).WithField("rows", removed).Info("uploaded file deleted")
	return removed, nil
}

func (s *Service) deleteFileRows(ctx context.Context, collection, fileID string) (int, error) {
	removed := 0
	for {
		rows, err := s.store.Query(ctx, docstore.Query{
			Collection: collection,
			Filters:    []docstore.Filter{{Field: FieldFileID, Value: fileID}},
			OrderBy:    docstore.DocumentID,
			Limit:      s.deleteBatchSize,
		})
		if err != nil {
			return removed, err
		}
		if len(rows) == 0 {
			return removed, nil
		}
		if err := s.deleteBatch(ctx, rows, s.deleteBatchSize); err != nil {
			return removed, err
		}
		removed += len(rows)
	}
}

