package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	FieldVersionedAt      = "versionedAt"
	FieldLastRevertedFrom = "lastRevertedFrom"
	FieldUpdatedAt        = "updatedAt"
	FieldCreatedAt        = "createdAt"
)

// versionIDProbeLimit caps how far a colliding version id is pushed forward.
const versionIDProbeLimit = 1000

var reservedUpdateFields = map[string]bool{
	FieldVersionedAt:      true,
	FieldLastRevertedFrom: true,
	FieldUpdatedAt:        true,
	CollectionHistory:     true,
}

// HistoryVersion is one snapshot under a document's history collection.
type HistoryVersion struct {
	VersionID   string        `json:"versionId"`
	VersionedAt string        `json:"versionedAt"`
	Data        docstore.Data `json:"data"`
}

func historyVersionFrom(snap *docstore.Snapshot) *HistoryVersion {
	data := docstore.Clone(snap.Data)
	versionedAt, _ := data[FieldVersionedAt].(string)
	delete(data, FieldVersionedAt)
	return &HistoryVersion{VersionID: snap.ID, VersionedAt: versionedAt, Data: data}
}

type versionedWrite struct {
	// resource/id name the document in the NotFoundError raised when mustExist is set.
	mustExist bool
	resource  string
	id        string
}

func checkPartial(partial docstore.Data) error {
	if len(partial) == 0 {
		return utils.NewValidationError("fields", "no fields to update")
	}
	for k := range partial {
		if k == "" {
			return utils.NewValidationError("fields", "empty field name")
		}
		if reservedUpdateFields[k] {
			return utils.NewValidationError(k, "is managed by the server")
		}
	}
	return nil
}

// VersionedUpdate merges partial into the document at docPath. When the document
// exists its prior state is copied to history/{versionId} in the same transaction.
// A missing document is created without a history entry.
func (s *Service) VersionedUpdate(ctx context.Context, docPath string, partial docstore.Data) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return utils.NewValidationError("path", err.Error())
	}
	if err := checkPartial(partial); err != nil {
		return err
	}
	return s.versionedUpdate(ctx, docPath, partial, versionedWrite{})
}

func (s *Service) versionedUpdate(ctx context.Context, docPath string, partial docstore.Data, opt versionedWrite) error {
	ctx, span := s.tracer.Start(ctx, "models.VersionedUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("doc.path", docPath))

	update, err := docstore.Normalize(partial)
	if err != nil {
		return utils.NewValidationError("fields", err.Error())
	}

	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		now, stamp := s.timestamp()
		current, err := tx.Get(docPath)
		if err != nil {
			return err
		}
		if !current.Exists && opt.mustExist {
			return utils.NewNotFoundError(opt.resource, opt.id)
		}

		var versionPath string
		if current.Exists {
			versionID, err := freeVersionID(tx, docPath, now)
			if err != nil {
				return err
			}
			versionPath = docstore.Join(HistoryPath(docPath), versionID)
		}

		// writes only from here on
		if versionPath != "" {
			if err := tx.Set(versionPath, versionData(current.Data, stamp)); err != nil {
				return err
			}
		}
		merged := docstore.Clone(update)
		merged[FieldUpdatedAt] = stamp
		return tx.Set(docPath, merged, docstore.Merge())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// RevertToVersion merges the fields of history/{versionID} back onto the live document.
// The state being replaced is itself versioned first, so a revert can be undone.
// Fields added after the version was taken are kept.
func (s *Service) RevertToVersion(ctx context.Context, docPath, versionID string) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return utils.NewValidationError("path", err.Error())
	}
	if err := validateID("versionId", versionID); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "models.RevertToVersion")
	defer span.End()
	span.SetAttributes(attribute.String("doc.path", docPath), attribute.String("version.id", versionID))

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		now, stamp := s.timestamp()
		version, err := tx.Get(docstore.Join(HistoryPath(docPath), versionID))
		if err != nil {
			return err
		}
		if !version.Exists {
			return utils.NewNotFoundError("version", versionID)
		}
		current, err := tx.Get(docPath)
		if err != nil {
			return err
		}
		var backupPath string
		if current.Exists {
			backupID, err := freeVersionID(tx, docPath, now)
			if err != nil {
				return err
			}
			backupPath = docstore.Join(HistoryPath(docPath), backupID)
		}

		if backupPath != "" {
			if err := tx.Set(backupPath, versionData(current.Data, stamp)); err != nil {
				return err
			}
		}
		restored := docstore.Clone(version.Data)
		delete(restored, FieldVersionedAt)
		restored[FieldUpdatedAt] = stamp
		restored[FieldLastRevertedFrom] = versionID
		return tx.Set(docPath, restored, docstore.Merge())
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ListHistory returns the versions of docPath newest first. limit <= 0 returns all.
func (s *Service) ListHistory(ctx context.Context, docPath string, limit int) ([]*HistoryVersion, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, utils.NewValidationError("path", err.Error())
	}
	snaps, err := s.store.Query(ctx, docstore.Query{
		Collection: HistoryPath(docPath),
		OrderBy:    docstore.DocumentID,
		Direction:  docstore.Desc,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list history of %s: %w", docPath, err)
	}
	versions := make([]*HistoryVersion, 0, len(snaps))
	for _, snap := range snaps {
		versions = append(versions, historyVersionFrom(snap))
	}
	return versions, nil
}

func (s *Service) GetHistoryVersion(ctx context.Context, docPath, versionID string) (*HistoryVersion, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, utils.NewValidationError("path", err.Error())
	}
	if err := validateID("versionId", versionID); err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, docstore.Join(HistoryPath(docPath), versionID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, utils.NewNotFoundError("version", versionID)
	}
	return historyVersionFrom(snap), nil
}

func versionData(current docstore.Data, stamp string) docstore.Data {
	out := docstore.Clone(current)
	if out == nil {
		out = docstore.Data{}
	}
	out[FieldVersionedAt] = stamp
	return out
}

var errVersionIDExhausted = errors.New("no free version id")

// freeVersionID formats now as a version id and moves it forward one millisecond at a
// time while an entry with that id already exists, so two writes in the same
// millisecond never overwrite each other's snapshot.
func freeVersionID(tx docstore.Transaction, docPath string, now time.Time) (string, error) {
	t := now
	for i := 0; i < versionIDProbeLimit; i++ {
		id := utils.FormatTimestamp(t)
		snap, err := tx.Get(docstore.Join(HistoryPath(docPath), id))
		if err != nil {
			return "", err
		}
		if !snap.Exists {
			return id, nil
		}
		t = t.Add(time.Millisecond)
	}
	return "", fmt.Errorf("%w for %s", errVersionIDExhausted, docPath)
}
