package models

import (
	"context"
	"fmt"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DeleteCollectionRecursive deletes every document in collectionPath together with all
// nested sub-collections. Documents are loaded batchSize at a time; the sub-collections
// of a batch are drained before that batch is committed, so no child outlives its parent.
// An empty collection is a no-op. A failure stops the walk and leaves whatever was not
// yet deleted in place; running the call again resumes the cleanup.
func (s *Service) DeleteCollectionRecursive(ctx context.Context, collectionPath string, batchSize int) error {
	if err := docstore.ValidateCollectionPath(collectionPath); err != nil {
		return utils.NewValidationError("path", err.Error())
	}
	if batchSize <= 0 {
		return utils.NewValidationError("batchSize", "must be positive")
	}
	ctx, span := s.tracer.Start(ctx, "models.DeleteCollectionRecursive")
	defer span.End()
	span.SetAttributes(attribute.String("collection.path", collectionPath), attribute.Int("batch.size", batchSize))

	return s.drainCollection(ctx, collectionPath, batchSize)
}

// DeleteDocumentRecursive drains every sub-collection of docPath, then deletes the
// document itself.
func (s *Service) DeleteDocumentRecursive(ctx context.Context, docPath string, batchSize int) error {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return utils.NewValidationError("path", err.Error())
	}
	if batchSize <= 0 {
		return utils.NewValidationError("batchSize", "must be positive")
	}
	ctx, span := s.tracer.Start(ctx, "models.DeleteDocumentRecursive")
	defer span.End()
	span.SetAttributes(attribute.String("doc.path", docPath))

	if err := s.drainSubcollections(ctx, docPath, batchSize); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, docPath); err != nil {
		return fmt.Errorf("delete %s: %w", docPath, err)
	}
	return nil
}

func (s *Service) drainCollection(ctx context.Context, collectionPath string, batchSize int) error {
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs, err := s.store.Query(ctx, docstore.Query{
			Collection: collectionPath,
			OrderBy:    docstore.DocumentID,
			Limit:      batchSize,
		})
		if err != nil {
			return fmt.Errorf("load batch of %s: %w", collectionPath, err)
		}
		if len(docs) == 0 {
			break
		}
		if err := s.deleteBatch(ctx, docs, batchSize); err != nil {
			return err
		}
		deleted += len(docs)
	}
	if deleted > 0 {
		s.log(ctx).WithField("collection", collectionPath).WithField("deleted", deleted).Debug("collection drained")
	}
	return nil
}

func (s *Service) deleteBatch(ctx context.Context, docs []*docstore.Snapshot, batchSize int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, doc := range docs {
		docPath := doc.Path
		g.Go(func() error {
			return s.drainSubcollections(gctx, docPath, batchSize)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	batch := s.store.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Path)
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete batch of %d: %w", len(docs), err)
	}
	return nil
}

func (s *Service) drainSubcollections(ctx context.Context, docPath string, batchSize int) error {
	children, err := s.store.ListCollections(ctx, docPath)
	if err != nil {
		return fmt.Errorf("list collections of %s: %w", docPath, err)
	}
	for _, child := range children {
		if err := s.drainCollection(ctx, docstore.Join(docPath, child), batchSize); err != nil {
			return err
		}
	}
	return nil
}
