package models

import (
	"context"
	"fmt"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	StatusActive    = "Activo"
	StatusInactive  = "Inactivo"
	StatusStrategic = "Estrategico"
)

type KPI struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty"`
	Target      string `json:"target,omitempty"`
	Unit        string `json:"unit,omitempty"`
}

type RoadmapItem struct {
	Title string `json:"title" validate:"required,max=200"`
	Phase string `json:"phase,omitempty"`
	Done  bool   `json:"done"`
}

// UseCase is an initiative tracked for one entity. EntityID is fixed at creation.
type UseCase struct {
	ID              string         `json:"id"`
	EntityID        string         `json:"entityId" validate:"required"`
	Name            string         `json:"name" validate:"required,max=200"`
	Description     string         `json:"description,omitempty"`
	Status          string         `json:"status,omitempty"`
	HighLevelStatus string         `json:"highLevelStatus,omitempty" validate:"max=50"`
	ProjectType     string         `json:"projectType,omitempty"`
	DevelopmentType string         `json:"developmentType,omitempty"`
	DS1             string         `json:"ds1,omitempty"`
	DS2             string         `json:"ds2,omitempty"`
	DS3             string         `json:"ds3,omitempty"`
	DS4             string         `json:"ds4,omitempty"`
	DE              string         `json:"de,omitempty"`
	MDS             string         `json:"mds,omitempty"`
	Objective       string         `json:"objective,omitempty"`
	Solution        string         `json:"solution,omitempty"`
	Impact          string         `json:"impact,omitempty"`
	Observations    string         `json:"observations,omitempty"`
	KPIs            []KPI          `json:"kpis,omitempty" validate:"dive"`
	Roadmap         []RoadmapItem  `json:"roadmap,omitempty" validate:"dive"`
	Metrics         map[string]any `json:"metrics,omitempty"`

	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
	LastRevertedFrom string `json:"lastRevertedFrom,omitempty"`
}

// useCaseUpdate lists the fields a client may change through UpdateUseCase.
type useCaseUpdate struct {
	Name            string         `json:"name" validate:"required,max=200"`
	Description     string         `json:"description"`
	Status          string         `json:"status"`
	HighLevelStatus string         `json:"highLevelStatus" validate:"max=50"`
	ProjectType     string         `json:"projectType"`
	DevelopmentType string         `json:"developmentType"`
	DS1             string         `json:"ds1"`
	DS2             string         `json:"ds2"`
	DS3             string         `json:"ds3"`
	DS4             string         `json:"ds4"`
	DE              string         `json:"de"`
	MDS             string         `json:"mds"`
	Objective       string         `json:"objective"`
	Solution        string         `json:"solution"`
	Impact          string         `json:"impact"`
	Observations    string         `json:"observations"`
	KPIs            []KPI          `json:"kpis" validate:"dive"`
	Roadmap         []RoadmapItem  `json:"roadmap" validate:"dive"`
	Metrics         map[string]any `json:"metrics"`
}

// CreateUseCase stores a new use case under an existing entity and returns it with its
// generated id.
func (s *Service) CreateUseCase(ctx context.Context, input *UseCase) (*UseCase, error) {
	if input == nil {
		return nil, utils.NewValidationError("body", "is required")
	}
	if err := validateID("entityId", input.EntityID); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	useCase := *input
	useCase.ID = uuid.NewString()
	_, stamp := s.timestamp()
	useCase.CreatedAt = stamp
	useCase.UpdatedAt = stamp
	useCase.LastRevertedFrom = ""
	data, err := encodeDoc(&useCase, "id")
	if err != nil {
		return nil, err
	}

	entityPath := EntityPath(useCase.EntityID)
	path := UseCasePath(useCase.EntityID, useCase.ID)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		entity, err := tx.Get(entityPath)
		if err != nil {
			return err
		}
		if !entity.Exists {
			return utils.NewNotFoundError("entity", useCase.EntityID)
		}
		return tx.Set(path, data)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return &useCase, nil
}

func (s *Service) GetUseCase(ctx context.Context, entityID, useCaseID string) (*UseCase, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, UseCasePath(entityID, useCaseID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, utils.NewNotFoundError("use case", useCaseID)
	}
	return useCaseFromSnapshot(snap, entityID)
}

func useCaseFromSnapshot(snap *docstore.Snapshot, entityID string) (*UseCase, error) {
	useCase, err := decodeDoc[UseCase](snap)
	if err != nil {
		return nil, err
	}
	useCase.ID = snap.ID
	if useCase.EntityID == "" {
		// older rows relied on the path alone
		useCase.EntityID = entityID
	}
	return useCase, nil
}

// ListUseCases returns the use cases of one entity ordered by id.
func (s *Service) ListUseCases(ctx context.Context, entityID string) ([]*UseCase, error) {
	if err := validateID("entityId", entityID); err != nil {
		return nil, err
	}
	snaps, err := s.store.Query(ctx, docstore.Query{Collection: UseCasesPath(entityID), OrderBy: docstore.DocumentID})
	if err != nil {
		return nil, err
	}
	results := make([]*UseCase, 0, len(snaps))
	for _, snap := range snaps {
		useCase, err := useCaseFromSnapshot(snap, entityID)
		if err != nil {
			return nil, err
		}
		results = append(results, useCase)
	}
	return results, nil
}

// ListAllUseCases reads the use cases of every entity, one entity per goroutine.
func (s *Service) ListAllUseCases(ctx context.Context) ([]*UseCase, error) {
	entities, err := s.store.Query(ctx, docstore.Query{Collection: CollectionEntities, OrderBy: docstore.DocumentID})
	if err != nil {
		return nil, err
	}
	perEntity := make([][]*UseCase, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, entity := range entities {
		i, entityID := i, entity.ID
		g.Go(func() error {
			useCases, err := s.ListUseCases(gctx, entityID)
			if err != nil {
				return fmt.Errorf("list use cases of %s: %w", entityID, err)
			}
			perEntity[i] = useCases
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var all []*UseCase
	for _, useCases := range perEntity {
		all = append(all, useCases...)
	}
	return all, nil
}

// UpdateUseCase applies a versioned partial update. entityId may be repeated with its
// current value but never changed.
func (s *Service) UpdateUseCase(ctx context.Context, entityID, useCaseID string, fields docstore.Data) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return err
	}
	fields = docstore.Clone(fields)
	if v, ok := fields["entityId"]; ok {
		if v != entityID {
			return utils.NewValidationError("entityId", "cannot be changed")
		}
		delete(fields, "entityId")
	}
	update, err := checkFields[useCaseUpdate](fields, "id", FieldCreatedAt)
	if err != nil {
		return err
	}
	if err := utils.ValidatePartial(update, fields); err != nil {
		return err
	}
	err = s.versionedUpdate(ctx, UseCasePath(entityID, useCaseID), fields, versionedWrite{
		mustExist: true, resource: "use case", id: useCaseID,
	})
	if err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

// DeleteUseCase removes the use case with its metric snapshots, uploaded file records
// and history.
func (s *Service) DeleteUseCase(ctx context.Context, entityID, useCaseID string) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return err
	}
	path := UseCasePath(entityID, useCaseID)
	snap, err := s.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return utils.NewNotFoundError("use case", useCaseID)
	}
	release := s.lock(ctx, "delete:"+path)
	defer release()

	if err := s.DeleteDocumentRecursive(ctx, path, s.deleteBatchSize); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}

func (s *Service) UseCaseHistory(ctx context.Context, entityID, useCaseID string, limit int) ([]*HistoryVersion, error) {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return nil, err
	}
	return s.ListHistory(ctx, UseCasePath(entityID, useCaseID), limit)
}

func (s *Service) RevertUseCase(ctx context.Context, entityID, useCaseID, versionID string) error {
	if err := validateIDs("entityId", entityID, "useCaseId", useCaseID); err != nil {
		return err
	}
	if err := s.RevertToVersion(ctx, UseCasePath(entityID, useCaseID), versionID); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	return nil
}
