package models

import (
	"context"
	"fmt"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
)

type TeamMember struct {
	Name string `json:"name" validate:"required,max=200"`
	Role string `json:"role,omitempty" validate:"max=200"`
}

// Entity is a bank or organization owning use cases. Its id is the slug of the name it
// was created with and never changes.
type Entity struct {
	ID               string       `json:"id"`
	Name             string       `json:"name" validate:"required,max=200"`
	Description      string       `json:"description,omitempty"`
	Logo             string       `json:"logo,omitempty" validate:"omitempty,url"`
	Team             []TeamMember `json:"team,omitempty" validate:"dive"`
	CreatedAt        string       `json:"createdAt,omitempty"`
	UpdatedAt        string       `json:"updatedAt,omitempty"`
	LastRevertedFrom string       `json:"lastRevertedFrom,omitempty"`
}

type NewEntity struct {
	Name        string       `json:"name" binding:"required" validate:"required,max=200"`
	Description string       `json:"description"`
	Logo        string       `json:"logo" validate:"omitempty,url"`
	Team        []TeamMember `json:"team" validate:"dive"`
}

// entityUpdate lists the fields a client may change through UpdateEntity.
type entityUpdate struct {
	Name        string       `json:"name" validate:"required,max=200"`
	Description string       `json:"description"`
	Logo        string       `json:"logo" validate:"omitempty,url"`
	Team        []TeamMember `json:"team" validate:"dive"`
}

func (s *Service) CreateEntity(ctx context.Context, input *NewEntity) (*Entity, error) {
	if input == nil {
		return nil, utils.NewValidationError("body", "is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	id := utils.Slugify(input.Name)
	if id == "" {
		return nil, utils.NewValidationError("name", "must contain letters or digits")
	}

	_, stamp := s.timestamp()
	entity := &Entity{
		ID:          id,
		Name:        input.Name,
		Description: input.Description,
		Logo:        input.Logo,
		Team:        input.Team,
		CreatedAt:   stamp,
		UpdatedAt:   stamp,
	}
	data, err := encodeDoc(entity)
	if err != nil {
		return nil, err
	}
	path := EntityPath(id)
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Transaction) error {
		existing, err := tx.Get(path)
		if err != nil {
			return err
		}
		if existing.Exists {
			return utils.NewValidationError("name", fmt.Sprintf("entity %q already exists", id))
		}
		return tx.Set(path, data)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateStats(ctx)
	return entity, nil
}

func (s *Service) GetEntity(ctx context.Context, entityID string) (*Entity, error) {
	if err := validateID("entityId", entityID); err != nil {
		return nil, err
	}
	snap, err := s.store.Get(ctx, EntityPath(entityID))
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, utils.NewNotFoundError("entity", entityID)
	}
	entity, err := decodeDoc[Entity](snap)
	if err != nil {
		return nil, err
	}
	entity.ID = snap.ID
	return entity, nil
}

func (s *Service) ListEntities(ctx context.Context) ([]*Entity, error) {
	snaps, err := s.store.Query(ctx, docstore.Query{Collection: CollectionEntities, OrderBy: docstore.DocumentID})
	if err != nil {
		return nil, err
	}
	results := make([]*Entity, 0, len(snaps))
	for _, snap := range snaps {
		entity, err := decodeDoc[Entity](snap)
		if err != nil {
			return nil, err
		}
		entity.ID = snap.ID
		results = append(results, entity)
	}
	return results, nil
}

// UpdateEntity applies a versioned partial update. The id is fixed; renaming does not
// move the document.
func (s *Service) UpdateEntity(ctx context.Context, entityID string, fields docstore.Data) error {
	if err := validateID("entityId", entityID); err != nil {
		return err
	}
	update, err := checkFields[entityUpdate](fields, "id", FieldCreatedAt)
	if err != nil {
		return err
	}
	if err := utils.ValidatePartial(update, fields); err != nil {
		return err
	}
	return s.versionedUpdate(ctx, EntityPath(entityID), fields, versionedWrite{
		mustExist: true, resource: "entity", id: entityID,
	})
}

// SetEntityTeam replaces the whole team list.
func (s *Service) SetEntityTeam(ctx context.Context, entityID string, team []TeamMember) error {
	if err := validateID("entityId", entityID); err != nil {
		return err
	}
	for i := range team {
		if err := utils.ValidateStruct(&team[i]); err != nil {
			return err
		}
	}
	if team == nil {
		team = []TeamMember{}
	}
	return s.versionedUpdate(ctx, EntityPath(entityID), docstore.Data{"team": team}, versionedWrite{
		mustExist: true, resource: "entity", id: entityID,
	})
}

// DeleteEntity removes the entity with its use cases, metrics, files and all history.
func (s *Service) DeleteEntity(ctx context.Context, entityID string) error {
	if err := validateID("entityId", entityID); err != nil {
		return err
	}
	path := EntityPath(entityID)
	snap, err := s.store.Get(ctx, path)
	if err != nil {
		return err
	}
	if !snap.Exists {
		return utils.NewNotFoundError("entity", entityID)
	}
	release := s.lock(ctx, "delete:"+path)
	defer release()

	if err := s.DeleteDocumentRecursive(ctx, path, s.deleteBatchSize); err != nil {
		return err
	}
	s.invalidateStats(ctx)
	s.log(ctx).WithField("entityId", entityID).Info("entity deleted")
	return nil
}

func (s *Service) EntityHistory(ctx context.Context, entityID string, limit int) ([]*HistoryVersion, error) {
	if err := validateID("entityId", entityID); err != nil {
		return nil, err
	}
	return s.ListHistory(ctx, EntityPath(entityID), limit)
}

func (s *Service) RevertEntity(ctx context.Context, entityID, versionID string) error {
	if err := validateID("entityId", entityID); err != nil {
		return err
	}
	return s.RevertToVersion(ctx, EntityPath(entityID), versionID)
}
