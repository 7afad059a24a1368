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

func TestCreateEntityDerivesSlug(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	entity, err := svc.CreateEntity(ctx, &NewEntity{
		Name: "Banco Santánder S.A.",
		Logo: "https://example.com/logo.png",
		Team: []TeamMember{{Name: "Ana", Role: "Lead"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "banco-santander-s-a", entity.ID)
	assert.Equal(t, "2024-10-25T14:30:00.000Z", entity.CreatedAt)

	snap := mustGet(t, store, "entities/banco-santander-s-a")
	require.True(t, snap.Exists)
	assert.Equal(t, "Banco Santánder S.A.", snap.Data["name"])

	got, err := svc.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, []TeamMember{{Name: "Ana", Role: "Lead"}}, got.Team)
}

func TestCreateEntityValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input *NewEntity
	}{
		{"nil", nil},
		{"missing name", &NewEntity{}},
		{"name without letters", &NewEntity{Name: "***"}},
		{"bad logo", &NewEntity{Name: "Banco", Logo: "not a url"}},
		{"team member without name", &NewEntity{Name: "Banco", Team: []TeamMember{{Role: "DS"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEntity(ctx, tc.input)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}
}

func TestCreateEntityDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateEntity(ctx, &NewEntity{Name: "Banco Uno"})
	require.NoError(t, err)

	_, err = svc.CreateEntity(ctx, &NewEntity{Name: "banco   UNO"})
	assert.True(t, utils.IsValidationError(err))
}

func TestGetEntityNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.GetEntity(context.Background(), "nope")
	assert.True(t, utils.IsNotFoundError(err))

	_, err = svc.GetEntity(context.Background(), "")
	assert.True(t, utils.IsValidationError(err))
}

func TestUpdateEntityIsVersioned(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	entity, err := svc.CreateEntity(ctx, &NewEntity{Name: "Banco Uno", Description: "v1"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, svc.UpdateEntity(ctx, entity.ID, docstore.Data{"description": "v2"}))

	got, err := svc.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Description)
	assert.Equal(t, "Banco Uno", got.Name)
	assert.Equal(t, "2024-10-25T15:30:00.000Z", got.UpdatedAt)

	versions, err := svc.EntityHistory(ctx, entity.ID, 10)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "v1", versions[0].Data["description"])

	require.NoError(t, svc.RevertEntity(ctx, entity.ID, versions[0].VersionID))
	got, err = svc.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Description)
	assert.Equal(t, versions[0].VersionID, got.LastRevertedFrom)
}

func TestUpdateEntityRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	entity, err := svc.CreateEntity(ctx, &NewEntity{Name: "Banco Uno"})
	require.NoError(t, err)

	for name, fields := range map[string]docstore.Data{
		"unknown field": {"color": "red"},
		"wrong type":    {"name": 12},
		"empty name":    {"name": ""},
		"id":            {"id": "other"},
		"createdAt":     {"createdAt": "2020-01-01T00:00:00.000Z"},
		"reserved":      {"updatedAt": "2020-01-01T00:00:00.000Z"},
	} {
		t.Run(name, func(t *testing.T) {
			err := svc.UpdateEntity(ctx, entity.ID, fields)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
		})
	}

	err = svc.UpdateEntity(ctx, "missing", docstore.Data{"description": "x"})
	assert.True(t, utils.IsNotFoundError(err))
}

func TestSetEntityTeamReplacesList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	entity, err := svc.CreateEntity(ctx, &NewEntity{Name: "Banco Uno", Team: []TeamMember{{Name: "Ana"}, {Name: "Luis"}}})
	require.NoError(t, err)

	require.NoError(t, svc.SetEntityTeam(ctx, entity.ID, []TeamMember{{Name: "Marta", Role: "PM"}}))
	got, err := svc.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, []TeamMember{{Name: "Marta", Role: "PM"}}, got.Team)

	assert.True(t, utils.IsValidationError(svc.SetEntityTeam(ctx, entity.ID, []TeamMember{{Role: "PM"}})))
	assert.True(t, utils.IsNotFoundError(svc.SetEntityTeam(ctx, "missing", nil)))
}

func TestDeleteEntityCascades(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	uc := seedUseCase(t, svc, "Banco Uno", UseCase{Name: "Churn"})
	require.NoError(t, svc.UpdateUseCase(ctx, uc.EntityID, uc.ID, docstore.Data{"status": "En curso"}))
	_, err := svc.AddMetricSnapshot(ctx, &NewMetricSnapshot{
		EntityID: uc.EntityID, UseCaseID: uc.ID, Category: string(GeneralInfo), Values: map[string]any{"x": 1},
	})
	require.NoError(t, err)
	other := seedUseCase(t, svc, "Banco Dos", UseCase{Name: "Fraude"})

	require.NoError(t, svc.DeleteEntity(ctx, uc.EntityID))

	_, err = svc.GetEntity(ctx, uc.EntityID)
	assert.True(t, utils.IsNotFoundError(err))
	children, err := store.ListCollections(ctx, EntityPath(uc.EntityID))
	require.NoError(t, err)
	assert.Empty(t, children)

	_, err = svc.GetUseCase(ctx, other.EntityID, other.ID)
	assert.NoError(t, err)

	assert.True(t, utils.IsNotFoundError(svc.DeleteEntity(ctx, uc.EntityID)))
}

func TestListEntities(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Alfa", "Medio"} {
		_, err := svc.CreateEntity(ctx, &NewEntity{Name: name})
		require.NoError(t, err)
	}
	entities, err := svc.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, "alfa", entities[0].ID)
	assert.Equal(t, "zeta", entities[2].ID)
}
