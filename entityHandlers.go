package main

import (
	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/gin-gonic/gin"
)

type teamRequest struct {
	EntityID string              `json:"entityId" binding:"required"`
	Team     []models.TeamMember `json:"team"`
}

type entityRevertRequest struct {
	EntityID  string `json:"entityId" binding:"required"`
	VersionID string `json:"versionId" binding:"required"`
}

func (a *api) listEntities(c *gin.Context) {
	entities, err := a.service().ListEntities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, entities)
}

func (a *api) createEntity(c *gin.Context) {
	var input models.NewEntity
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	entity, err := a.service().CreateEntity(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "entity created", entity)
}

func (a *api) getEntity(c *gin.Context) {
	entity, err := a.service().GetEntity(c.Request.Context(), c.Query("entityId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, entity)
}

func (a *api) updateEntity(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}
	entityID, err := takeString(c, body, "entityId")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().UpdateEntity(c.Request.Context(), entityID, body); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "entity updated", nil)
}

func (a *api) deleteEntity(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}
	entityID, err := takeString(c, body, "entityId")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().DeleteEntity(c.Request.Context(), entityID); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "entity deleted", nil)
}

func (a *api) setEntityTeam(c *gin.Context) {
	var req teamRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().SetEntityTeam(c.Request.Context(), req.EntityID, req.Team); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "team updated", nil)
}

func (a *api) entityHistory(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	versions, err := a.service().EntityHistory(c.Request.Context(), c.Query("entityId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, versions)
}

func (a *api) revertEntity(c *gin.Context) {
	var req entityRevertRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().RevertEntity(c.Request.Context(), req.EntityID, req.VersionID); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "entity reverted to "+req.VersionID, nil)
}

func (a *api) entityStats(c *gin.Context) {
	stats, err := a.service().GetEntityStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, stats)
}
