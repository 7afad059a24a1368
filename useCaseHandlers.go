package main

import (
	"strings"

	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/gin-gonic/gin"
)

type useCaseRevertRequest struct {
	EntityID  string `json:"entityId" binding:"required"`
	UseCaseID string `json:"useCaseId" binding:"required"`
	VersionID string `json:"versionId" binding:"required"`
}

// listUseCases returns one entity's use cases, or every use case when entityId is absent.
func (a *api) listUseCases(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		useCases []*models.UseCase
		err      error
	)
	if entityID := strings.TrimSpace(c.Query("entityId")); entityID != "" {
		useCases, err = a.service().ListUseCases(ctx, entityID)
	} else {
		useCases, err = a.service().ListAllUseCases(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, useCases)
}

func (a *api) createUseCase(c *gin.Context) {
	var input models.UseCase
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	useCase, err := a.service().CreateUseCase(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "use case created", useCase)
}

func (a *api) getUseCase(c *gin.Context) {
	useCase, err := a.service().GetUseCase(c.Request.Context(), c.Query("entityId"), c.Query("useCaseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, useCase)
}

func (a *api) updateUseCase(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ids, err := takeStrings(c, body, "entityId", "useCaseId")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().UpdateUseCase(c.Request.Context(), ids[0], ids[1], body); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "use case updated", nil)
}

func (a *api) deleteUseCase(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ids, err := takeStrings(c, body, "entityId", "useCaseId")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().DeleteUseCase(c.Request.Context(), ids[0], ids[1]); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "use case deleted", nil)
}

func (a *api) useCaseHistory(c *gin.Context) {
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	versions, err := a.service().UseCaseHistory(c.Request.Context(), c.Query("entityId"), c.Query("useCaseId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, versions)
}

func (a *api) revertUseCase(c *gin.Context) {
	var req useCaseRevertRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().RevertUseCase(c.Request.Context(), req.EntityID, req.UseCaseID, req.VersionID); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "use case reverted to "+req.VersionID, nil)
}
