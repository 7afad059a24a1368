package main

import (
	"strings"

	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/gin-gonic/gin"
)

type metricEditRequest struct {
	EntityID   string         `json:"entityId" binding:"required"`
	UseCaseID  string         `json:"useCaseId" binding:"required"`
	Category   string         `json:"category" binding:"required"`
	SnapshotID string         `json:"snapshotId" binding:"required"`
	Values     map[string]any `json:"values" binding:"required"`
}

type metricRevertRequest struct {
	EntityID   string `json:"entityId" binding:"required"`
	UseCaseID  string `json:"useCaseId" binding:"required"`
	Category   string `json:"category" binding:"required"`
	SnapshotID string `json:"snapshotId" binding:"required"`
	VersionID  string `json:"versionId" binding:"required"`
}

// listMetrics answers ?latest=true with the newest snapshot (null when there is none)
// and otherwise with every snapshot, newest first.
func (a *api) listMetrics(c *gin.Context) {
	category, err := queryCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	entityID, useCaseID := c.Query("entityId"), c.Query("useCaseId")

	if strings.EqualFold(c.Query("latest"), "true") {
		latest, err := a.service().LatestMetricSnapshot(ctx, entityID, useCaseID, category)
		if err != nil {
			respondError(c, err)
			return
		}
		respondData(c, latest)
		return
	}

	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	snapshots, err := a.service().ListMetricSnapshots(ctx, entityID, useCaseID, category, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, snapshots)
}

func (a *api) addMetricSnapshot(c *gin.Context) {
	var input models.NewMetricSnapshot
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	snapshot, err := a.service().AddMetricSnapshot(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "metrics saved", snapshot)
}

func (a *api) updateMetricSnapshot(c *gin.Context) {
	var req metricEditRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	category, err := models.ParseMetricCategory(req.Category)
	if err != nil {
		respondError(c, err)
		return
	}
	err = a.service().UpdateMetricSnapshot(c.Request.Context(), req.EntityID, req.UseCaseID, category, req.SnapshotID, req.Values)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "metrics updated", nil)
}

func (a *api) metricHistory(c *gin.Context) {
	category, err := queryCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryLimit(c)
	if err != nil {
		respondError(c, err)
		return
	}
	versions, err := a.service().MetricSnapshotHistory(c.Request.Context(),
		c.Query("entityId"), c.Query("useCaseId"), category, c.Query("snapshotId"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, versions)
}

func (a *api) revertMetricSnapshot(c *gin.Context) {
	var req metricRevertRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	category, err := models.ParseMetricCategory(req.Category)
	if err != nil {
		respondError(c, err)
		return
	}
	err = a.service().RevertMetricSnapshot(c.Request.Context(), req.EntityID, req.UseCaseID, category, req.SnapshotID, req.VersionID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "metrics reverted to "+req.VersionID, nil)
}
