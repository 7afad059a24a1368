package main

import (
	"fmt"
	"net/http"

	"bitbucket.org/avalia/dashboard_backend/models"
	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type fileDeleteRequest struct {
	EntityID  string `json:"entityId" binding:"required"`
	UseCaseID string `json:"useCaseId" binding:"required"`
	FileID    string `json:"fileId" binding:"required"`
}

func (a *api) listFiles(c *gin.Context) {
	files, err := a.service().ListUploadedFiles(c.Request.Context(), c.Query("entityId"), c.Query("useCaseId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, files)
}

func (a *api) registerFile(c *gin.Context) {
	var input models.NewUploadedFile
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}
	file, err := a.service().RegisterUploadedFile(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "file registered", file)
}

func (a *api) deleteFile(c *gin.Context) {
	var req fileDeleteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	removed, err := a.service().DeleteUploadedFile(c.Request.Context(), req.EntityID, req.UseCaseID, req.FileID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "file deleted", gin.H{"removedSnapshots": removed})
}

func (a *api) getDashboardConfig(c *gin.Context) {
	category, err := queryCategory(c)
	if err != nil {
		respondError(c, err)
		return
	}
	cfg, err := a.service().GetDashboardConfig(c.Request.Context(), c.Query("entityId"), c.Query("useCaseId"), category)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, cfg)
}

func (a *api) saveDashboardConfig(c *gin.Context) {
	var cfg models.DashboardConfig
	if err := bindJSON(c, &cfg); err != nil {
		respondError(c, err)
		return
	}
	saved, err := a.service().SaveDashboardConfig(c.Request.Context(), &cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "dashboard config saved", saved)
}

func (a *api) deleteDashboardConfig(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		respondError(c, err)
		return
	}
	ids, err := takeStrings(c, body, "entityId", "useCaseId", "category")
	if err != nil {
		respondError(c, err)
		return
	}
	category, err := models.ParseMetricCategory(ids[2])
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.service().DeleteDashboardConfig(c.Request.Context(), ids[0], ids[1], category); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, "dashboard config deleted", nil)
}

func (a *api) dashboardConfigHistory(c *gin.Context) {
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
	versions, err := a.service().DashboardConfigHistory(c.Request.Context(), c.Query("entityId"), c.Query("useCaseId"), category, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, versions)
}

// exportEntity streams the entity workbook. It is rendered to memory first so a write
// failure can still produce a JSON error.
func (a *api) exportEntity(c *gin.Context) {
	entityID := c.Query("entityId")
	f, err := a.service().ExportEntityWorkbook(c.Request.Context(), entityID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		respondError(c, fmt.Errorf("write workbook: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", models.ExportFileName(entityID)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
