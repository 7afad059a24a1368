package models

import (
	"strings"

	"bitbucket.org/avalia/dashboard_backend/docstore"
	"bitbucket.org/avalia/dashboard_backend/utils"
)

const (
	CollectionEntities         = "entities"
	CollectionUseCases         = "useCases"
	CollectionHistory          = "history"
	CollectionUploadedFiles    = "uploadedFiles"
	CollectionDashboardConfigs = "dashboardConfigs"
	// CollectionLegacyMetrics holds pre-category rows keyed by period.
	CollectionLegacyMetrics = "metrics"
)

func EntityPath(entityID string) string {
	return docstore.Join(CollectionEntities, entityID)
}

func UseCasesPath(entityID string) string {
	return docstore.Join(CollectionEntities, entityID, CollectionUseCases)
}

func UseCasePath(entityID, useCaseID string) string {
	return docstore.Join(UseCasesPath(entityID), useCaseID)
}

func MetricsPath(entityID, useCaseID string, category MetricCategory) string {
	return docstore.Join(UseCasePath(entityID, useCaseID), string(category))
}

func MetricSnapshotPath(entityID, useCaseID string, category MetricCategory, snapshotID string) string {
	return docstore.Join(MetricsPath(entityID, useCaseID, category), snapshotID)
}

func LegacyMetricsPath(entityID, useCaseID string) string {
	return docstore.Join(UseCasePath(entityID, useCaseID), CollectionLegacyMetrics)
}

func UploadedFilesPath(entityID, useCaseID string) string {
	return docstore.Join(UseCasePath(entityID, useCaseID), CollectionUploadedFiles)
}

func UploadedFilePath(entityID, useCaseID, fileID string) string {
	return docstore.Join(UploadedFilesPath(entityID, useCaseID), fileID)
}

func DashboardConfigPath(entityID, useCaseID string, category MetricCategory) string {
	return docstore.Join(CollectionDashboardConfigs, entityID+"__"+useCaseID+"__"+string(category))
}

// HistoryPath is the history collection under a document.
func HistoryPath(docPath string) string {
	return docstore.Join(docPath, CollectionHistory)
}

// validateID rejects identifiers that are empty or would split a path segment.
func validateID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return utils.RequiredError(field)
	}
	if strings.Contains(id, "/") {
		return utils.NewValidationError(field, "must not contain '/'")
	}
	return nil
}

func validateIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := validateID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
