package models

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	useCaseSheet = "Casos de uso"
	summarySheet = "Resumen"
	teamSheet    = "Equipo"
)

var useCaseColumns = []string{
	"ID", "Nombre", "Estado", "Estado alto nivel", "Tipo de proyecto", "Tipo de desarrollo",
	"DS1", "DS2", "DS3", "DS4", "DE", "MDS", "Objetivo", "Actualizado",
}

func useCaseRow(u *UseCase) []any {
	return []any{
		u.ID, u.Name, u.Status, u.HighLevelStatus, u.ProjectType, u.DevelopmentType,
		u.DS1, u.DS2, u.DS3, u.DS4, u.DE, u.MDS, u.Objective, u.UpdatedAt,
	}
}

// ExportEntityWorkbook builds an xlsx workbook with the entity's use cases, its team and
// its stats summary. The caller writes and closes the file.
func (s *Service) ExportEntityWorkbook(ctx context.Context, entityID string) (*excelize.File, error) {
	ctx, span := s.tracer.Start(ctx, "models.ExportEntityWorkbook")
	defer span.End()

	entity, err := s.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}
	useCases, err := s.ListUseCases(ctx, entityID)
	if err != nil {
		return nil, err
	}
	stats, err := s.ComputeEntityStats(ctx, useCases)
	if err != nil {
		return nil, err
	}
	summary := stats[entityID]
	if summary == nil {
		summary = &EntityStats{}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", useCaseSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, useCaseSheet, useCaseColumns, len(useCases), func(i int) []any {
		return useCaseRow(useCases[i])
	}); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(teamSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeRows(f, teamSheet, []string{"Nombre", "Rol"}, len(entity.Team), func(i int) []any {
		return []any{entity.Team[i].Name, entity.Team[i].Role}
	}); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		f.Close()
		return nil, err
	}
	summaryRows := [][]any{
		{"Entidad", entity.Name},
		{"Total", summary.Total},
		{"Activos", summary.Active},
		{"Inactivos", summary.Inactive},
		{"Estrategicos", summary.Strategic},
		{"Cientificos de datos", summary.Scientists},
		{"Alertas", summary.Alerts},
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeRows(f *excelize.File, sheet string, headings []string, n int, row func(int) []any) error {
	header := make([]any, len(headings))
	for i, h := range headings {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(i)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// ExportFileName is the attachment name used for an entity workbook.
func ExportFileName(entityID string) string {
	return fmt.Sprintf("%s-casos-de-uso.xlsx", entityID)
}
