package finance

import (
	"context"

	"gato-backoffice/pkg/errutil"
	"gato-backoffice/pkg/identity"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName    = "Relatório Financeiro"
	XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportColumns = []struct {
	header string
	width  float64
}{
	{"ID", 25},
	{"Data", 12},
	{"Hora", 10},
	{"Usuário", 30},
	{"Email", 30},
	{"Tipo", 12},
	{"Moeda", 10},
	{"Valor", 12},
	{"Descrição", 40},
}

// Export renders the period's report as an xlsx workbook.
func (s *Service) Export(ctx context.Context, actor identity.Actor, period Period) ([]byte, error) {
	r, err := s.Report(ctx, actor, period)
	if err != nil {
		return nil, err
	}
	b, err := renderWorkbook(r)
	if err != nil {
		return nil, errutil.Internal("failed to render finance export", err)
	}
	return b, nil
}

func renderWorkbook(r *Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	header := make([]any, len(exportColumns))
	for i, c := range exportColumns {
		header[i] = c.header
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetName, col, col, c.width); err != nil {
			return nil, err
		}
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"000000"}},
	})
	if err != nil {
		return nil, err
	}
	last, err := excelize.ColumnNumberToName(len(exportColumns))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", style); err != nil {
		return nil, err
	}

	for i, tx := range r.Transactions {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		description := tx.Description
		if description == "" {
			description = "-"
		}
		at := tx.CreatedAt.UTC()
		row := []any{
			tx.ID,
			at.Format("02/01/2006"),
			at.Format("15:04:05"),
			tx.UserName,
			tx.UserEmail,
			string(tx.Type),
			string(tx.Currency),
			tx.Amount,
			description,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
