package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"deals/internal/core"
)

const (
	summarySheet = "Summary"
	dealsSheet   = "Deals"
)

// WriteXLSX writes a workbook with a summary sheet and a deals sheet.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(dealsSheet); err != nil {
		return fmt.Errorf("create deals sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeSummarySheet(f, r, header); err != nil {
		return err
	}
	if err := writeDealsSheet(f, r.Deals, header); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, r Report, header int) error {
	s := r.Summary
	rows := [][]any{
		{"Metric", "Value"},
		{"Start date", r.Filter.Start.String()},
		{"End date", r.Filter.End.String()},
		{"Total deals", s.TotalDeals},
		{"Total profit", s.TotalProfit.InexactFloat64()},
		{"Avg profit per car", s.AvgProfitPerCar.Round(2).InexactFloat64()},
		{"Avg products sold", s.AvgProductsSold},
	}
	for _, pc := range s.ProductsSold {
		rows = append(rows, []any{pc.Product.Label() + " sold", pc.Sold})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "B1", header); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "A", 22)
}

func writeDealsSheet(f *excelize.File, deals []core.Deal, header int) error {
	fields := core.DealFields()
	for i, name := range fields {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(dealsSheet, cell, name); err != nil {
			return fmt.Errorf("write header %s: %w", name, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(fields), 1)
	if err := f.SetCellStyle(dealsSheet, "A1", last, header); err != nil {
		return fmt.Errorf("style deals header: %w", err)
	}

	for i, d := range deals {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("deal cell: %w", err)
		}
		values := d.FieldValues()
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		if err := f.SetSheetRow(dealsSheet, cell, &row); err != nil {
			return fmt.Errorf("write deal %d: %w", d.ID, err)
		}
	}

	return f.SetPanes(dealsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
