package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"deals/internal/core"
)

var moneyColumns = []string{"reserve", "vsc", "gap", "tw", "tricare", "key"}

func TestWriteCSV(t *testing.T) {
	deals := fixtureDeals()
	deals[1].LastName = `Baker, "Jr"`

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, deals))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, len(deals)+1)

	header := records[0]
	assert.Equal(t, core.DealFields(), header)
	assert.Equal(t, []string{"1", "A", "2024-01-10", "Adams", "M1", "500.00", "300.00", "0.00", "0.00", "0.00", "0.00"}, records[1])
	assert.Equal(t, `Baker, "Jr"`, records[2][3])

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	sum := decimal.Zero
	for _, rec := range records[1:] {
		for _, name := range moneyColumns {
			v, err := decimal.NewFromString(rec[col[name]])
			require.NoError(t, err)
			sum = sum.Add(v)
		}
	}
	assert.True(t, sum.Equal(Summarize(deals).TotalProfit), "csv sum %s", sum)
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.DealFields(), records[0])
}

func TestWriteXLSX(t *testing.T) {
	r := New(core.ReportFilter{Start: core.NewDate(2024, 1, 1)}, fixtureDeals())

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{summarySheet, dealsSheet}, f.GetSheetList())

	rows, err := f.GetRows(dealsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, core.DealFields(), rows[0])
	assert.Equal(t, "B", rows[2][1])

	deals, err := f.GetCellValue(summarySheet, "B4")
	require.NoError(t, err)
	assert.Equal(t, "2", deals)
	start, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", start)
}

func TestWritePDF(t *testing.T) {
	var deals []core.Deal
	for range 60 {
		deals = append(deals, fixtureDeals()...)
	}

	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, New(core.ReportFilter{}, deals)))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "deals_report.csv", FormatCSV.Filename())
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "export_csv", FormatCSV.FormFlag())
	assert.Equal(t, "deals_report.xlsx", FormatXLSX.Filename())
	assert.Equal(t, "application/pdf", FormatPDF.ContentType())

	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("txt"), Report{}))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "All dates", periodLabel(core.ReportFilter{}))
	assert.Equal(t, "From 2024-01-01", periodLabel(core.ReportFilter{Start: core.NewDate(2024, 1, 1)}))
	assert.Equal(t, "Up to 2024-01-31", periodLabel(core.ReportFilter{End: core.NewDate(2024, 1, 31)}))
	assert.Equal(t, "2024-01-01 to 2024-01-31", periodLabel(core.ReportFilter{
		Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31),
	}))
}
