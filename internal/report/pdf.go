package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"deals/internal/core"
)

const (
	pdfFont       = "Arial"
	pdfRowHeight  = 7.0
	pdfMarginMM   = 10.0
	pdfHeaderFill = 68
)

// WritePDF writes a landscape A4 document with the aggregates and a deal table.
func WritePDF(w io.Writer, r Report) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(pdfMarginMM, pdfMarginMM, pdfMarginMM)
	pdf.SetAutoPageBreak(true, pdfMarginMM)
	pdf.AddPage()

	pdf.SetFont(pdfFont, "B", 16)
	pdf.CellFormat(0, 10, "Deals report", "", 1, "C", false, 0, "")
	pdf.SetFont(pdfFont, "", 10)
	pdf.CellFormat(0, 6, periodLabel(r.Filter), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	s := r.Summary
	summary := [][2]string{
		{"Total deals", strconv.Itoa(s.TotalDeals)},
		{"Total profit", s.TotalProfit.StringFixed(2)},
		{"Avg profit per car", s.AvgProfitPerCar.StringFixed(2)},
		{"Avg products sold", strconv.FormatFloat(s.AvgProductsSold, 'f', 2, 64)},
	}
	for _, pc := range s.ProductsSold {
		summary = append(summary, [2]string{pc.Product.Label() + " sold", strconv.Itoa(pc.Sold)})
	}
	for _, kv := range summary {
		pdf.SetFont(pdfFont, "B", 10)
		pdf.CellFormat(50, pdfRowHeight, kv[0], "", 0, "L", false, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		pdf.CellFormat(0, pdfRowHeight, kv[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	fields := core.DealFields()
	pageWidth, pageHeight := pdf.GetPageSize()
	colWidth := (pageWidth - 2*pdfMarginMM) / float64(len(fields))

	writeHeader := func() {
		pdf.SetFont(pdfFont, "B", 9)
		pdf.SetFillColor(pdfHeaderFill, 114, 196)
		pdf.SetTextColor(255, 255, 255)
		for _, name := range fields {
			pdf.CellFormat(colWidth, pdfRowHeight+1, name, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont(pdfFont, "", 8)
		pdf.SetTextColor(0, 0, 0)
	}

	writeHeader()
	for _, d := range r.Deals {
		if pdf.GetY()+pdfRowHeight > pageHeight-pdfMarginMM {
			pdf.AddPage()
			writeHeader()
		}
		for _, v := range d.FieldValues() {
			pdf.CellFormat(colWidth, pdfRowHeight, fitText(pdf, v, colWidth), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func periodLabel(f core.ReportFilter) string {
	start, end := f.Start.String(), f.End.String()
	switch {
	case start == "" && end == "":
		return "All dates"
	case start == "":
		return "Up to " + end
	case end == "":
		return "From " + start
	}
	return start + " to " + end
}

// fitText truncates s so it fits in a cell of width w.
func fitText(pdf *gofpdf.Fpdf, s string, w float64) string {
	const pad = 2
	if pdf.GetStringWidth(s)+pad <= w {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...")+pad > w {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
