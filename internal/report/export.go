package report

import (
	"fmt"
	"io"
)

// Format is a downloadable report encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatCSV, FormatXLSX, FormatPDF}

// FormFlag is the form field whose presence requests this format.
func (f Format) FormFlag() string {
	return "export_" + string(f)
}

// Filename is the attachment name of the export.
func (f Format) Filename() string {
	return "deals_report." + string(f)
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Write encodes r in format f.
func Write(w io.Writer, f Format, r Report) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, r.Deals)
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatPDF:
		return WritePDF(w, r)
	}
	return fmt.Errorf("unsupported export format %q", f)
}
