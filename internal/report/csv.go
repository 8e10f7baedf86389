package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"deals/internal/core"
)

// WriteCSV writes the deal attribute header followed by one row per deal.
func WriteCSV(w io.Writer, deals []core.Deal) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(core.DealFields()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range deals {
		if err := cw.Write(d.FieldValues()); err != nil {
			return fmt.Errorf("write deal %d: %w", d.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
