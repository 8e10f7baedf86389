package sheets

import (
	"context"
	"strconv"

	"deals/internal/core"
)

// DealSheet mirrors deals into a spreadsheet, one row per deal keyed by id.
type DealSheet interface {
	// UpsertDeal writes the deal's row, replacing an existing row with the
	// same id. It returns a reference to the written range.
	UpsertDeal(ctx context.Context, d core.Deal) (rowRef string, err error)
	// DeleteDeal removes the row for id. Deleting a missing row is not an error.
	DeleteDeal(ctx context.Context, id int64) error
}

// Header is the mirrored sheet's first row.
func Header() []string {
	return append(core.DealFields(), "profit", "version", "updated_by")
}

// Row renders a deal in Header order.
func Row(d core.Deal) []string {
	return append(d.FieldValues(), d.Profit().StringFixed(2), strconv.FormatInt(d.Version, 10), d.UpdatedBy)
}
