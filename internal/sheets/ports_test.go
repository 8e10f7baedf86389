package sheets

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"deals/internal/core"
)

func TestRowMatchesHeader(t *testing.T) {
	d := core.Deal{
		ID: 3, StockNumber: "S-3", DealDate: core.NewDate(2024, 1, 10), LastName: "Adams",
		Manager: core.Manager{ID: 1, Name: "M1"},
		Reserve: decimal.NewFromInt(500), VSC: decimal.NewFromInt(300),
		Version: 2, UpdatedBy: "alice",
	}
	row := Row(d)
	header := Header()
	assert.Len(t, row, len(header))
	assert.Equal(t, "id", header[0])
	assert.Equal(t, "3", row[0])
	assert.Equal(t, []string{"800.00", "2", "alice"}, row[len(row)-3:])
}
