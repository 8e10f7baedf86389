package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deals/internal/core"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixtureDeals returns deal A (January, manager 1) and deal B (February, manager 2).
func fixtureDeals() []core.Deal {
	return []core.Deal{
		{
			ID: 1, StockNumber: "A", DealDate: core.NewDate(2024, 1, 10), LastName: "Adams",
			Manager: core.Manager{ID: 1, Name: "M1"}, Reserve: dec("500"), VSC: dec("300"),
		},
		{
			ID: 2, StockNumber: "B", DealDate: core.NewDate(2024, 2, 15), LastName: "Baker",
			Manager: core.Manager{ID: 2, Name: "M2"}, Reserve: dec("200"),
		},
	}
}

func filterDeals(deals []core.Deal, f core.ReportFilter) []core.Deal {
	var out []core.Deal
	for _, d := range deals {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

func TestSummarizeJanuary(t *testing.T) {
	f := core.ReportFilter{Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 31)}
	s := Summarize(filterDeals(fixtureDeals(), f))

	assert.Equal(t, 1, s.TotalDeals)
	assert.True(t, s.TotalProfit.Equal(dec("800")), "total profit %s", s.TotalProfit)
	assert.True(t, s.AvgProfitPerCar.Equal(dec("800")), "avg profit %s", s.AvgProfitPerCar)
	assert.Equal(t, 1, s.Sold(core.ProductVSC))
	for _, p := range []core.Product{core.ProductGAP, core.ProductTW, core.ProductTricare, core.ProductKey} {
		assert.Zero(t, s.Sold(p), "product %s", p)
	}
	assert.InDelta(t, 1.0, s.AvgProductsSold, 1e-9, "sold products divided by deals")
}

func TestSummarizeUnfiltered(t *testing.T) {
	s := Summarize(filterDeals(fixtureDeals(), core.ReportFilter{}))

	assert.Equal(t, 2, s.TotalDeals)
	assert.True(t, s.TotalProfit.Equal(dec("1000")))
	assert.True(t, s.AvgProfitPerCar.Equal(dec("500")))
	assert.InDelta(t, 0.5, s.AvgProductsSold, 1e-9)
}

func TestSummarizeManagerSet(t *testing.T) {
	s := Summarize(filterDeals(fixtureDeals(), core.ReportFilter{Managers: []int64{2}}))

	assert.Equal(t, 1, s.TotalDeals)
	assert.True(t, s.TotalProfit.Equal(dec("200")))
	assert.Zero(t, s.Sold(core.ProductVSC))
}

func TestSummarizeEmpty(t *testing.T) {
	for name, deals := range map[string][]core.Deal{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			s := Summarize(deals)

			assert.Zero(t, s.TotalDeals)
			assert.True(t, s.TotalProfit.IsZero())
			assert.True(t, s.AvgProfitPerCar.IsZero())
			assert.Zero(t, s.AvgProductsSold)
			require.Len(t, s.ProductsSold, len(core.Products))
			for _, pc := range s.ProductsSold {
				assert.Zero(t, pc.Sold)
			}
		})
	}
}

func TestSummarizeSoldIsStrictlyPositive(t *testing.T) {
	deals := []core.Deal{
		{GAP: dec("0"), Key: dec("-10")},
		{GAP: dec("0.01"), Key: dec("0")},
		{GAP: dec("-5"), Key: dec("25")},
	}
	s := Summarize(deals)

	assert.Equal(t, 1, s.Sold(core.ProductGAP))
	assert.Equal(t, 1, s.Sold(core.ProductKey))
	assert.True(t, s.TotalProfit.Equal(dec("10.01")))
	assert.InDelta(t, 2.0/3.0, s.AvgProductsSold, 1e-9)
}

func TestSummarizeTotalMatchesFieldSum(t *testing.T) {
	deals := []core.Deal{
		{Reserve: dec("1.10"), VSC: dec("2.20"), GAP: dec("3.30"), TW: dec("4.40"), Tricare: dec("5.50"), Key: dec("6.60")},
		{Reserve: dec("-0.10"), VSC: dec("0.20")},
	}
	s := Summarize(deals)
	assert.True(t, s.TotalProfit.Equal(dec("23.20")), "got %s", s.TotalProfit)
}

func TestTotalDealsEqualsDateRangeCount(t *testing.T) {
	var deals []core.Deal
	for day := 1; day <= 28; day++ {
		deals = append(deals, core.Deal{
			DealDate: core.NewDate(2024, 2, day),
			Manager:  core.Manager{ID: int64(day%3 + 1)},
		})
	}
	f := core.ReportFilter{Start: core.NewDate(2024, 2, 5), End: core.NewDate(2024, 2, 12)}
	s := Summarize(filterDeals(deals, f))
	assert.Equal(t, 8, s.TotalDeals)
}

func TestSoldByKey(t *testing.T) {
	s := Summarize(fixtureDeals())
	assert.Equal(t, map[string]int{
		"vsc_sold": 1, "gap_sold": 0, "tw_sold": 0, "tricare_sold": 0, "key_sold": 0,
	}, s.SoldByKey())
}
