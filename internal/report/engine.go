// Package report computes profitability aggregates over a set of deals and
// serializes them for download.
package report

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"deals/internal/core"
)

// ProductCount is the number of deals on which a product was sold.
type ProductCount struct {
	Product core.Product
	Sold    int
}

// Summary is the aggregate bundle of a report.
type Summary struct {
	TotalProfit     decimal.Decimal
	TotalDeals      int
	AvgProfitPerCar decimal.Decimal
	AvgProductsSold float64
	ProductsSold    []ProductCount
}

// Report is a filtered deal set together with its aggregates.
type Report struct {
	Filter  core.ReportFilter
	Deals   []core.Deal
	Summary Summary
}

// New builds a report over deals, which must already satisfy filter.
func New(filter core.ReportFilter, deals []core.Deal) Report {
	return Report{Filter: filter, Deals: deals, Summary: Summarize(deals)}
}

// Summarize computes the aggregates over deals. An empty set yields zeros.
func Summarize(deals []core.Deal) Summary {
	total := lo.Reduce(deals, func(acc decimal.Decimal, d core.Deal, _ int) decimal.Decimal {
		return acc.Add(d.Profit())
	}, decimal.Zero)

	sold := lo.Map(core.Products, func(p core.Product, _ int) ProductCount {
		return ProductCount{
			Product: p,
			Sold:    lo.CountBy(deals, func(d core.Deal) bool { return d.Sold(p) }),
		}
	})

	s := Summary{
		TotalProfit:     total,
		TotalDeals:      len(deals),
		AvgProfitPerCar: decimal.Zero,
		ProductsSold:    sold,
	}
	if s.TotalDeals == 0 {
		return s
	}

	n := decimal.NewFromInt(int64(s.TotalDeals))
	s.AvgProfitPerCar = total.Div(n)
	soldTotal := lo.SumBy(sold, func(pc ProductCount) int { return pc.Sold })
	s.AvgProductsSold = float64(soldTotal) / float64(s.TotalDeals)
	return s
}

// Sold returns the sold count for product p.
func (s Summary) Sold(p core.Product) int {
	pc, _ := lo.Find(s.ProductsSold, func(pc ProductCount) bool { return pc.Product == p })
	return pc.Sold
}

// SoldByKey maps "<product>_sold" to its count.
func (s Summary) SoldByKey() map[string]int {
	return lo.SliceToMap(s.ProductsSold, func(pc ProductCount) (string, int) {
		return pc.Product.SoldKey(), pc.Sold
	})
}
