package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"deals/internal/core"
	"deals/internal/metrics"
	"deals/internal/report"
)

// ReportStore selects the deals a report covers.
type ReportStore interface {
	FilterDeals(ctx context.Context, f core.ReportFilter) ([]core.Deal, error)
}

type ReportService struct {
	store ReportStore
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{store: store}
}

// Generate builds the report for filter. No matching deals is not an error.
func (s *ReportService) Generate(ctx context.Context, filter core.ReportFilter) (report.Report, error) {
	deals, err := s.store.FilterDeals(ctx, filter)
	if err != nil {
		return report.Report{}, fmt.Errorf("filter deals: %w", err)
	}
	r := report.New(filter, deals)
	slog.DebugContext(ctx, "Report generated",
		"deals", r.Summary.TotalDeals,
		"total_profit", r.Summary.TotalProfit.StringFixed(2))
	return r, nil
}

// Export writes r to w in format f.
func (s *ReportService) Export(ctx context.Context, w io.Writer, f report.Format, r report.Report) error {
	if err := report.Write(w, f, r); err != nil {
		return fmt.Errorf("export %s: %w", f, err)
	}
	metrics.Reports.WithLabelValues(string(f)).Inc()
	slog.InfoContext(ctx, "Report exported", "format", f, "deals", len(r.Deals))
	return nil
}
