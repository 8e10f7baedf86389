package http

import (
	"errors"
	"net/http"
	"time"

	"deals/internal/auth"
	"deals/internal/core"
	"deals/internal/report"
)

type dealJSON struct {
	ID          int64     `json:"id"`
	StockNumber string    `json:"stock_number"`
	DealDate    string    `json:"deal_date"`
	LastName    string    `json:"last_name"`
	ManagerID   int64     `json:"manager_id"`
	Manager     string    `json:"manager"`
	Reserve     string    `json:"reserve"`
	VSC         string    `json:"vsc"`
	GAP         string    `json:"gap"`
	TW          string    `json:"tw"`
	Tricare     string    `json:"tricare"`
	Key         string    `json:"key"`
	Profit      string    `json:"profit"`
	Version     int64     `json:"version"`
	SyncStatus  string    `json:"sync_status"`
	UpdatedBy   string    `json:"updated_by"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newDealJSON(d core.Deal) dealJSON {
	return dealJSON{
		ID:          d.ID,
		StockNumber: d.StockNumber,
		DealDate:    d.DealDate.String(),
		LastName:    d.LastName,
		ManagerID:   d.Manager.ID,
		Manager:     d.Manager.Name,
		Reserve:     d.Reserve.StringFixed(2),
		VSC:         d.VSC.StringFixed(2),
		GAP:         d.GAP.StringFixed(2),
		TW:          d.TW.StringFixed(2),
		Tricare:     d.Tricare.StringFixed(2),
		Key:         d.Key.StringFixed(2),
		Profit:      d.Profit().StringFixed(2),
		Version:     d.Version,
		SyncStatus:  string(d.SyncStatus),
		UpdatedBy:   d.UpdatedBy,
		UpdatedAt:   d.UpdatedAt,
	}
}

func newDealsJSON(deals []core.Deal) []dealJSON {
	out := make([]dealJSON, len(deals))
	for i, d := range deals {
		out[i] = newDealJSON(d)
	}
	return out
}

type reportJSON struct {
	StartDate       string         `json:"start_date,omitempty"`
	EndDate         string         `json:"end_date,omitempty"`
	Managers        []int64        `json:"managers,omitempty"`
	TotalProfit     string         `json:"total_profit"`
	TotalDeals      int            `json:"total_deals"`
	AvgProfitPerCar string         `json:"avg_profit_per_car"`
	AvgProductsSold float64        `json:"avg_products_sold"`
	ProductsSold    map[string]int `json:"products_sold"`
	Deals           []dealJSON     `json:"deals"`
}

func newReportJSON(r report.Report) reportJSON {
	return reportJSON{
		StartDate:       r.Filter.Start.String(),
		EndDate:         r.Filter.End.String(),
		Managers:        r.Filter.Managers,
		TotalProfit:     r.Summary.TotalProfit.StringFixed(2),
		TotalDeals:      r.Summary.TotalDeals,
		AvgProfitPerCar: r.Summary.AvgProfitPerCar.StringFixed(2),
		AvgProductsSold: r.Summary.AvgProductsSold,
		ProductsSold:    r.Summary.SoldByKey(),
		Deals:           newDealsJSON(r.Deals),
	}
}

func (s *Server) handleAPIDeals(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	deals, err := s.deals.ListDeals(r.Context(), searchQuery(r))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	NewResponse().JSON(map[string]any{
		"count": len(deals),
		"deals": newDealsJSON(deals),
	}).Write(w)
}

func (s *Server) handleAPIReport(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var form core.ReportForm
	if err := BindForm(r.URL.Query(), &form); err != nil {
		s.serverError(w, r, err)
		return
	}
	filter, err := form.Filter()
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		NewResponse().Status(http.StatusUnprocessableEntity).
			JSON(apiError{Error: "invalid report filter", Fields: ve.Fields}).Write(w)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	rep, err := s.reports.Generate(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	NewResponse().JSON(newReportJSON(rep)).Write(w)
}
