package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"deals/internal/core"
)

type dealRow struct {
	ID          int64  `db:"id"`
	StockNumber string `db:"stock_number"`
	DealDate    string `db:"deal_date"`
	LastName    string `db:"last_name"`
	ManagerID   int64  `db:"manager_id"`
	ManagerName string `db:"manager_name"`
	Reserve     string `db:"reserve"`
	VSC         string `db:"vsc"`
	GAP         string `db:"gap"`
	TW          string `db:"tw"`
	Tricare     string `db:"tricare"`
	Key         string `db:"key"`
	Version     int64  `db:"version"`
	UpdatedBy   string `db:"updated_by"`
	SyncStatus  string `db:"sync_status"`
	CreatedAt   string `db:"created_at"`
	UpdatedAt   string `db:"updated_at"`
}

func (r dealRow) toDomain() (core.Deal, error) {
	date, err := core.ParseDate(r.DealDate)
	if err != nil {
		return core.Deal{}, fmt.Errorf("deal %d: parse deal_date %q: %w", r.ID, r.DealDate, err)
	}

	d := core.Deal{
		ID:          r.ID,
		StockNumber: r.StockNumber,
		DealDate:    date,
		LastName:    r.LastName,
		Manager:     core.Manager{ID: r.ManagerID, Name: r.ManagerName},
		Version:     r.Version,
		UpdatedBy:   r.UpdatedBy,
		SyncStatus:  core.SyncStatus(r.SyncStatus),
	}

	amounts := []struct {
		dst *decimal.Decimal
		src string
		col string
	}{
		{&d.Reserve, r.Reserve, "reserve"},
		{&d.VSC, r.VSC, "vsc"},
		{&d.GAP, r.GAP, "gap"},
		{&d.TW, r.TW, "tw"},
		{&d.Tricare, r.Tricare, "tricare"},
		{&d.Key, r.Key, "key"},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.src)
		if err != nil {
			return core.Deal{}, fmt.Errorf("deal %d: parse %s %q: %w", r.ID, a.col, a.src, err)
		}
		*a.dst = v
	}

	// timestamps are informational; tolerate rows written by hand
	d.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, r.UpdatedAt)
	return d, nil
}

func toDeals(rows []dealRow) ([]core.Deal, error) {
	out := make([]core.Deal, 0, len(rows))
	for _, row := range rows {
		d, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

type managerRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

func (r managerRow) toDomain() core.Manager {
	return core.Manager{ID: r.ID, Name: r.Name}
}

type userRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
}
