// Package memory holds mirrored deal rows in process. The worker falls back
// to it when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"deals/internal/core"
	ports "deals/internal/sheets"
)

var _ ports.DealSheet = (*Sheet)(nil)

type row struct {
	id     int64
	values []string
}

type Sheet struct {
	mu   sync.Mutex
	rows []row
}

func New() *Sheet { return &Sheet{} }

// UpsertDeal replaces the row with the deal's id or appends a new one.
func (s *Sheet) UpsertDeal(_ context.Context, d core.Deal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := ports.Row(d)
	if i := s.index(d.ID); i >= 0 {
		s.rows[i].values = values
		return fmt.Sprintf("mem:%d", i+2), nil
	}
	s.rows = append(s.rows, row{id: d.ID, values: values})
	return fmt.Sprintf("mem:%d", len(s.rows)+1), nil
}

func (s *Sheet) DeleteDeal(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		s.rows = slices.Delete(s.rows, i, i+1)
	}
	return nil
}

// Rows returns the header followed by every mirrored row in sheet order.
func (s *Sheet) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, 0, len(s.rows)+1)
	out = append(out, ports.Header())
	for _, r := range s.rows {
		out = append(out, slices.Clone(r.values))
	}
	return out
}

// Row returns the mirrored values for id.
func (s *Sheet) Row(id int64) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return nil, false
	}
	return slices.Clone(s.rows[i].values), true
}

func (s *Sheet) index(id int64) int {
	return slices.IndexFunc(s.rows, func(r row) bool { return r.id == id })
}
