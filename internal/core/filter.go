package core

import (
	"slices"
	"strings"
)

// ReportFilter selects the deals a report covers.
// Zero dates and an empty manager set mean "no constraint".
type ReportFilter struct {
	Start    Date
	End      Date
	Managers []int64
}

// Matches reports whether d falls inside the filter. Both date bounds are inclusive.
func (f ReportFilter) Matches(d Deal) bool {
	if !f.Start.IsEmpty() && d.DealDate.Before(f.Start.Time) {
		return false
	}
	if !f.End.IsEmpty() && d.DealDate.After(f.End.Time) {
		return false
	}
	if len(f.Managers) > 0 && !slices.Contains(f.Managers, d.Manager.ID) {
		return false
	}
	return true
}

// MatchesQuery reports whether q is a case-insensitive substring of the
// deal's stock number, date text or last name. Only an empty query matches
// all; surrounding whitespace is part of the substring.
func MatchesQuery(d Deal, q string) bool {
	q = strings.ToLower(q)
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.StockNumber), q) ||
		strings.Contains(d.DealDate.String(), q) ||
		strings.Contains(strings.ToLower(d.LastName), q)
}
