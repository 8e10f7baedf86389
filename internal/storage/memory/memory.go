// Package memory is an in-process record store used for local development
// and tests. Data is lost on restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"deals/internal/core"
)

type Store struct {
	mu       sync.Mutex
	deals    map[int64]core.Deal
	managers map[int64]core.Manager
	users    map[string]core.User
	nextDeal int64
	nextMgr  int64
}

func New() *Store {
	return &Store{
		deals:    map[int64]core.Deal{},
		managers: map[int64]core.Manager{},
		users:    map[string]core.User{},
	}
}

// NewWithManagers returns a store seeded with the named managers.
func NewWithManagers(names ...string) *Store {
	s := New()
	for _, n := range names {
		s.nextMgr++
		s.managers[s.nextMgr] = core.Manager{ID: s.nextMgr, Name: n}
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) ListDeals(_ context.Context, query string) ([]core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(d core.Deal) bool { return core.MatchesQuery(d, query) }), nil
}

func (s *Store) FilterDeals(_ context.Context, f core.ReportFilter) ([]core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(f.Matches), nil
}

func (s *Store) GetDeal(_ context.Context, id int64) (core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return core.Deal{}, fmt.Errorf("deal %d: %w", id, core.ErrNotFound)
	}
	return s.withManager(d), nil
}

func (s *Store) CreateDeal(_ context.Context, d core.Deal, actor string) (core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.managers[d.Manager.ID]; !ok {
		return core.Deal{}, fmt.Errorf("manager %d: %w", d.Manager.ID, core.ErrNotFound)
	}
	s.nextDeal++
	now := time.Now().UTC()
	d.ID = s.nextDeal
	d.Version = 1
	d.UpdatedBy = actor
	d.SyncStatus = core.SyncPending
	d.CreatedAt, d.UpdatedAt = now, now
	s.deals[d.ID] = d
	return s.withManager(d), nil
}

func (s *Store) UpdateDeal(_ context.Context, d core.Deal, actor string) (core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.deals[d.ID]
	if !ok {
		return core.Deal{}, fmt.Errorf("deal %d: %w", d.ID, core.ErrNotFound)
	}
	if _, ok := s.managers[d.Manager.ID]; !ok {
		return core.Deal{}, fmt.Errorf("manager %d: %w", d.Manager.ID, core.ErrNotFound)
	}
	d.Version = prev.Version + 1
	d.UpdatedBy = actor
	d.SyncStatus = core.SyncPending
	d.CreatedAt = prev.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	s.deals[d.ID] = d
	return s.withManager(d), nil
}

func (s *Store) DeleteDeal(_ context.Context, id int64) (core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	if !ok {
		return core.Deal{}, fmt.Errorf("deal %d: %w", id, core.ErrNotFound)
	}
	delete(s.deals, id)
	return s.withManager(d), nil
}

// PendingSyncDeals returns deals not yet mirrored, oldest change first.
func (s *Store) PendingSyncDeals(_ context.Context, limit int) ([]core.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.FilterMap(lo.Values(s.deals), func(d core.Deal, _ int) (core.Deal, bool) {
		return s.withManager(d), d.SyncStatus == core.SyncPending || d.SyncStatus == core.SyncError
	})
	slices.SortFunc(out, func(a, b core.Deal) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkSynced marks the deal synced if it has not changed since version.
func (s *Store) MarkSynced(_ context.Context, id, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deals[id]; ok && d.Version == version {
		d.SyncStatus = core.SyncSynced
		s.deals[id] = d
	}
	return nil
}

func (s *Store) MarkSyncError(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deals[id]; ok {
		d.SyncStatus = core.SyncError
		s.deals[id] = d
	}
	return nil
}

func (s *Store) ListManagers(context.Context) ([]core.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	managers := lo.Values(s.managers)
	slices.SortFunc(managers, func(a, b core.Manager) int { return strings.Compare(a.Name, b.Name) })
	return managers, nil
}

func (s *Store) GetManager(_ context.Context, id int64) (core.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[id]
	if !ok {
		return core.Manager{}, fmt.Errorf("manager %d: %w", id, core.ErrNotFound)
	}
	return m, nil
}

func (s *Store) CreateManager(_ context.Context, m core.Manager) (core.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := lo.Find(lo.Values(s.managers), func(x core.Manager) bool { return x.Name == m.Name }); dup {
		return core.Manager{}, core.NewValidationError("name", "Manager with this name already exists.")
	}
	s.nextMgr++
	m.ID = s.nextMgr
	s.managers[m.ID] = m
	return m, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return core.User{}, fmt.Errorf("user %q: %w", username, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return nil
	}
	s.users[username] = core.User{ID: int64(len(s.users) + 1), Username: username, PasswordHash: passwordHash}
	return nil
}

// sorted returns matching deals newest first. Callers hold s.mu.
func (s *Store) sorted(keep func(core.Deal) bool) []core.Deal {
	out := lo.FilterMap(lo.Values(s.deals), func(d core.Deal, _ int) (core.Deal, bool) {
		d = s.withManager(d)
		return d, keep(d)
	})
	slices.SortFunc(out, func(a, b core.Deal) int {
		if c := b.DealDate.Compare(a.DealDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// withManager resolves the manager name. Callers hold s.mu.
func (s *Store) withManager(d core.Deal) core.Deal {
	if m, ok := s.managers[d.Manager.ID]; ok {
		d.Manager = m
	}
	return d
}
