package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"deals/internal/core"
	"deals/internal/metrics"
)

// DealStore is the record store the deal service writes through.
type DealStore interface {
	ListDeals(ctx context.Context, query string) ([]core.Deal, error)
	GetDeal(ctx context.Context, id int64) (core.Deal, error)
	CreateDeal(ctx context.Context, d core.Deal, actor string) (core.Deal, error)
	UpdateDeal(ctx context.Context, d core.Deal, actor string) (core.Deal, error)
	DeleteDeal(ctx context.Context, id int64) (core.Deal, error)
	ListManagers(ctx context.Context) ([]core.Manager, error)
	GetManager(ctx context.Context, id int64) (core.Manager, error)
	CreateManager(ctx context.Context, m core.Manager) (core.Manager, error)
}

// Publisher announces deal changes to the spreadsheet mirror.
type Publisher interface {
	PublishDealSync(ctx context.Context, id, version int64) error
	PublishDealDelete(ctx context.Context, id int64, stockNumber string) error
}

// DealService orchestrates deal mutations across the store and AMQP.
type DealService struct {
	store     DealStore
	publisher Publisher
}

// NewDealService wires the service. publisher may be nil when no broker is configured.
func NewDealService(store DealStore, publisher Publisher) *DealService {
	return &DealService{store: store, publisher: publisher}
}

// ListDeals returns every deal matching query, newest first.
func (s *DealService) ListDeals(ctx context.Context, query string) ([]core.Deal, error) {
	deals, err := s.store.ListDeals(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	return deals, nil
}

func (s *DealService) GetDeal(ctx context.Context, id int64) (core.Deal, error) {
	return s.store.GetDeal(ctx, id)
}

// CreateDeal validates form, saves the deal and publishes a sync message.
func (s *DealService) CreateDeal(ctx context.Context, actor string, form core.DealForm) (core.Deal, error) {
	d, err := s.bind(ctx, form)
	if err != nil {
		return core.Deal{}, err
	}
	created, err := s.store.CreateDeal(ctx, d, actor)
	if err != nil {
		return core.Deal{}, fmt.Errorf("save deal: %w", err)
	}
	metrics.Mutations.WithLabelValues("create").Inc()

	if err := s.publishSync(ctx, created); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", created.ID, "error", err)
		// the deal is saved; the worker's sweep picks it up
	}
	return created, nil
}

// UpdateDeal replaces the deal's attributes. A missing id is ErrNotFound
// even when the form is also invalid.
func (s *DealService) UpdateDeal(ctx context.Context, actor string, id int64, form core.DealForm) (core.Deal, error) {
	if _, err := s.store.GetDeal(ctx, id); err != nil {
		return core.Deal{}, err
	}
	d, err := s.bind(ctx, form)
	if err != nil {
		return core.Deal{}, err
	}
	d.ID = id
	updated, err := s.store.UpdateDeal(ctx, d, actor)
	if err != nil {
		return core.Deal{}, fmt.Errorf("update deal: %w", err)
	}
	metrics.Mutations.WithLabelValues("update").Inc()

	if err := s.publishSync(ctx, updated); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", updated.ID, "error", err)
	}
	return updated, nil
}

// DeleteDeal removes the deal and publishes a delete message.
func (s *DealService) DeleteDeal(ctx context.Context, actor string, id int64) error {
	deleted, err := s.store.DeleteDeal(ctx, id)
	if err != nil {
		return err
	}
	metrics.Mutations.WithLabelValues("delete").Inc()
	slog.InfoContext(ctx, "Deal deleted", "id", id, "actor", actor)

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message")
		return nil
	}
	if err := s.publisher.PublishDealDelete(ctx, deleted.ID, deleted.StockNumber); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message", "id", id, "error", err)
	}
	return nil
}

func (s *DealService) ListManagers(ctx context.Context) ([]core.Manager, error) {
	managers, err := s.store.ListManagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list managers: %w", err)
	}
	return managers, nil
}

// CreateManager validates form and adds a manager. Duplicate names are a
// ValidationError on "name".
func (s *DealService) CreateManager(ctx context.Context, actor string, form core.ManagerForm) (core.Manager, error) {
	m, err := form.Manager()
	if err != nil {
		return core.Manager{}, err
	}
	created, err := s.store.CreateManager(ctx, m)
	if err != nil {
		return core.Manager{}, err
	}
	metrics.Mutations.WithLabelValues("create_manager").Inc()
	slog.InfoContext(ctx, "Manager created", "id", created.ID, "name", created.Name, "actor", actor)
	return created, nil
}

// bind validates form and resolves the manager reference.
func (s *DealService) bind(ctx context.Context, form core.DealForm) (core.Deal, error) {
	d, err := form.Deal()
	if err != nil {
		return core.Deal{}, err
	}
	m, err := s.store.GetManager(ctx, d.Manager.ID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Deal{}, core.NewValidationError("manager", "Select a valid choice. That choice is not one of the available choices.")
	}
	if err != nil {
		return core.Deal{}, fmt.Errorf("get manager: %w", err)
	}
	d.Manager = m
	return d, nil
}

func (s *DealService) publishSync(ctx context.Context, d core.Deal) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}
	return s.publisher.PublishDealSync(ctx, d.ID, d.Version)
}
