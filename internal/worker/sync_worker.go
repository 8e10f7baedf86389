package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"deals/internal/amqp"
	"deals/internal/core"
	"deals/internal/metrics"
	"deals/internal/sheets"
)

// Store is the slice of the record store the worker reads and marks.
type Store interface {
	GetDeal(ctx context.Context, id int64) (core.Deal, error)
	PendingSyncDeals(ctx context.Context, limit int) ([]core.Deal, error)
	MarkSynced(ctx context.Context, id, version int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// SyncWorker mirrors deals from the record store into a spreadsheet.
type SyncWorker struct {
	store     Store
	sheet     sheets.DealSheet
	batchSize int
}

func NewSyncWorker(store Store, sheet sheets.DealSheet, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{store: store, sheet: sheet, batchSize: batchSize}
}

// HandleSyncMessage mirrors the current state of the announced deal. The
// store is the source of truth, so a stale message still writes the latest row.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.DealSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID, "version", msg.Version)

	d, err := w.store.GetDeal(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// deleted after the message was published; the delete message follows
		slog.InfoContext(ctx, "Deal no longer exists, skipping sync", "id", msg.ID)
		metrics.Sync.WithLabelValues(metrics.SyncSkipped).Inc()
		return nil
	}
	if err != nil {
		return fmt.Errorf("get deal from storage: %w", err)
	}

	if err := w.syncDeal(ctx, d); err != nil {
		return fmt.Errorf("sync deal to sheet: %w", err)
	}
	return nil
}

// HandleDeleteMessage drops the deal's mirrored row.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.DealDeleteMessage) error {
	slog.InfoContext(ctx, "Processing delete message", "id", msg.ID, "stock_number", msg.StockNumber)

	if err := w.sheet.DeleteDeal(ctx, msg.ID); err != nil {
		metrics.Sync.WithLabelValues(metrics.SyncFailed).Inc()
		return fmt.Errorf("delete deal row: %w", err)
	}
	metrics.Sync.WithLabelValues(metrics.SyncDeleted).Inc()
	slog.InfoContext(ctx, "Successfully deleted deal row", "id", msg.ID, "timestamp", msg.Timestamp)
	return nil
}

// ProcessPendingDeals syncs one batch of deals still pending or in error.
// It backs up the message path in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingDeals(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if synced+failed > 0 {
		slog.InfoContext(ctx, "Processed pending deals", "synced", synced, "errors", failed)
	}
	return nil
}

// StartupSyncCheck runs a larger sweep when the worker starts, recovering
// from missed messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		slog.InfoContext(ctx, "No pending deals found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.store.PendingSyncDeals(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending deals: %w", err)
	}
	for _, d := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncDeal(ctx, d); err != nil {
			slog.ErrorContext(ctx, "Failed to sync deal", "id", d.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) syncDeal(ctx context.Context, d core.Deal) error {
	ref, err := w.sheet.UpsertDeal(ctx, d)
	if err != nil {
		metrics.Sync.WithLabelValues(metrics.SyncFailed).Inc()
		if markErr := w.store.MarkSyncError(ctx, d.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", d.ID, "error", markErr)
		}
		return fmt.Errorf("upsert row: %w", err)
	}

	// the row is written; a failed mark only means a redundant resync later
	if err := w.store.MarkSynced(ctx, d.ID, d.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", d.ID, "error", err)
	}
	metrics.Sync.WithLabelValues(metrics.SyncOK).Inc()

	slog.InfoContext(ctx, "Successfully synced deal",
		"id", d.ID,
		"version", d.Version,
		"sheets_ref", ref,
		"stock_number", d.StockNumber)
	return nil
}
