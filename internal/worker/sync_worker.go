package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"loanbook/internal/amqp"
	"loanbook/internal/core"
	"loanbook/internal/ledger"
	"loanbook/internal/services"
)

// SyncWorker mirrors loans from the ledger store into an external sheet.
type SyncWorker struct {
	store     ledger.Store
	mirror    ledger.Mirror
	engine    *services.StatusEngine
	batchSize int
	now       func() time.Time
}

func NewSyncWorker(store ledger.Store, mirror ledger.Mirror, engine *services.StatusEngine, batchSize int) *SyncWorker {
	if engine == nil {
		engine = services.NewStatusEngine(nil)
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	return &SyncWorker{
		store:     store,
		mirror:    mirror,
		engine:    engine,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleSyncMessage processes a single loan sync message from AMQP
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LoanSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"op", msg.Op)

	switch msg.Op {
	case amqp.OpDelete:
		if err := w.mirror.DeleteLoan(ctx, msg.ID); err != nil {
			return fmt.Errorf("delete loan from mirror: %w", err)
		}
		return nil
	case amqp.OpUpsert:
		loans, err := w.store.LoadLoans(ctx)
		if err != nil {
			return fmt.Errorf("load loans: %w", err)
		}
		loan, ok := core.FindLoan(loans, msg.ID)
		if !ok {
			// Deleted after the message was published
			slog.InfoContext(ctx, "Loan no longer exists, removing from mirror", "id", msg.ID)
			return w.mirror.DeleteLoan(ctx, msg.ID)
		}
		if err := w.mirror.UpsertLoan(ctx, w.engine.View(loan, w.now())); err != nil {
			return fmt.Errorf("upsert loan in mirror: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown sync op %q", msg.Op)
	}
}

// ResyncAll pushes every loan with its current status, at most batchSize
// writes in flight. It returns the number of loans mirrored.
func (w *SyncWorker) ResyncAll(ctx context.Context) (int, error) {
	loans, err := w.store.LoadLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("load loans: %w", err)
	}

	now := w.now()
	var synced int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, loan := range loans {
		g.Go(func() error {
			if err := w.mirror.UpsertLoan(gctx, w.engine.View(loan, now)); err != nil {
				return fmt.Errorf("upsert loan %d: %w", loan.ID, err)
			}
			atomic.AddInt64(&synced, 1)
			return nil
		})
	}
	err = g.Wait()

	slog.InfoContext(ctx, "Resync completed",
		"total", len(loans),
		"synced", synced,
		"error", err)
	return int(synced), err
}

// RunPeriodicResync resyncs every interval until ctx is done, so the
// mirrored status column follows the calendar.
func (w *SyncWorker) RunPeriodicResync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid resync interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Periodic resync started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Periodic resync stopped")
			return nil
		case <-ticker.C:
			if _, err := w.ResyncAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}
