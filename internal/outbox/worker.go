// Package outbox applies stock-ledger movements recorded durably alongside
// committed POS transactions. The sale never touches the ledger inline; each
// line item leaves a pending outbox row that this worker turns into a stock
// entry, so a ledger hiccup can delay the decrement but never lose it.
package outbox

import (
	"context"
	"log"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

type Worker struct {
	Repo        store.Repository
	Lookup      cache.LookupCache
	WorkerID    string
	BatchSize   int
	Interval    time.Duration
	LockTTL     time.Duration
	MaxAttempts int
}

func NewWorker(repo store.Repository, lookup cache.LookupCache) *Worker {
	if lookup == nil {
		lookup = cache.NoopLookupCache{}
	}
	return &Worker{
		Repo:        repo,
		Lookup:      lookup,
		WorkerID:    "worker-" + time.Now().Format("20060102-150405.000"),
		BatchSize:   50,
		Interval:    2 * time.Second,
		LockTTL:     30 * time.Second,
		MaxAttempts: 5,
	}
}

// Run polls until ctx is cancelled. Claims are tagged with the worker id and
// a lock timestamp; rows locked longer than LockTTL are treated as abandoned
// by a crashed worker and reclaimed.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.Repo == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.Interval):
		}
	}
}

// ProcessOnce claims one batch of pending rows and applies each as a stock
// entry. Applying is idempotent at the row level: a row is either marked
// applied with its ledger entry committed, or released for retry with the
// error recorded.
func (w *Worker) ProcessOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-w.LockTTL)

	claimed, err := w.Repo.ClaimOutbox(ctx, w.WorkerID, w.BatchSize, staleBefore)
	if err != nil {
		log.Printf("[outbox] WARN: claim failed: %v", err)
		return
	}

	for _, entry := range claimed {
		if err := w.apply(ctx, entry); err != nil {
			log.Printf("[outbox] WARN: apply failed id=%s tx=%s item=%s attempt=%d: %v",
				entry.ID, entry.TransactionID, entry.ItemID, entry.Attempts+1, err)
			if markErr := w.Repo.MarkOutboxFailed(ctx, entry.ID, err.Error(), w.MaxAttempts); markErr != nil {
				log.Printf("[outbox] WARN: mark failed id=%s: %v", entry.ID, markErr)
			}
			continue
		}
		if err := w.Repo.MarkOutboxApplied(ctx, entry.ID, time.Now().UTC()); err != nil {
			log.Printf("[outbox] WARN: mark applied id=%s: %v", entry.ID, err)
		}
	}
}

func (w *Worker) apply(ctx context.Context, entry domain.OutboxEntry) error {
	item, err := w.Repo.GetItem(ctx, entry.ItemID)
	if err != nil {
		return err
	}

	_, err = w.Repo.CreateStockEntry(ctx, domain.StockEntry{
		ItemID:   item.ID,
		StoreID:  domain.DefaultStoreID,
		Type:     entry.EntryType,
		Quantity: entry.Quantity,
		Unit:     "pcs",
		Rate:     item.Rate,
		// The receipt id ties the ledger row back to its sale.
		InvoiceNumber: entry.TransactionID,
	})
	if err != nil {
		return err
	}

	if err := w.Lookup.Invalidate(ctx, cache.LookupKey(item.ItemCode)); err != nil {
		log.Printf("[outbox] WARN: lookup cache invalidate failed code=%s: %v", item.ItemCode, err)
	}
	return nil
}
