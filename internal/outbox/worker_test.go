package outbox

import (
	"context"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store/memory"
)

func seedCatalog(t *testing.T, repo *memory.Store) domain.Item {
	t.Helper()
	ctx := context.Background()

	group, err := repo.CreateItemGroup(ctx, domain.ItemGroup{Name: "BOY'S POLO SHIRT", Code: "BPS"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	item, err := repo.CreateItem(ctx, domain.Item{ItemCode: "BPS30", Name: group.Name, Rate: 23, ItemGroupID: group.ID})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return *item
}

func seedTransaction(t *testing.T, repo *memory.Store, item domain.Item, qty float64) domain.Transaction {
	t.Helper()
	ctx := context.Background()

	trx := domain.Transaction{
		ID:            "TX-000001",
		Date:          time.Now().UTC(),
		Total:         item.Rate * qty,
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.TxStatusCompleted,
		Items: []domain.TransactionItem{
			{ID: "txi-1", TransactionID: "TX-000001", ProductID: item.ID, Name: item.Name, Price: item.Rate, Quantity: qty},
		},
	}
	created, err := repo.CreateTransaction(ctx, trx, []domain.OutboxEntry{{
		TransactionID: trx.ID,
		ItemID:        item.ID,
		Quantity:      qty,
		EntryType:     domain.EntryTypeSale,
	}})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return *created
}

func TestProcessOnceAppliesPendingRows(t *testing.T) {
	repo := memory.New()
	item := seedCatalog(t, repo)
	trx := seedTransaction(t, repo, item, 2)

	worker := NewWorker(repo, nil)
	worker.ProcessOnce(context.Background())

	pending, err := repo.CountPendingOutbox(context.Background(), trx.ID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected 0 pending rows after processing, got %d", pending)
	}

	entries, err := repo.EntriesForItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("entries for item: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	if entries[0].Type != domain.EntryTypeSale || entries[0].Quantity != 2 {
		t.Fatalf("expected sale entry qty 2, got %s qty %v", entries[0].Type, entries[0].Quantity)
	}
	if entries[0].InvoiceNumber != trx.ID {
		t.Fatalf("expected ledger entry tagged with receipt id, got %q", entries[0].InvoiceNumber)
	}
}

func TestProcessOnceRetriesAndDeadLetters(t *testing.T) {
	repo := memory.New()
	item := seedCatalog(t, repo)
	trx := seedTransaction(t, repo, item, 1)

	// A second transaction whose outbox row points at a missing item, so
	// every apply attempt fails.
	broken, err := repo.CreateTransaction(context.Background(), domain.Transaction{
		ID:            "TX-000002",
		Date:          time.Now().UTC(),
		Total:         5,
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.TxStatusCompleted,
		Items: []domain.TransactionItem{
			{ID: "txi-2", TransactionID: "TX-000002", ProductID: "missing-item", Name: "ghost", Price: 5, Quantity: 1},
		},
	}, []domain.OutboxEntry{{
		TransactionID: "TX-000002",
		ItemID:        "missing-item",
		Quantity:      1,
		EntryType:     domain.EntryTypeSale,
	}})
	if err != nil {
		t.Fatalf("create broken transaction: %v", err)
	}

	worker := NewWorker(repo, nil)
	worker.MaxAttempts = 2
	worker.LockTTL = 0 // reclaim immediately so each pass retries

	worker.ProcessOnce(context.Background())
	worker.ProcessOnce(context.Background())

	// The healthy row applied; the broken row exhausted its attempts and
	// moved to dead instead of retrying forever.
	if pending, _ := repo.CountPendingOutbox(context.Background(), trx.ID); pending != 0 {
		t.Fatalf("expected healthy row applied, still %d pending", pending)
	}
	if pending, _ := repo.CountPendingOutbox(context.Background(), broken.ID); pending != 0 {
		t.Fatalf("expected broken row dead after max attempts, still %d pending", pending)
	}

	entries, err := repo.EntriesForItem(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("entries for item: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one applied ledger entry, got %d", len(entries))
	}
}

func TestStaleLocksAreReclaimed(t *testing.T) {
	repo := memory.New()
	item := seedCatalog(t, repo)
	trx := seedTransaction(t, repo, item, 3)

	// A crashed worker left its claim behind.
	if _, err := repo.ClaimOutbox(context.Background(), "crashed-worker", 10, time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("initial claim: %v", err)
	}

	worker := NewWorker(repo, nil)
	worker.LockTTL = -time.Minute // treat every lock as stale
	worker.ProcessOnce(context.Background())

	if pending, _ := repo.CountPendingOutbox(context.Background(), trx.ID); pending != 0 {
		t.Fatalf("expected reclaimed row applied, still %d pending", pending)
	}
}
