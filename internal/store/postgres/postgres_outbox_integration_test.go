package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

func TestTransactionOutboxRoundTrip(t *testing.T) {
	databaseURL := os.Getenv("TOKOPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	groupID := fmt.Sprintf("ig-it-%d", stamp)
	itemID := fmt.Sprintf("item-it-%d", stamp)
	itemCode := fmt.Sprintf("IT%d", stamp)
	txID := fmt.Sprintf("TX-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_outbox WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_entries WHERE item_id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, itemID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM item_groups WHERE id = $1`, groupID)
	})

	if _, err := s.CreateItemGroup(ctx, domain.ItemGroup{ID: groupID, Name: "IT GROUP " + itemCode, Code: itemCode}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := s.CreateItem(ctx, domain.Item{ID: itemID, ItemCode: itemCode, Name: "IT GROUP " + itemCode, Rate: 23, ItemGroupID: groupID}); err != nil {
		t.Fatalf("create item: %v", err)
	}

	now := time.Now().UTC()
	_, err = s.CreateTransaction(ctx, domain.Transaction{
		ID:            txID,
		Date:          now,
		Total:         46,
		PaymentMethod: domain.PaymentMethodCash,
		Status:        domain.TxStatusCompleted,
		Items: []domain.TransactionItem{
			{ID: txID + "-line1", TransactionID: txID, ProductID: itemID, Name: "IT GROUP " + itemCode, Price: 23, Quantity: 2},
		},
	}, []domain.OutboxEntry{{
		TransactionID: txID,
		ItemID:        itemID,
		Quantity:      2,
		EntryType:     domain.EntryTypeSale,
	}})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	pending, err := s.CountPendingOutbox(ctx, txID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending outbox row, got %d", pending)
	}

	claimed, err := s.ClaimOutbox(ctx, "it-worker", 10, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	var row *domain.OutboxEntry
	for i := range claimed {
		if claimed[i].TransactionID == txID {
			row = &claimed[i]
		}
	}
	if row == nil {
		t.Fatalf("expected claimed row for %s, got %d other rows", txID, len(claimed))
	}
	if row.LockedBy != "it-worker" || row.LockedAt == nil {
		t.Fatalf("expected lock metadata on claimed row, got %+v", row)
	}

	// A second worker must not see the locked row.
	again, err := s.ClaimOutbox(ctx, "other-worker", 10, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	for _, ob := range again {
		if ob.TransactionID == txID {
			t.Fatalf("locked row was claimed twice")
		}
	}

	if err := s.MarkOutboxApplied(ctx, row.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark applied: %v", err)
	}
	pending, err = s.CountPendingOutbox(ctx, txID)
	if err != nil {
		t.Fatalf("count pending after apply: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected 0 pending rows after apply, got %d", pending)
	}
}
