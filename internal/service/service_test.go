package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/outbox"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.New()
	svc := New(repo, cache.NoopLookupCache{}, 5*time.Second, "1")
	return svc, repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func mustCreateGroup(t *testing.T, svc *Service, name, code string) domain.ItemGroup {
	t.Helper()
	group, err := svc.CreateItemGroup(adminCtx(), domain.ItemGroupCreateRequest{Name: name, Code: code})
	if err != nil {
		t.Fatalf("create item group %s: %v", code, err)
	}
	return group
}

func mustCreateItem(t *testing.T, svc *Service, code, groupID string, rate float64) domain.Item {
	t.Helper()
	item, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{ItemCode: code, ItemGroupID: groupID, Rate: rate})
	if err != nil {
		t.Fatalf("create item %s: %v", code, err)
	}
	return item
}

func TestCreateItemGroupRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService()

	mustCreateGroup(t, svc, "BOY'S POLO SHIRT", "BPS")

	if _, err := svc.CreateItemGroup(adminCtx(), domain.ItemGroupCreateRequest{Name: "BOY'S POLO SHIRT", Code: "XX"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error for reused name, got %v", err)
	}
	if _, err := svc.CreateItemGroup(adminCtx(), domain.ItemGroupCreateRequest{Name: "Other", Code: "BPS"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error for reused code, got %v", err)
	}

	groups, pagination, err := svc.ListItemGroups(adminCtx(), store.ListQuery{})
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 || pagination.Total != 1 {
		t.Fatalf("expected exactly one group after duplicate rejections, got %d (total %d)", len(groups), pagination.Total)
	}
}

func TestDeleteItemGroupRefusedWhileReferenced(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "MEN'S WEAR", "MW")
	mustCreateItem(t, svc, "MH40", group.ID, 42)

	if err := svc.DeleteItemGroup(adminCtx(), group.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting referenced group, got %v", err)
	}
	if _, err := svc.GetItemGroup(adminCtx(), group.ID); err != nil {
		t.Fatalf("group should survive refused delete: %v", err)
	}
}

func TestCreateItemDerivesNameFromGroup(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "BOY'S SHORT PANT", "BTS")
	item := mustCreateItem(t, svc, "BTS140", group.ID, 10)

	if item.Name != "BOY'S SHORT PANT" {
		t.Fatalf("expected item name copied from group, got %q", item.Name)
	}
	if _, err := svc.CreateItem(adminCtx(), domain.ItemCreateRequest{ItemCode: "BTS140", ItemGroupID: group.ID}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate error for reused item code, got %v", err)
	}
}

func TestLookupFoldsLedger(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "BOY'S POLO SHIRT", "BPS")
	item := mustCreateItem(t, svc, "BPS30", group.ID, 0)

	t1 := time.Now().UTC().Add(-2 * time.Hour)
	t2 := t1.Add(time.Hour)
	if _, err := svc.CreateStockEntry(adminCtx(), domain.StockEntryCreateRequest{
		ItemID: item.ID, Type: domain.EntryTypePurchase, Quantity: 100, Unit: "pcs", Rate: 23, EntryDate: &t1,
	}); err != nil {
		t.Fatalf("purchase entry: %v", err)
	}
	if _, err := svc.CreateStockEntry(adminCtx(), domain.StockEntryCreateRequest{
		ItemID: item.ID, Type: domain.EntryTypeSale, Quantity: 30, Unit: "pcs", Rate: 23, EntryDate: &t2,
	}); err != nil {
		t.Fatalf("sale entry: %v", err)
	}

	product, err := svc.LookupBarcode(context.Background(), "BPS30")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if product.InStock != 70 {
		t.Fatalf("expected stock 70, got %v", product.InStock)
	}
	if product.Price != 23 {
		t.Fatalf("expected price 23 from latest purchase, got %v", product.Price)
	}
}

func TestFoldIsOrderIndependent(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "MEN'S WEAR", "MW")
	item := mustCreateItem(t, svc, "MH40", group.ID, 42)

	// Same ledger written in reverse chronological order.
	base := time.Now().UTC().Add(-24 * time.Hour)
	entries := []struct {
		typ string
		qty float64
		at  time.Duration
	}{
		{domain.EntryTypeReturn, 5, 3 * time.Hour},
		{domain.EntryTypePurchase, 50, 1 * time.Hour},
		{domain.EntryTypeSale, 20, 2 * time.Hour},
		{domain.EntryTypeAdjustment, 10, 4 * time.Hour},
	}
	for _, e := range entries {
		at := base.Add(e.at)
		if _, err := svc.CreateStockEntry(adminCtx(), domain.StockEntryCreateRequest{
			ItemID: item.ID, Type: e.typ, Quantity: e.qty, Unit: "pcs", Rate: 42, EntryDate: &at,
		}); err != nil {
			t.Fatalf("entry %s: %v", e.typ, err)
		}
	}

	product, err := svc.LookupBarcode(context.Background(), "MH40")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	// 50 + 10 - 20 - 5 regardless of insertion order.
	if product.InStock != 35 {
		t.Fatalf("expected stock 35, got %v", product.InStock)
	}
}

func TestLookupFallsBackWithoutLedger(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "BOY'S POLO SHIRT", "BPS")
	mustCreateItem(t, svc, "BPS18", group.ID, 28)

	product, err := svc.LookupBarcode(context.Background(), "BPS18")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if product.InStock != 10 {
		t.Fatalf("expected fallback stock 10, got %v", product.InStock)
	}
	if product.Price != 28 {
		t.Fatalf("expected stored item rate 28, got %v", product.Price)
	}
}

func TestLookupSubstringFallback(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "BOY'S SHORT PANT", "BTS")
	mustCreateItem(t, svc, "BTS128", group.ID, 12)

	product, err := svc.LookupBarcode(context.Background(), "S128")
	if err != nil {
		t.Fatalf("substring lookup: %v", err)
	}
	if product.Barcode != "BTS128" {
		t.Fatalf("expected BTS128, got %q", product.Barcode)
	}

	if _, err := svc.LookupBarcode(context.Background(), "NOPE999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
}

func TestCreateTransactionWritesOutbox(t *testing.T) {
	svc, repo := newTestService()

	group := mustCreateGroup(t, svc, "BOY'S POLO SHIRT", "BPS")
	item := mustCreateItem(t, svc, "BPS30", group.ID, 23)
	at := time.Now().UTC().Add(-time.Hour)
	if _, err := svc.CreateStockEntry(adminCtx(), domain.StockEntryCreateRequest{
		ItemID: item.ID, Type: domain.EntryTypePurchase, Quantity: 100, Unit: "pcs", Rate: 23, EntryDate: &at,
	}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	trx, err := svc.CreateTransaction(context.Background(), domain.TransactionCreateRequest{
		Items: []domain.TransactionItemInput{
			{ProductID: item.ID, Name: item.Name, Price: 5, Quantity: 2, SKU: item.ItemCode},
		},
		PaymentMethod: "cash",
		Total:         10,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if !strings.HasPrefix(trx.ID, "TX-") {
		t.Fatalf("expected TX- receipt id, got %q", trx.ID)
	}
	if trx.Status != domain.TxStatusCompleted {
		t.Fatalf("expected completed status, got %q", trx.Status)
	}
	if len(trx.Items) != 1 {
		t.Fatalf("expected 1 line item, got %d", len(trx.Items))
	}

	pending, err := repo.CountPendingOutbox(context.Background(), trx.ID)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending outbox row, got %d", pending)
	}

	// The ledger is untouched until the worker runs.
	product, err := svc.LookupBarcode(context.Background(), "BPS30")
	if err != nil {
		t.Fatalf("lookup before worker: %v", err)
	}
	if product.InStock != 100 {
		t.Fatalf("expected stock 100 before worker pass, got %v", product.InStock)
	}

	worker := outbox.NewWorker(repo, nil)
	worker.ProcessOnce(context.Background())

	pending, err = repo.CountPendingOutbox(context.Background(), trx.ID)
	if err != nil {
		t.Fatalf("count pending after worker: %v", err)
	}
	if pending != 0 {
		t.Fatalf("expected no pending outbox rows after worker pass, got %d", pending)
	}

	product, err = svc.LookupBarcode(context.Background(), "BPS30")
	if err != nil {
		t.Fatalf("lookup after worker: %v", err)
	}
	if product.InStock != 98 {
		t.Fatalf("expected stock 98 after sale applied, got %v", product.InStock)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	svc, _ := newTestService()

	cases := []domain.TransactionCreateRequest{
		{PaymentMethod: "CASH", Total: 10},
		{Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}, PaymentMethod: "BITCOIN", Total: 10},
		{Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: 1}}, PaymentMethod: "CASH", Total: 0},
		{Items: []domain.TransactionItemInput{{ProductID: "p1", Quantity: -1}}, PaymentMethod: "CASH", Total: 10},
	}
	for i, req := range cases {
		if _, err := svc.CreateTransaction(context.Background(), req); !errors.Is(err, store.ErrInvalid) {
			t.Fatalf("case %d: expected invalid error, got %v", i, err)
		}
	}
}

func TestCreateMovementNormalizesNegativeQuantity(t *testing.T) {
	svc, _ := newTestService()

	group := mustCreateGroup(t, svc, "MEN'S WEAR", "MW")
	item := mustCreateItem(t, svc, "MH40", group.ID, 42)

	movement, err := svc.CreateMovement(context.Background(), domain.StockMovementRequest{
		ProductID: item.ID,
		Quantity:  -5,
		Type:      domain.EntryTypeSale,
	})
	if err != nil {
		t.Fatalf("create movement: %v", err)
	}
	if movement.Quantity != 5 {
		t.Fatalf("expected normalized quantity 5, got %v", movement.Quantity)
	}
	if movement.Type != domain.EntryTypeSale {
		t.Fatalf("expected sale type, got %q", movement.Type)
	}

	if _, err := svc.CreateMovement(context.Background(), domain.StockMovementRequest{
		ProductID: item.ID, Quantity: 5, Type: "teleport",
	}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid error for unknown type, got %v", err)
	}
}

func TestListItemGroupsPagination(t *testing.T) {
	svc, _ := newTestService()

	for i := 0; i < 25; i++ {
		mustCreateGroup(t, svc, fmt.Sprintf("GROUP %02d", i), fmt.Sprintf("G%02d", i))
	}

	groups, pagination, err := svc.ListItemGroups(context.Background(), store.ListQuery{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(groups) != 10 {
		t.Fatalf("expected 10 rows on page 2, got %d", len(groups))
	}
	if pagination.TotalPages != 3 {
		t.Fatalf("expected 3 total pages, got %d", pagination.TotalPages)
	}
	if pagination.Total != 25 {
		t.Fatalf("expected total 25, got %d", pagination.Total)
	}

	groups, _, err = svc.ListItemGroups(context.Background(), store.ListQuery{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(groups) != 5 {
		t.Fatalf("expected 5 rows on page 3, got %d", len(groups))
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc, _ := newTestService()

	cashier := WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
	if _, err := svc.CreateItemGroup(cashier, domain.ItemGroupCreateRequest{Name: "X", Code: "X"}); err == nil {
		t.Fatalf("expected cashier item group create to be rejected")
	}
	if _, err := svc.CreateStockEntry(cashier, domain.StockEntryCreateRequest{ItemID: "x", Quantity: 1, Unit: "pcs"}); err == nil {
		t.Fatalf("expected cashier stock entry create to be rejected")
	}
}
