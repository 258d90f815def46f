package service

import (
	"strings"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

func TestRenderReceiptLayout(t *testing.T) {
	trx := domain.Transaction{
		ID:            "TX-123456",
		Date:          time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC),
		Total:         46,
		PaymentMethod: "CASH",
		Status:        domain.TxStatusCompleted,
		Items: []domain.TransactionItem{
			{Name: "BOY'S POLO SHIRT", Price: 23, Quantity: 2},
		},
	}

	receipt := renderReceipt(trx, defaultBusinessInfo)
	lines := strings.Split(receipt, "\n")

	if !strings.Contains(lines[0], "SNS Store") {
		t.Fatalf("expected business name in header, got %q", lines[0])
	}
	if !strings.Contains(receipt, "Receipt: TX-123456") {
		t.Fatalf("receipt id missing:\n%s", receipt)
	}
	if !strings.Contains(receipt, "TOTAL:                     AED 46.00") {
		t.Fatalf("total line missing:\n%s", receipt)
	}
	if !strings.Contains(receipt, "TAX (0%):                  AED 0.00") {
		t.Fatalf("tax line missing:\n%s", receipt)
	}
	if !strings.Contains(receipt, "Thank you for your purchase!") {
		t.Fatalf("footer missing:\n%s", receipt)
	}
	if got := strings.Repeat("-", receiptWidth); !strings.Contains(receipt, got) {
		t.Fatalf("expected %d-column dividers:\n%s", receiptWidth, receipt)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("SHORT", 10); got != "SHORT     " {
		t.Fatalf("expected padded name, got %q", got)
	}
	if got := truncateText("A VERY LONG PRODUCT NAME INDEED", 20); got != "A VERY LONG PRODU..." {
		t.Fatalf("expected truncated name, got %q", got)
	}
}
