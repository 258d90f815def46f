package service

import (
	"context"
	"fmt"
	"strings"

	"tokopos/backend/internal/domain"
)

// 58mm thermal printers fit 32 characters per line.
const receiptWidth = 32

var defaultBusinessInfo = domain.BusinessInfo{
	Name:    "SNS Store",
	Address: "123 Main St, City, Country",
	Phone:   "+1 (555) 123-4567",
	Email:   "info@snsstore.com",
}

// AvailablePrinters returns the printers a receipt can be routed to. Printer
// discovery is simulated; the names match the 58mm devices the POS ships with.
func (s *Service) AvailablePrinters(_ context.Context) []string {
	return []string{
		"POS Printer (58mm)",
		"Thermal Receipt Printer (58mm)",
		"Cashier Printer (58mm)",
		"Office Printer",
	}
}

// PrintReceipt renders the receipt for a transaction and reports the printer
// it was routed to. Actual printing is simulated; the rendered text is
// returned so the client can preview or re-print it.
func (s *Service) PrintReceipt(ctx context.Context, req domain.PrintReceiptRequest) (domain.PrintReceiptResponse, error) {
	trx, err := s.GetTransaction(ctx, req.TransactionID)
	if err != nil {
		return domain.PrintReceiptResponse{}, err
	}

	info := defaultBusinessInfo
	if req.BusinessName != "" {
		info.Name = req.BusinessName
	}
	if req.BusinessAddress != "" {
		info.Address = req.BusinessAddress
	}
	if req.BusinessPhone != "" {
		info.Phone = req.BusinessPhone
	}
	if req.BusinessEmail != "" {
		info.Email = req.BusinessEmail
	}

	printer := req.PrinterName
	if printer == "" {
		printer = s.AvailablePrinters(ctx)[0]
	}

	return domain.PrintReceiptResponse{
		Success: true,
		Printer: printer,
		Receipt: renderReceipt(trx, info),
	}, nil
}

func renderReceipt(trx domain.Transaction, info domain.BusinessInfo) string {
	divider := strings.Repeat("-", receiptWidth)
	lines := []string{
		centerText(info.Name, receiptWidth),
		centerText(info.Address, receiptWidth),
		centerText(info.Phone, receiptWidth),
		centerText(info.Email, receiptWidth),
		divider,
		"Receipt: " + trx.ID,
		"Date: " + trx.Date.Format("01/02/2006"),
		"Time: " + trx.Date.Format("03:04 PM"),
		divider,
		"ITEM                  QTY   PRICE",
		divider,
	}

	for _, item := range trx.Items {
		name := truncateText(item.Name, 20)
		qty := fmt.Sprintf("%3.0f", item.Quantity)
		amount := fmt.Sprintf("%9s", fmt.Sprintf("AED %.2f", item.Price*item.Quantity))
		lines = append(lines, fmt.Sprintf("%s %s %s", name, qty, amount))
	}

	lines = append(lines,
		divider,
		fmt.Sprintf("SUBTOTAL:                  AED %.2f", trx.Total),
		"TAX (0%):                  AED 0.00",
		fmt.Sprintf("TOTAL:                     AED %.2f", trx.Total),
		fmt.Sprintf("PAYMENT: %-15s AED %.2f", trx.PaymentMethod, trx.Total),
		divider,
		centerText("Thank you for your purchase!", receiptWidth),
		centerText("Please come again", receiptWidth),
	)

	return strings.Join(lines, "\n")
}

func centerText(text string, width int) string {
	if len(text) >= width {
		return text[:width]
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}

func truncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text + strings.Repeat(" ", maxLength-len(text))
	}
	return text[:maxLength-3] + "..."
}
