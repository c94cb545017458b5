package icount

import (
	"context"
	"time"

	"github.com/printflowhq/printshop_backend/models"
)

// IssueInvoice mirrors a freshly numbered invoice into iCount as a
// doc/create call. The caller decides when; this only shapes the payload.
func (c *Client) IssueInvoice(ctx context.Context, inv models.Invoice) error {
	issuedAt := time.Now()
	if inv.IssuedAt != nil {
		issuedAt = *inv.IssuedAt
	}

	params := map[string]any{
		"doctype":     "invoice",
		"client_name": inv.CustomerName,
		"issue_date":  issuedAt.Format("2006-01-02"),
		"currency":    "ILS",
		"totalsum":    inv.TotalWithVat,
		"subtotal":    inv.Subtotal,
		"vat":         inv.VatAmount,
		"reference":   inv.ID,
	}
	if inv.InvoiceNumber != nil {
		params["docnum"] = *inv.InvoiceNumber
	}

	_, err := c.Do(ctx, "doc/create", params)
	return err
}
