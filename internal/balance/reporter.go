package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/money"
)

// Compute derives a counterparty's position from its full invoice and
// payment history. The same function serves customer and supplier
// reports so both sides of the ledger stay in agreement; the sign
// convention (positive = the counterparty owes us, or we owe them) is
// the caller's role.
//
// Cancelled invoices are excluded from every sum. Credit notes enter
// as invoices with negative totals and are tracked separately by
// absolute value. On-account payments are excluded from totalPaid and
// surface only through the net advance balance.
func Compute(partnerID int64, role Role, asOf time.Time, invoices []InvoiceRow, payments []PaymentRow) CounterpartyBalance {
	if asOf.IsZero() {
		asOf = time.Now().UTC().Truncate(24 * time.Hour)
	}

	buckets := make(map[string]decimal.Decimal, len(BucketLabels))
	for _, label := range BucketLabels {
		buckets[label] = decimal.Zero
	}

	totalInvoiced := decimal.Zero
	totalCreditNotes := decimal.Zero
	totalPaid := decimal.Zero

	for _, inv := range invoices {
		if inv.Cancelled {
			continue
		}
		if inv.IsCreditNote() {
			totalCreditNotes = totalCreditNotes.Add(inv.Total.Abs())
			continue
		}

		totalInvoiced = totalInvoiced.Add(inv.Total)
		totalPaid = totalPaid.Add(inv.Paid)

		remaining := money.Round(inv.Total.Sub(inv.Paid))
		if !remaining.IsPositive() {
			continue
		}
		due := DueDate(inv.IssueDate, inv.PaymentTerms)
		overdue := int(asOf.Sub(due).Hours() / 24)
		label := bucketFor(overdue)
		buckets[label] = buckets[label].Add(remaining)
	}

	onAccount := decimal.Zero
	advanceUsed := decimal.Zero
	for _, p := range payments {
		if p.OnAccount {
			onAccount = onAccount.Add(p.Amount)
		}
		advanceUsed = advanceUsed.Add(p.AdvanceUsed)
	}

	for label := range buckets {
		buckets[label] = money.Round(buckets[label])
	}

	totalInvoiced = money.Round(totalInvoiced)
	totalCreditNotes = money.Round(totalCreditNotes)
	totalPaid = money.Round(totalPaid)

	return CounterpartyBalance{
		PartnerID:         partnerID,
		Role:              role,
		AsOf:              asOf,
		TotalInvoiced:     totalInvoiced,
		TotalCreditNotes:  totalCreditNotes,
		TotalPaid:         totalPaid,
		CurrentBalance:    money.Round(totalInvoiced.Sub(totalCreditNotes).Sub(totalPaid)),
		NetAdvanceBalance: money.Round(onAccount.Sub(advanceUsed)),
		AgingBuckets:      buckets,
	}
}
