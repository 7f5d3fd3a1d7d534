// Package balance derives counterparty balances and aging reports from
// invoice, credit-note and payment history.
package balance

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Role selects which side of the ledger a report covers.
type Role string

// Report roles.
const (
	RoleCustomer Role = "customer"
	RoleSupplier Role = "supplier"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSupplier
}

// Aging bucket labels, ordered from least to most overdue.
const (
	Bucket0To30  = "0-30"
	Bucket31To60 = "31-60"
	Bucket61To90 = "61-90"
	BucketOver90 = ">90"
)

// BucketLabels lists the aging buckets in display order.
var BucketLabels = []string{Bucket0To30, Bucket31To60, Bucket61To90, BucketOver90}

// InvoiceRow is one invoice or credit note feeding the report. Credit
// notes carry a negative total.
type InvoiceRow struct {
	ID           int64
	Number       string
	Total        decimal.Decimal
	Paid         decimal.Decimal
	Cancelled    bool
	IssueDate    time.Time
	PaymentTerms string
}

// IsCreditNote reports whether the row represents a credit note.
func (r InvoiceRow) IsCreditNote() bool {
	return r.Total.IsNegative()
}

// PaymentRow is one payment feeding the report.
type PaymentRow struct {
	ID          int64
	Amount      decimal.Decimal
	AdvanceUsed decimal.Decimal
	OnAccount   bool
}

// CounterpartyBalance is the derived position of one partner. It is
// recomputed wholesale from the input rows and never persisted.
type CounterpartyBalance struct {
	PartnerID         int64                      `json:"partner_id"`
	Role              Role                       `json:"role"`
	AsOf              time.Time                  `json:"as_of"`
	TotalInvoiced     decimal.Decimal            `json:"total_invoiced"`
	TotalCreditNotes  decimal.Decimal            `json:"total_credit_notes"`
	TotalPaid         decimal.Decimal            `json:"total_paid"`
	CurrentBalance    decimal.Decimal            `json:"current_balance"`
	NetAdvanceBalance decimal.Decimal            `json:"net_advance_balance"`
	AgingBuckets      map[string]decimal.Decimal `json:"aging_buckets"`
}

// ErrUnknownRole rejects report requests for anything but customer or
// supplier.
var ErrUnknownRole = errors.New("balance: unknown role")
