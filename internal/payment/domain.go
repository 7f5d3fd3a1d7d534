package payment

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState enumerates the payment-side status of an invoice,
// recomputed from the full allocation history on every change.
type PaymentState string

const (
	// StateUnpaid means no payment has been recorded yet.
	StateUnpaid PaymentState = "DRAFT"
	// StatePartial means the invoice is partially settled.
	StatePartial PaymentState = "PARTIALLY_PAID"
	// StatePaid means the invoice is settled within tolerance.
	StatePaid PaymentState = "PAID"
)

// Payment is a disbursement or receipt event, either allocated across
// one or more invoices or recorded on account as an unallocated
// advance.
type Payment struct {
	ID        int64
	Reference string
	PartnerID int64
	// Amount is the sum of allocation amounts, or the advance amount
	// for an on-account payment.
	Amount decimal.Decimal
	// AdvanceUsed records the portion of a pre-existing advance
	// balance this payment consumes, tracked apart from Amount to
	// avoid double counting.
	AdvanceUsed decimal.Decimal
	OnAccount   bool
	Method      string
	Note        string
	PaidAt      time.Time
	CreatedBy   int64
	CreatedAt   time.Time
}

// Allocation links one payment to one invoice.
type Allocation struct {
	ID        int64
	PaymentID int64
	InvoiceID int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// AllocationResult is the outcome of allocating an amount against an
// invoice.
type AllocationResult struct {
	InvoiceID        int64
	InvoiceTotal     decimal.Decimal
	PaidBefore       decimal.Decimal
	PaidNow          decimal.Decimal
	RemainingBalance decimal.Decimal
}

// InvoiceRef is the invoice view the payment module operates on.
type InvoiceRef struct {
	ID           int64
	Number       string
	PartnerID    int64
	Total        decimal.Decimal
	Cancelled    bool
	PaymentState PaymentState
}

// OverpaymentError reports a requested amount exceeding the remaining
// balance beyond tolerance.
type OverpaymentError struct {
	InvoiceID int64
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment: requested %s exceeds remaining balance %s on invoice %d",
		e.Requested, e.Remaining, e.InvoiceID)
}

// InvalidInvoiceError reports an invoice that cannot receive a
// payment: non-existent, cancelled, or with a non-positive total.
type InvalidInvoiceError struct {
	InvoiceID int64
	Reason    string
}

func (e *InvalidInvoiceError) Error() string {
	return fmt.Sprintf("payment: invoice %d cannot receive payment: %s", e.InvoiceID, e.Reason)
}

// ErrPaymentNotFound indicates the payment does not exist.
var ErrPaymentNotFound = errors.New("payment: not found")

// ErrNoAllocations indicates an allocated payment without allocation
// lines.
var ErrNoAllocations = errors.New("payment: at least one allocation required")

// ErrOnAccountWithAllocations indicates an on-account payment carrying
// allocation lines.
var ErrOnAccountWithAllocations = errors.New("payment: on-account payment must not allocate invoices")

// ErrNonPositiveAmount indicates a zero or negative payment amount.
var ErrNonPositiveAmount = errors.New("payment: amount must be positive")

// ErrNegativeAdvanceUsed indicates a negative advance consumption.
var ErrNegativeAdvanceUsed = errors.New("payment: advance used must be >= 0")
