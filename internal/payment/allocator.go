package payment

import (
	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/money"
)

// Allocate computes the allocation of a requested amount against an
// invoice given its prior allocation history. Pure: persistence and
// locking are the caller's concern.
//
// The overpayment boundary is inclusive: a request exceeding the
// remaining balance by exactly the monetary tolerance is accepted, so
// rounding drift on the last instalment never blocks settlement.
func Allocate(invoice InvoiceRef, prior []Allocation, requested decimal.Decimal) (AllocationResult, error) {
	if !invoice.Total.IsPositive() {
		return AllocationResult{}, &InvalidInvoiceError{
			InvoiceID: invoice.ID,
			Reason:    "total must be positive",
		}
	}
	if invoice.Cancelled {
		return AllocationResult{}, &InvalidInvoiceError{
			InvoiceID: invoice.ID,
			Reason:    "invoice is cancelled",
		}
	}

	paidBefore := decimal.Zero
	for _, a := range prior {
		paidBefore = paidBefore.Add(a.Amount)
	}
	paidBefore = money.Round(paidBefore)
	remainingBefore := money.Round(invoice.Total.Sub(paidBefore))

	if !money.LessOrEqual(requested, remainingBefore) {
		return AllocationResult{}, &OverpaymentError{
			InvoiceID: invoice.ID,
			Requested: requested,
			Remaining: remainingBefore,
		}
	}

	return AllocationResult{
		InvoiceID:        invoice.ID,
		InvoiceTotal:     invoice.Total,
		PaidBefore:       paidBefore,
		PaidNow:          requested,
		RemainingBalance: money.Max(decimal.Zero, money.Round(remainingBefore.Sub(requested))),
	}, nil
}

// StateFor derives an invoice's payment state from the total paid
// across all its payments. Callers must pass the sum over the full
// payment history, not just the newest payment, since payments may be
// deleted out of order.
func StateFor(totalPaid, invoiceTotal decimal.Decimal) PaymentState {
	switch {
	case totalPaid.GreaterThanOrEqual(invoiceTotal.Sub(money.Epsilon)):
		return StatePaid
	case totalPaid.IsPositive():
		return StatePartial
	default:
		return StateUnpaid
	}
}
