package payment

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/money"
)

// RepositoryPort defines data access methods for payments.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	ListPayments(ctx context.Context, partnerID int64) ([]Payment, error)
	ListPaymentAllocations(ctx context.Context, paymentID int64) ([]Allocation, error)
	ListInvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error)
}

// TxRepository exposes the operations that must run inside one
// transaction.
type TxRepository interface {
	// GetInvoiceForUpdate locks the invoice row, serializing
	// concurrent allocations against the same invoice so both cannot
	// pass the overpayment check on stale balances.
	GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (*InvoiceRef, error)
	ListInvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertAllocation(ctx context.Context, a Allocation) error
	DeletePayment(ctx context.Context, paymentID int64) error
	DeleteAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error)
	UpdateInvoicePaymentState(ctx context.Context, invoiceID int64, state PaymentState) error
}

// AllocationInput is one requested (invoice, amount) pair.
type AllocationInput struct {
	InvoiceID int64
	Amount    decimal.Decimal
}

// CreatePaymentInput describes a payment to record.
type CreatePaymentInput struct {
	Reference   string
	PartnerID   int64
	Method      string
	Note        string
	PaidAt      time.Time
	CreatedBy   int64
	OnAccount   bool
	Amount      decimal.Decimal
	AdvanceUsed decimal.Decimal
	Allocations []AllocationInput
}

// Service handles payment recording and invoice settlement state.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// RegisterPayment records a payment. Allocated payments validate every
// allocation line independently; one failing line aborts the whole
// payment. On-account payments skip allocation entirely and only feed
// the partner's advance balance; they are never matched against an
// invoice at creation time, and advances are never netted against new
// invoices automatically.
func (s *Service) RegisterPayment(ctx context.Context, input CreatePaymentInput) (*Payment, []AllocationResult, error) {
	if input.PartnerID == 0 {
		return nil, nil, &InvalidInvoiceError{Reason: "partner required"}
	}
	if input.AdvanceUsed.IsNegative() {
		return nil, nil, ErrNegativeAdvanceUsed
	}

	if input.OnAccount {
		return s.registerOnAccount(ctx, input)
	}
	return s.registerAllocated(ctx, input)
}

func (s *Service) registerOnAccount(ctx context.Context, input CreatePaymentInput) (*Payment, []AllocationResult, error) {
	if len(input.Allocations) > 0 {
		return nil, nil, ErrOnAccountWithAllocations
	}
	if !input.Amount.IsPositive() {
		return nil, nil, ErrNonPositiveAmount
	}

	p := newPayment(input, money.Round(input.Amount))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = id
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &p, nil, nil
}

func (s *Service) registerAllocated(ctx context.Context, input CreatePaymentInput) (*Payment, []AllocationResult, error) {
	if len(input.Allocations) == 0 {
		return nil, nil, ErrNoAllocations
	}
	total := decimal.Zero
	for _, a := range input.Allocations {
		if !a.Amount.IsPositive() {
			return nil, nil, ErrNonPositiveAmount
		}
		total = total.Add(a.Amount)
	}

	// Lock invoices in a stable order to avoid deadlocks between
	// payments covering overlapping invoice sets.
	allocations := make([]AllocationInput, len(input.Allocations))
	copy(allocations, input.Allocations)
	sort.Slice(allocations, func(i, j int) bool {
		return allocations[i].InvoiceID < allocations[j].InvoiceID
	})

	p := newPayment(input, money.Round(total))
	var results []AllocationResult

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		paymentID, err := tx.InsertPayment(ctx, p)
		if err != nil {
			return err
		}
		p.ID = paymentID

		for _, alloc := range allocations {
			invoice, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			prior, err := tx.ListInvoiceAllocations(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			result, err := Allocate(*invoice, prior, alloc.Amount)
			if err != nil {
				return err
			}
			if err := tx.InsertAllocation(ctx, Allocation{
				PaymentID: paymentID,
				InvoiceID: alloc.InvoiceID,
				Amount:    alloc.Amount,
			}); err != nil {
				return err
			}
			state := StateFor(result.PaidBefore.Add(result.PaidNow), invoice.Total)
			if err := tx.UpdateInvoicePaymentState(ctx, alloc.InvoiceID, state); err != nil {
				return err
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &p, results, nil
}

// DeletePayment removes a payment and its allocations, then recomputes
// the payment state of every affected invoice from the surviving
// allocation history. Payments may be deleted out of order, so the
// recompute scans all remaining allocations rather than reversing only
// the deleted amounts.
func (s *Service) DeletePayment(ctx context.Context, paymentID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		removed, err := tx.DeleteAllocationsByPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := tx.DeletePayment(ctx, paymentID); err != nil {
			return err
		}

		seen := make(map[int64]bool)
		for _, alloc := range removed {
			if seen[alloc.InvoiceID] {
				continue
			}
			seen[alloc.InvoiceID] = true

			invoice, err := tx.GetInvoiceForUpdate(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			remaining, err := tx.ListInvoiceAllocations(ctx, alloc.InvoiceID)
			if err != nil {
				return err
			}
			totalPaid := decimal.Zero
			for _, a := range remaining {
				totalPaid = totalPaid.Add(a.Amount)
			}
			state := StateFor(money.Round(totalPaid), invoice.Total)
			if err := tx.UpdateInvoicePaymentState(ctx, alloc.InvoiceID, state); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments returns a partner's payments.
func (s *Service) ListPayments(ctx context.Context, partnerID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, partnerID)
}

// ListPaymentAllocations returns the allocations of one payment.
func (s *Service) ListPaymentAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	return s.repo.ListPaymentAllocations(ctx, paymentID)
}

// InvoicePaidTotal sums the allocations recorded against an invoice.
func (s *Service) InvoicePaidTotal(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	allocations, err := s.repo.ListInvoiceAllocations(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	return money.Round(total), nil
}

func newPayment(input CreatePaymentInput, amount decimal.Decimal) Payment {
	reference := input.Reference
	if reference == "" {
		reference = "PAY-" + uuid.NewString()[:8]
	}
	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}
	return Payment{
		Reference:   reference,
		PartnerID:   input.PartnerID,
		Amount:      amount,
		AdvanceUsed: money.Round(input.AdvanceUsed),
		OnAccount:   input.OnAccount,
		Method:      input.Method,
		Note:        input.Note,
		PaidAt:      paidAt,
		CreatedBy:   input.CreatedBy,
	}
}
