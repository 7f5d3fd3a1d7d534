package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestcom-app/gestcom/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetPayment returns one payment by id.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	const query = `
		SELECT id, reference, partner_id, amount, advance_used, on_account, method, note, paid_at, created_by, created_at
		FROM payments
		WHERE id = $1`

	var p Payment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Reference, &p.PartnerID, &p.Amount, &p.AdvanceUsed,
		&p.OnAccount, &p.Method, &p.Note, &p.PaidAt, &p.CreatedBy, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPayments returns payments, optionally filtered by partner.
func (r *Repository) ListPayments(ctx context.Context, partnerID int64) ([]Payment, error) {
	query := `
		SELECT id, reference, partner_id, amount, advance_used, on_account, method, note, paid_at, created_by, created_at
		FROM payments`
	args := []any{}
	if partnerID > 0 {
		query += ` WHERE partner_id = $1`
		args = append(args, partnerID)
	}
	query += ` ORDER BY paid_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.Reference, &p.PartnerID, &p.Amount, &p.AdvanceUsed,
			&p.OnAccount, &p.Method, &p.Note, &p.PaidAt, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListPaymentAllocations returns the allocations of one payment.
func (r *Repository) ListPaymentAllocations(ctx context.Context, paymentID int64) ([]Allocation, error) {
	return scanAllocations(r.pool.Query(ctx, `
		SELECT id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY id`, paymentID))
}

// ListInvoiceAllocations returns the allocations recorded against an
// invoice across all payments.
func (r *Repository) ListInvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return scanAllocations(r.pool.Query(ctx, `
		SELECT id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE invoice_id = $1
		ORDER BY id`, invoiceID))
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, invoiceID int64) (*InvoiceRef, error) {
	const query = `
		SELECT id, number, partner_id, total_incl_tax, status = 'CANCELLED', payment_state
		FROM documents
		WHERE id = $1 AND type IN ('SALES_INVOICE', 'PURCHASE_INVOICE')
		FOR UPDATE`

	var ref InvoiceRef
	err := t.tx.QueryRow(ctx, query, invoiceID).Scan(
		&ref.ID, &ref.Number, &ref.PartnerID, &ref.Total, &ref.Cancelled, &ref.PaymentState,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &InvalidInvoiceError{InvoiceID: invoiceID, Reason: "not found"}
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (t *txRepo) ListInvoiceAllocations(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return scanAllocations(t.tx.Query(ctx, `
		SELECT id, payment_id, invoice_id, amount, created_at
		FROM payment_allocations
		WHERE invoice_id = $1
		ORDER BY id`, invoiceID))
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	const query = `
		INSERT INTO payments (reference, partner_id, amount, advance_used, on_account, method, note, paid_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, query,
		p.Reference, p.PartnerID, p.Amount, p.AdvanceUsed, p.OnAccount,
		p.Method, p.Note, p.PaidAt, p.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) InsertAllocation(ctx context.Context, a Allocation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payment_allocations (payment_id, invoice_id, amount, created_at)
		VALUES ($1, $2, $3, NOW())`,
		a.PaymentID, a.InvoiceID, a.Amount,
	)
	return err
}

func (t *txRepo) DeletePayment(ctx context.Context, paymentID int64) error {
	result, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, paymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (t *txRepo) DeleteAllocationsByPayment(ctx context.Context, paymentID int64) ([]Allocation, error) {
	return scanAllocations(t.tx.Query(ctx, `
		DELETE FROM payment_allocations
		WHERE payment_id = $1
		RETURNING id, payment_id, invoice_id, amount, created_at`, paymentID))
}

func (t *txRepo) UpdateInvoicePaymentState(ctx context.Context, invoiceID int64, state PaymentState) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE documents SET payment_state = $2, updated_at = NOW() WHERE id = $1`,
		invoiceID, state,
	)
	return err
}

func scanAllocations(rows pgx.Rows, err error) ([]Allocation, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InvoiceID, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
