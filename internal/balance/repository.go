package balance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads report rows from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func invoiceTypes(role Role) []string {
	if role == RoleSupplier {
		return []string{"PURCHASE_INVOICE"}
	}
	return []string{"SALES_INVOICE", "CREDIT_NOTE"}
}

// ListPartnerInvoices returns every invoice and credit note of one
// partner for the given role, with the allocated-paid amount joined in.
// Cancelled documents are returned with their flag set so the reporter
// excludes them, keeping the exclusion rule in one place.
func (r *Repository) ListPartnerInvoices(ctx context.Context, partnerID int64, role Role) ([]InvoiceRow, error) {
	const query = `
		SELECT d.id,
		       d.number,
		       d.total_incl_tax,
		       COALESCE(SUM(pa.amount), 0) AS paid,
		       d.status = 'CANCELLED' AS cancelled,
		       d.issue_date,
		       COALESCE(d.payment_terms, '') AS payment_terms
		FROM documents d
		LEFT JOIN payment_allocations pa ON pa.invoice_id = d.id
		WHERE d.partner_id = $1
		  AND d.type = ANY($2)
		  AND d.status <> 'DRAFT'
		GROUP BY d.id
		ORDER BY d.issue_date, d.id`

	rows, err := r.pool.Query(ctx, query, partnerID, invoiceTypes(role))
	if err != nil {
		return nil, fmt.Errorf("balance: list invoices: %w", err)
	}
	defer rows.Close()

	var out []InvoiceRow
	for rows.Next() {
		var row InvoiceRow
		if err := rows.Scan(&row.ID, &row.Number, &row.Total, &row.Paid, &row.Cancelled, &row.IssueDate, &row.PaymentTerms); err != nil {
			return nil, fmt.Errorf("balance: scan invoice: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListPartnerPayments returns every payment of one partner. Payments
// are not typed per role; the partner itself is either a customer or a
// supplier.
func (r *Repository) ListPartnerPayments(ctx context.Context, partnerID int64, _ Role) ([]PaymentRow, error) {
	const query = `
		SELECT id, amount, advance_used, on_account
		FROM payments
		WHERE partner_id = $1
		ORDER BY id`

	rows, err := r.pool.Query(ctx, query, partnerID)
	if err != nil {
		return nil, fmt.Errorf("balance: list payments: %w", err)
	}
	defer rows.Close()

	var out []PaymentRow
	for rows.Next() {
		var row PaymentRow
		if err := rows.Scan(&row.ID, &row.Amount, &row.AdvanceUsed, &row.OnAccount); err != nil {
			return nil, fmt.Errorf("balance: scan payment: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListActivePartnerIDs returns the partners holding at least one
// non-draft document for the role, for snapshot warm-up.
func (r *Repository) ListActivePartnerIDs(ctx context.Context, role Role) ([]int64, error) {
	const query = `
		SELECT DISTINCT partner_id
		FROM documents
		WHERE type = ANY($1) AND status <> 'DRAFT'
		ORDER BY partner_id`

	rows, err := r.pool.Query(ctx, query, invoiceTypes(role))
	if err != nil {
		return nil, fmt.Errorf("balance: list active partners: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("balance: scan partner id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
