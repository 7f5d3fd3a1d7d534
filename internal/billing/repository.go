package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestcom-app/gestcom/internal/platform/db"
)

// Repository implements RepositoryPort on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const documentColumns = `id, number, type, partner_id, currency, COALESCE(payment_terms, ''), status,
	global_discount_pct, fodec_enabled, fodec_rate_pct, stamp_enabled, stamp_amount,
	total_excl_tax, total_fodec, total_tax, total_stamp, total_incl_tax,
	COALESCE(source_id, 0), issue_date, validated_at, validated_by, created_by, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.Number, &doc.Type, &doc.PartnerID, &doc.Currency, &doc.PaymentTerms, &doc.Status,
		&doc.Modifiers.GlobalDiscountPct, &doc.Modifiers.FodecEnabled, &doc.Modifiers.FodecRatePct,
		&doc.Modifiers.StampEnabled, &doc.Modifiers.StampAmount,
		&doc.Totals.TotalExclTax, &doc.Totals.TotalFodec, &doc.Totals.TotalTax,
		&doc.Totals.TotalStamp, &doc.Totals.TotalInclTax,
		&doc.SourceID, &doc.IssuedAt, &doc.ValidatedAt, &doc.ValidatedBy,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: scan document: %w", err)
	}
	return &doc, nil
}

// GetDocument returns one document header.
func (r *Repository) GetDocument(ctx context.Context, id int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.pool.QueryRow(ctx, query, id))
}

// GetDocumentBySource returns the document converted from sourceID, if
// any.
func (r *Repository) GetDocumentBySource(ctx context.Context, sourceID int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE source_id = $1 AND status <> 'CANCELLED'`
	return scanDocument(r.pool.QueryRow(ctx, query, sourceID))
}

// GetDocumentWithLines returns a document and its lines.
func (r *Repository) GetDocumentWithLines(ctx context.Context, id int64) (*DocumentWithLines, error) {
	doc, err := r.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	const lineQuery = `
		SELECT id, document_id, product_id, description, quantity, unit_price,
		       discount_pct, tax_pct, total_excl_tax
		FROM document_lines
		WHERE document_id = $1
		ORDER BY id`
	rows, err := r.pool.Query(ctx, lineQuery, id)
	if err != nil {
		return nil, fmt.Errorf("billing: list lines: %w", err)
	}
	defer rows.Close()

	result := &DocumentWithLines{Document: *doc}
	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.ProductID, &line.Description,
			&line.Quantity, &line.UnitPrice, &line.DiscountPct, &line.TaxPct, &line.TotalExclTax); err != nil {
			return nil, fmt.Errorf("billing: scan line: %w", err)
		}
		result.Lines = append(result.Lines, line)
	}
	return result, rows.Err()
}

// ListDocuments returns documents matching the filter, newest first.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, filter.Type)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.PartnerID != 0 {
		query += fmt.Sprintf(" AND partner_id = $%d", idx)
		args = append(args, filter.PartnerID)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY issue_date DESC, id DESC LIMIT $%d", idx)
	args = append(args, filter.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// NextSequence reserves the next document number for a type and year.
func (r *Repository) NextSequence(ctx context.Context, docType DocumentType, year int) (int64, error) {
	const query = `
		INSERT INTO document_sequences (doc_type, year, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, year)
		DO UPDATE SET last_value = document_sequences.last_value + 1
		RETURNING last_value`
	var seq int64
	if err := r.pool.QueryRow(ctx, query, docType, year).Scan(&seq); err != nil {
		return 0, fmt.Errorf("billing: next sequence: %w", err)
	}
	return seq, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	const query = `
		INSERT INTO documents (
			number, type, partner_id, currency, payment_terms, status,
			global_discount_pct, fodec_enabled, fodec_rate_pct, stamp_enabled, stamp_amount,
			total_excl_tax, total_fodec, total_tax, total_stamp, total_incl_tax,
			source_id, issue_date, validated_at, validated_by, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NULLIF($17,0),$18,$19,$20,$21)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		doc.Number, doc.Type, doc.PartnerID, doc.Currency, doc.PaymentTerms, doc.Status,
		doc.Modifiers.GlobalDiscountPct, doc.Modifiers.FodecEnabled, doc.Modifiers.FodecRatePct,
		doc.Modifiers.StampEnabled, doc.Modifiers.StampAmount,
		doc.Totals.TotalExclTax, doc.Totals.TotalFodec, doc.Totals.TotalTax,
		doc.Totals.TotalStamp, doc.Totals.TotalInclTax,
		doc.SourceID, doc.IssuedAt, doc.ValidatedAt, doc.ValidatedBy, doc.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert document: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	const query = `
		INSERT INTO document_lines (document_id, product_id, description, quantity,
			unit_price, discount_pct, tax_pct, total_excl_tax)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		line.DocumentID, line.ProductID, line.Description, line.Quantity,
		line.UnitPrice, line.DiscountPct, line.TaxPct, line.TotalExclTax,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert line: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateDocument(ctx context.Context, doc Document) error {
	const query = `
		UPDATE documents SET
			payment_terms = $2,
			global_discount_pct = $3, fodec_enabled = $4, fodec_rate_pct = $5,
			stamp_enabled = $6, stamp_amount = $7,
			total_excl_tax = $8, total_fodec = $9, total_tax = $10,
			total_stamp = $11, total_incl_tax = $12,
			updated_at = now()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query,
		doc.ID, doc.PaymentTerms,
		doc.Modifiers.GlobalDiscountPct, doc.Modifiers.FodecEnabled, doc.Modifiers.FodecRatePct,
		doc.Modifiers.StampEnabled, doc.Modifiers.StampAmount,
		doc.Totals.TotalExclTax, doc.Totals.TotalFodec, doc.Totals.TotalTax,
		doc.Totals.TotalStamp, doc.Totals.TotalInclTax,
	)
	if err != nil {
		return fmt.Errorf("billing: update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (t *txRepo) DeleteLines(ctx context.Context, documentID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("billing: delete lines: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status DocumentStatus, validatedAt *time.Time, validatedBy *int64) error {
	const query = `
		UPDATE documents SET
			status = $2,
			validated_at = COALESCE($3, validated_at),
			validated_by = COALESCE($4, validated_by),
			updated_at = now()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, query, id, status, validatedAt, validatedBy)
	if err != nil {
		return fmt.Errorf("billing: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
