package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository provides PostgreSQL backed persistence for movements.
// The uq_stock_movements_source unique constraint on (source_type,
// source_id, product_id) is the serialization backstop for concurrent
// upserts on the same key.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByKey fetches the movement for a natural key.
func (r *Repository) GetByKey(ctx context.Context, key MovementKey) (*Movement, error) {
	const query = `
		SELECT id, source_type, source_id, product_id, quantity, direction, moved_at, created_at, updated_at
		FROM stock_movements
		WHERE source_type = $1 AND source_id = $2 AND product_id = $3`

	var m Movement
	err := r.pool.QueryRow(ctx, query, key.SourceType, key.SourceID, key.ProductID).Scan(
		&m.ID, &m.Key.SourceType, &m.Key.SourceID, &m.Key.ProductID,
		&m.Quantity, &m.Direction, &m.MovedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMovementNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert creates a movement row.
func (r *Repository) Insert(ctx context.Context, m Movement) (int64, error) {
	const query = `
		INSERT INTO stock_movements (source_type, source_id, product_id, quantity, direction, moved_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		m.Key.SourceType, m.Key.SourceID, m.Key.ProductID,
		m.Quantity, m.Direction, m.MovedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_stock_movements_source" {
			return 0, ErrMovementExists
		}
		return 0, err
	}
	return id, nil
}

// UpdateQuantity updates a movement's quantity and date in place.
func (r *Repository) UpdateQuantity(ctx context.Context, id int64, qty decimal.Decimal, movedAt time.Time) error {
	const query = `
		UPDATE stock_movements
		SET quantity = $2, moved_at = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, qty, movedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

// Rekey rewrites a movement's source pointer.
func (r *Repository) Rekey(ctx context.Context, id int64, newKey MovementKey) error {
	const query = `
		UPDATE stock_movements
		SET source_type = $2, source_id = $3, product_id = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, newKey.SourceType, newKey.SourceID, newKey.ProductID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

// ListBySource returns movements for one source document.
func (r *Repository) ListBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	const query = `
		SELECT id, source_type, source_id, product_id, quantity, direction, moved_at, created_at, updated_at
		FROM stock_movements
		WHERE source_type = $1 AND source_id = $2
		ORDER BY product_id`

	rows, err := r.pool.Query(ctx, query, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(
			&m.ID, &m.Key.SourceType, &m.Key.SourceID, &m.Key.ProductID,
			&m.Quantity, &m.Direction, &m.MovedAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// DeleteBySource removes all movements for a source document.
func (r *Repository) DeleteBySource(ctx context.Context, sourceType string, sourceID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM stock_movements WHERE source_type = $1 AND source_id = $2`,
		sourceType, sourceID,
	)
	return err
}

// CountDuplicateKeys reports natural keys with more than one movement.
// Used by the integrity scan job; the unique constraint should keep
// this at zero.
func (r *Repository) CountDuplicateKeys(ctx context.Context) (int, error) {
	const query = `
		SELECT COUNT(*) FROM (
			SELECT source_type, source_id, product_id
			FROM stock_movements
			GROUP BY source_type, source_id, product_id
			HAVING COUNT(*) > 1
		) dup`

	var count int
	err := r.pool.QueryRow(ctx, query).Scan(&count)
	return count, err
}
