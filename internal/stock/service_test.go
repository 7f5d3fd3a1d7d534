package stock

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStockRepo struct {
	movements map[MovementKey]*Movement
	nextID    int64
}

func newMemoryStockRepo() *memoryStockRepo {
	return &memoryStockRepo{movements: make(map[MovementKey]*Movement)}
}

func (r *memoryStockRepo) GetByKey(ctx context.Context, key MovementKey) (*Movement, error) {
	m, ok := r.movements[key]
	if !ok {
		return nil, ErrMovementNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *memoryStockRepo) Insert(ctx context.Context, m Movement) (int64, error) {
	if _, ok := r.movements[m.Key]; ok {
		return 0, ErrMovementExists
	}
	r.nextID++
	m.ID = r.nextID
	r.movements[m.Key] = &m
	return m.ID, nil
}

func (r *memoryStockRepo) UpdateQuantity(ctx context.Context, id int64, qty decimal.Decimal, movedAt time.Time) error {
	for _, m := range r.movements {
		if m.ID == id {
			m.Quantity = qty
			m.MovedAt = movedAt
			return nil
		}
	}
	return ErrMovementNotFound
}

func (r *memoryStockRepo) Rekey(ctx context.Context, id int64, newKey MovementKey) error {
	for key, m := range r.movements {
		if m.ID == id {
			delete(r.movements, key)
			m.Key = newKey
			r.movements[newKey] = m
			return nil
		}
	}
	return ErrMovementNotFound
}

func (r *memoryStockRepo) ListBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.Key.SourceType == sourceType && m.Key.SourceID == sourceID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memoryStockRepo) DeleteBySource(ctx context.Context, sourceType string, sourceID int64) error {
	for key := range r.movements {
		if key.SourceType == sourceType && key.SourceID == sourceID {
			delete(r.movements, key)
		}
	}
	return nil
}

func newTestService(repo RepositoryPort) *Service {
	return NewService(repo, slog.Default())
}

func TestUpsertInsertsThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryStockRepo()
	svc := newTestService(repo)

	key := MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 7, ProductID: 42}
	movedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Upsert(ctx, key, decimal.NewFromInt(5), DirectionOut, movedAt))
	require.Len(t, repo.movements, 1)

	// Editing the document changes the quantity, not the row count.
	require.NoError(t, svc.Upsert(ctx, key, decimal.NewFromInt(8), DirectionOut, movedAt))
	require.Len(t, repo.movements, 1)
	require.Equal(t, "8", repo.movements[key].Quantity.String())
}

func TestUpsertIdempotentOnRevalidate(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryStockRepo()
	svc := newTestService(repo)

	key := MovementKey{SourceType: "PURCHASE_RECEPTION", SourceID: 3, ProductID: 9}
	movedAt := time.Now().UTC()

	require.NoError(t, svc.Upsert(ctx, key, decimal.NewFromInt(12), DirectionIn, movedAt))
	require.NoError(t, svc.Upsert(ctx, key, decimal.NewFromInt(12), DirectionIn, movedAt))

	require.Len(t, repo.movements, 1)
	require.Equal(t, "12", repo.movements[key].Quantity.String())
}

func TestUpsertRejectsNegativeQuantity(t *testing.T) {
	svc := newTestService(newMemoryStockRepo())

	err := svc.Upsert(context.Background(),
		MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 1, ProductID: 1},
		decimal.NewFromInt(-3), DirectionOut, time.Now())
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestUpsertRejectsUnknownDirection(t *testing.T) {
	svc := newTestService(newMemoryStockRepo())

	err := svc.Upsert(context.Background(),
		MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 1, ProductID: 1},
		decimal.NewFromInt(3), Direction("SIDEWAYS"), time.Now())
	require.ErrorIs(t, err, ErrInvalidDirection)
}

func TestRetargetRewritesSourcePointer(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryStockRepo()
	svc := newTestService(repo)

	oldKey := MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 7, ProductID: 42}
	newKey := MovementKey{SourceType: "SALES_INVOICE", SourceID: 15, ProductID: 42}
	movedAt := time.Now().UTC()
	require.NoError(t, svc.Upsert(ctx, oldKey, decimal.NewFromInt(5), DirectionOut, movedAt))

	anomaly, err := svc.Retarget(ctx, oldKey, newKey)
	require.NoError(t, err)
	require.Nil(t, anomaly)

	// Exactly one movement remains, now owned by the invoice.
	require.Len(t, repo.movements, 1)
	moved, err := repo.GetByKey(ctx, newKey)
	require.NoError(t, err)
	require.Equal(t, "5", moved.Quantity.String())
	_, err = repo.GetByKey(ctx, oldKey)
	require.ErrorIs(t, err, ErrMovementNotFound)
}

func TestRetargetThenUpsertNeverDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryStockRepo()
	svc := newTestService(repo)

	oldKey := MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 7, ProductID: 42}
	newKey := MovementKey{SourceType: "SALES_INVOICE", SourceID: 15, ProductID: 42}
	movedAt := time.Now().UTC()
	require.NoError(t, svc.Upsert(ctx, oldKey, decimal.NewFromInt(5), DirectionOut, movedAt))

	_, err := svc.Retarget(ctx, oldKey, newKey)
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, newKey, decimal.NewFromInt(5), DirectionOut, movedAt))

	require.Len(t, repo.movements, 1)
}

func TestRetargetMissingSourceIsAnomalyNotError(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryStockRepo()
	svc := newTestService(repo)

	oldKey := MovementKey{SourceType: "DELIVERY_NOTE", SourceID: 99, ProductID: 1}
	newKey := MovementKey{SourceType: "SALES_INVOICE", SourceID: 100, ProductID: 1}

	anomaly, err := svc.Retarget(ctx, oldKey, newKey)
	require.NoError(t, err)
	require.NotNil(t, anomaly)
	require.Equal(t, oldKey, anomaly.Key)

	// No replacement movement is created.
	require.Empty(t, repo.movements)
}

// racingRepo hides the existing row from the first read, simulating a
// concurrent writer landing between the read and the insert.
type racingRepo struct {
	*memoryStockRepo
	firstRead bool
}

func (r *racingRepo) GetByKey(ctx context.Context, key MovementKey) (*Movement, error) {
	if !r.firstRead {
		r.firstRead = true
		return nil, ErrMovementNotFound
	}
	return r.memoryStockRepo.GetByKey(ctx, key)
}

func TestUpsertRecoversFromInsertRace(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryStockRepo()
	repo := &racingRepo{memoryStockRepo: inner}
	svc := newTestService(repo)

	key := MovementKey{SourceType: "SALES_INVOICE", SourceID: 4, ProductID: 2}
	inner.nextID++
	inner.movements[key] = &Movement{ID: inner.nextID, Key: key, Quantity: decimal.NewFromInt(1), Direction: DirectionOut}

	require.NoError(t, svc.Upsert(ctx, key, decimal.NewFromInt(6), DirectionOut, time.Now()))
	require.Len(t, inner.movements, 1)
	require.Equal(t, "6", inner.movements[key].Quantity.String())
}
