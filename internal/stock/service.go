package stock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the reconciler.
type RepositoryPort interface {
	GetByKey(ctx context.Context, key MovementKey) (*Movement, error)
	Insert(ctx context.Context, m Movement) (int64, error)
	UpdateQuantity(ctx context.Context, id int64, qty decimal.Decimal, movedAt time.Time) error
	Rekey(ctx context.Context, id int64, newKey MovementKey) error
	ListBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error)
	DeleteBySource(ctx context.Context, sourceType string, sourceID int64) error
}

// ErrMovementNotFound indicates no movement exists for a key.
var ErrMovementNotFound = errors.New("stock: movement not found")

// AnomalyObserver counts reconciliation anomalies for monitoring.
type AnomalyObserver interface {
	ObserveStockAnomaly()
}

// Service reconciles stock movements with their source documents,
// guaranteeing at most one movement per (source, product) key.
type Service struct {
	repo    RepositoryPort
	logger  *slog.Logger
	metrics AnomalyObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SetMetrics attaches an anomaly observer.
func (s *Service) SetMetrics(metrics AnomalyObserver) {
	s.metrics = metrics
}

// Upsert records a movement for key, updating quantity and date in
// place when one already exists. Repeated calls with identical key and
// quantity are idempotent: re-validating a document twice must not
// double the stock effect.
func (s *Service) Upsert(ctx context.Context, key MovementKey, qty decimal.Decimal, direction Direction, movedAt time.Time) error {
	if qty.IsNegative() {
		return ErrNegativeQuantity
	}
	if direction != DirectionIn && direction != DirectionOut {
		return ErrInvalidDirection
	}

	existing, err := s.repo.GetByKey(ctx, key)
	if err != nil && !errors.Is(err, ErrMovementNotFound) {
		return err
	}
	if existing != nil {
		return s.repo.UpdateQuantity(ctx, existing.ID, qty, movedAt)
	}

	_, err = s.repo.Insert(ctx, Movement{
		Key:       key,
		Quantity:  qty,
		Direction: direction,
		MovedAt:   movedAt,
	})
	if errors.Is(err, ErrMovementExists) {
		// Lost an insert race; the winner's row carries the same
		// source, so update it instead.
		raced, getErr := s.repo.GetByKey(ctx, key)
		if getErr != nil {
			return getErr
		}
		return s.repo.UpdateQuantity(ctx, raced.ID, qty, movedAt)
	}
	return err
}

// Retarget rewrites a movement's source pointer when a document is
// converted into another type, so the conversion never produces a
// second movement for the same goods. A missing source movement is a
// reportable anomaly, not a fatal error: creating a replacement would
// itself risk double counting against a possibly-correct state, so the
// anomaly is logged and no movement is written.
func (s *Service) Retarget(ctx context.Context, oldKey, newKey MovementKey) (*Anomaly, error) {
	existing, err := s.repo.GetByKey(ctx, oldKey)
	if errors.Is(err, ErrMovementNotFound) {
		anomaly := &Anomaly{Key: oldKey, Reason: "no movement found at retarget"}
		s.logger.Warn("stock retarget anomaly",
			slog.String("old_key", oldKey.String()),
			slog.String("new_key", newKey.String()),
		)
		if s.metrics != nil {
			s.metrics.ObserveStockAnomaly()
		}
		return anomaly, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.Rekey(ctx, existing.ID, newKey); err != nil {
		return nil, err
	}
	return nil, nil
}

// ListBySource returns the movements recorded for one source document.
func (s *Service) ListBySource(ctx context.Context, sourceType string, sourceID int64) ([]Movement, error) {
	return s.repo.ListBySource(ctx, sourceType, sourceID)
}

// RemoveSource deletes the movements of a cancelled document.
func (s *Service) RemoveSource(ctx context.Context, sourceType string, sourceID int64) error {
	return s.repo.DeleteBySource(ctx, sourceType, sourceID)
}
