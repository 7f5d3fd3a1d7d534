package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/gestcom-app/gestcom/internal/observability"
)

// DuplicateKeyCounter reports movement keys that violate the
// one-movement-per-source invariant.
type DuplicateKeyCounter interface {
	CountDuplicateKeys(ctx context.Context) (int, error)
}

// StockIntegrityJob verifies the movement table still holds one row per
// natural key. The unique constraint should keep duplicates at zero; a
// non-zero count means reconciliation was bypassed somewhere.
type StockIntegrityJob struct {
	Repo    DuplicateKeyCounter
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewStockIntegrityJob wires dependencies for the integrity scan.
func NewStockIntegrityJob(repo DuplicateKeyCounter, logger *slog.Logger, metrics *observability.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{Repo: repo, Logger: logger, Metrics: metrics}
}

// Handle processes integrity scan tasks.
func (j *StockIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Repo == nil {
		return errors.New("stock integrity: handler not configured")
	}
	defer func() { j.Metrics.ObserveJob(TaskStockIntegrity, err) }()

	count, err := j.Repo.CountDuplicateKeys(ctx)
	if err != nil {
		j.Logger.Error("stock integrity scan failed", slog.Any("error", err))
		return err
	}
	if count > 0 {
		j.Logger.Warn("duplicate stock movement keys detected", slog.Int("count", count))
		j.Metrics.ObserveStockAnomaly()
		return nil
	}
	j.Logger.Info("stock integrity scan clean")
	return nil
}
