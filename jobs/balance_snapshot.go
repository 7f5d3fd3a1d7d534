package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gestcom-app/gestcom/internal/balance"
	"github.com/gestcom-app/gestcom/internal/observability"
)

// BalanceSnapshotJob warms the balance cache for every active partner
// so morning report requests hit Redis instead of recomputing.
type BalanceSnapshotJob struct {
	Balance *balance.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
}

// NewBalanceSnapshotJob wires dependencies for the snapshot handler.
func NewBalanceSnapshotJob(balanceSvc *balance.Service, logger *slog.Logger, metrics *observability.Metrics) *BalanceSnapshotJob {
	return &BalanceSnapshotJob{
		Balance: balanceSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes balance snapshot tasks.
func (j *BalanceSnapshotJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Balance == nil {
		return errors.New("balance snapshot: handler not configured")
	}
	defer func() { j.Metrics.ObserveJob(TaskBalanceSnapshot, err) }()

	var payload BalanceSnapshotPayload
	if jsonErr := json.Unmarshal(t.Payload(), &payload); jsonErr != nil {
		return asynq.SkipRetry
	}
	roles := []balance.Role{balance.RoleCustomer, balance.RoleSupplier}
	if len(payload.Roles) > 0 {
		roles = roles[:0]
		for _, raw := range payload.Roles {
			role := balance.Role(raw)
			if !role.Valid() {
				return asynq.SkipRetry
			}
			roles = append(roles, role)
		}
	}

	asOf := j.clock().Truncate(24 * time.Hour)
	for _, role := range roles {
		count, warmErr := j.Balance.WarmSnapshots(ctx, role, asOf)
		if warmErr != nil {
			err = warmErr
			j.Logger.Error("balance snapshot failed",
				slog.String("role", string(role)), slog.Any("error", warmErr))
			return err
		}
		j.Logger.Info("balance snapshot complete",
			slog.String("role", string(role)), slog.Int("partners", count))
	}
	return nil
}
