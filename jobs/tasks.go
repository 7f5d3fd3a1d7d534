// Package jobs defines the background task surface: the asynq worker
// wrapper, the task payloads and their handlers.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskBalanceSnapshot recomputes and caches partner balances.
	TaskBalanceSnapshot = "balance:snapshot"
	// TaskStockIntegrity scans for duplicate movement keys.
	TaskStockIntegrity = "stock:integrity"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// BalanceSnapshotPayload scopes a snapshot run.
type BalanceSnapshotPayload struct {
	Roles []string `json:"roles,omitempty"`
}

// NewBalanceSnapshotTask constructs a snapshot task.
func NewBalanceSnapshotTask(payload BalanceSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceSnapshot, data), nil
}

// StockIntegrityPayload scopes an integrity scan.
type StockIntegrityPayload struct{}

// NewStockIntegrityTask constructs an integrity scan task.
func NewStockIntegrityTask() (*asynq.Task, error) {
	data, err := json.Marshal(StockIntegrityPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, data), nil
}

// IdempotencyCleanupPayload scopes key pruning.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours,omitempty"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
