package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBatchReconcile is the task type for the batch tag backfill pass.
	TaskBatchReconcile = "batch:reconcile"
)

// ReconcilePayload describes a reconciliation request. Trigger records where
// the request came from, for log correlation only.
type ReconcilePayload struct {
	Trigger string `json:"trigger"`
}

// NewReconcileTask constructs an Asynq task for a reconciliation pass.
func NewReconcileTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(ReconcilePayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchReconcile, data), nil
}
