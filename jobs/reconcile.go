package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stocktrail/stocktrail/internal/batch"
	jobmetrics "github.com/stocktrail/stocktrail/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ReconcileJob runs the batch tag backfill from the queue.
type ReconcileJob struct {
	Reconciler *batch.Reconciler
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewReconcileJob wires dependencies for the reconcile handler.
func NewReconcileJob(reconciler *batch.Reconciler, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{Reconciler: reconciler, Logger: logger}
}

// Handle processes TaskBatchReconcile tasks.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reconciler == nil {
		return errors.New("reconcile job: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	start := time.Now()
	tracker := j.metrics().Track(TaskBatchReconcile)

	tagged, err := j.Reconciler.Run(ctx)
	if err != nil {
		logger.Error("reconcile pass", slog.Any("error", err))
		return tracker.End(err)
	}
	if tagged > 0 {
		logger.Info("reconcile pass completed",
			slog.Int("items_tagged", tagged),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return tracker.End(nil)
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBatchReconcile))
	}
	return slog.Default().With(slog.String("job", TaskBatchReconcile))
}
