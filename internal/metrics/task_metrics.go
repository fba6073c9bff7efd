package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("task-metrics")

// TaskMetrics provides metrics collection for task execution
type TaskMetrics struct {
	tasksAcceptedCounter   metric.Int64Counter
	tasksCompletedCounter  metric.Int64Counter
	tasksFailedCounter     metric.Int64Counter
	taskDurationHistogram  metric.Float64Histogram
	tasksActiveGauge       metric.Int64UpDownCounter
	convergenceUnconfirmed metric.Int64Counter
}

// NewTaskMetrics creates a new task metrics collector
func NewTaskMetrics() (*TaskMetrics, error) {
	tasksAcceptedCounter, err := meter.Int64Counter(
		"pagesmith.tasks.accepted",
		metric.WithDescription("Total number of tasks accepted"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	tasksCompletedCounter, err := meter.Int64Counter(
		"pagesmith.tasks.completed",
		metric.WithDescription("Total number of tasks completed successfully"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	tasksFailedCounter, err := meter.Int64Counter(
		"pagesmith.tasks.failed",
		metric.WithDescription("Total number of tasks that failed"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	taskDurationHistogram, err := meter.Float64Histogram(
		"pagesmith.task.duration",
		metric.WithDescription("Duration of task execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tasksActiveGauge, err := meter.Int64UpDownCounter(
		"pagesmith.tasks.active",
		metric.WithDescription("Number of currently executing tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	convergenceUnconfirmed, err := meter.Int64Counter(
		"pagesmith.convergence.unconfirmed",
		metric.WithDescription("Tasks whose deployment was not confirmed within the polling budget"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	return &TaskMetrics{
		tasksAcceptedCounter:   tasksAcceptedCounter,
		tasksCompletedCounter:  tasksCompletedCounter,
		tasksFailedCounter:     tasksFailedCounter,
		taskDurationHistogram:  taskDurationHistogram,
		tasksActiveGauge:       tasksActiveGauge,
		convergenceUnconfirmed: convergenceUnconfirmed,
	}, nil
}

// RecordTaskAccepted records a newly accepted task
func (tm *TaskMetrics) RecordTaskAccepted(ctx context.Context, taskName string, round int) {
	tm.tasksAcceptedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.Int("task.round", round),
		),
	)
	tm.tasksActiveGauge.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
		),
	)
}

// RecordTaskCompleted records a successful task completion
func (tm *TaskMetrics) RecordTaskCompleted(ctx context.Context, taskName string, round int, duration time.Duration) {
	tm.tasksCompletedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.Int("task.round", round),
			attribute.String("status", "completed"),
		),
	)
	tm.taskDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.String("status", "completed"),
		),
	)
	tm.tasksActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
		),
	)
}

// RecordTaskFailed records a failed task execution
func (tm *TaskMetrics) RecordTaskFailed(ctx context.Context, taskName string, round int, errorType string, duration time.Duration) {
	tm.tasksFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.Int("task.round", round),
			attribute.String("status", "failed"),
			attribute.String("error.type", errorType),
		),
	)
	tm.taskDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.String("status", "failed"),
		),
	)
	tm.tasksActiveGauge.Add(ctx, -1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
		),
	)
}

// RecordConvergenceUnconfirmed records a task whose deployment stayed
// unconfirmed after polling exhausted its attempts
func (tm *TaskMetrics) RecordConvergenceUnconfirmed(ctx context.Context, taskName string, round int) {
	tm.convergenceUnconfirmed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("task.name", taskName),
			attribute.Int("task.round", round),
		),
	)
}
