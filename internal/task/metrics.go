package task

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/phrazzld/coursework-jobs/internal/task"

// Metrics holds the dispatcher instruments. All of them carry a task_type attribute.
type Metrics struct {
	started   metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   Metrics
		err error
	)
	if m.started, err = meter.Int64Counter("tasks.started",
		metric.WithDescription("Tasks claimed by a worker")); err != nil {
		return nil, fmt.Errorf("failed to create tasks.started: %w", err)
	}
	if m.completed, err = meter.Int64Counter("tasks.completed",
		metric.WithDescription("Tasks that finished successfully")); err != nil {
		return nil, fmt.Errorf("failed to create tasks.completed: %w", err)
	}
	if m.failed, err = meter.Int64Counter("tasks.failed",
		metric.WithDescription("Tasks that failed terminally")); err != nil {
		return nil, fmt.Errorf("failed to create tasks.failed: %w", err)
	}
	if m.retried, err = meter.Int64Counter("tasks.retried",
		metric.WithDescription("Failed attempts scheduled for another try")); err != nil {
		return nil, fmt.Errorf("failed to create tasks.retried: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("task.duration",
		metric.WithDescription("Handler execution time"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create task.duration: %w", err)
	}
	return &m, nil
}

func typeAttr(typ Type) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("task_type", string(typ)))
}

func (m *Metrics) recordStarted(ctx context.Context, typ Type) {
	m.started.Add(ctx, 1, typeAttr(typ))
}

func (m *Metrics) recordFinished(ctx context.Context, typ Type, elapsed time.Duration, outcome string) {
	attrs := metric.WithAttributes(
		attribute.String("task_type", string(typ)),
		attribute.String("outcome", outcome),
	)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)

	switch outcome {
	case outcomeCompleted:
		m.completed.Add(ctx, 1, typeAttr(typ))
	case outcomeFailed:
		m.failed.Add(ctx, 1, typeAttr(typ))
	case outcomeRetried:
		m.retried.Add(ctx, 1, typeAttr(typ))
	}
}

const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeRetried   = "retried"
)
