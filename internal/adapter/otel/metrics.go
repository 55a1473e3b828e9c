// Package otel provides OpenTelemetry metric instruments for the watch core.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "watchcore"

// Metrics holds all watch core metric instruments.
type Metrics struct {
	WorkflowsStarted   metric.Int64Counter
	WorkflowsCompleted metric.Int64Counter
	WorkflowsFailed    metric.Int64Counter
	WorkflowsSuspended metric.Int64Counter
	TaskAttempts       metric.Int64Counter
	BreakerTrips       metric.Int64Counter
	SweepResumptions   metric.Int64Counter
	WorkflowDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.WorkflowsStarted, err = meter.Int64Counter("watchcore.workflows.started",
		metric.WithDescription("Number of workflows started"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsCompleted, err = meter.Int64Counter("watchcore.workflows.completed",
		metric.WithDescription("Number of workflows completed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsFailed, err = meter.Int64Counter("watchcore.workflows.failed",
		metric.WithDescription("Number of workflows failed"))
	if err != nil {
		return nil, err
	}

	m.WorkflowsSuspended, err = meter.Int64Counter("watchcore.workflows.suspended",
		metric.WithDescription("Number of workflows suspended awaiting manual recovery"))
	if err != nil {
		return nil, err
	}

	m.TaskAttempts, err = meter.Int64Counter("watchcore.tasks.attempts",
		metric.WithDescription("Number of task execution attempts"))
	if err != nil {
		return nil, err
	}

	m.BreakerTrips, err = meter.Int64Counter("watchcore.breaker.trips",
		metric.WithDescription("Number of circuit breaker open transitions"))
	if err != nil {
		return nil, err
	}

	m.SweepResumptions, err = meter.Int64Counter("watchcore.recovery.resumptions",
		metric.WithDescription("Number of workflows resumed by the recovery sweep"))
	if err != nil {
		return nil, err
	}

	m.WorkflowDuration, err = meter.Float64Histogram("watchcore.workflow.duration_seconds",
		metric.WithDescription("Workflow duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
