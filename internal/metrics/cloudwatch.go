// Package metrics emits planning and dispatch outcome metrics to CloudWatch.
// Emission is best-effort: a metrics failure is logged and never propagated
// into a planning or dispatch cycle.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwTypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"postpilot/internal/types"
)

// Metric names.
const (
	metricJobsPlanned      = "JobsPlanned"
	metricJobsQueued       = "JobsQueued"
	metricPlanFailures     = "PlanAccountFailures"
	metricJobsDispatched   = "JobsDispatched"
	metricDispatchFailures = "DispatchFailures"
	metricDispatchSkipped  = "DispatchSkipped"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Emitter publishes scheduling metrics to a CloudWatch namespace.
type Emitter struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewEmitter creates an Emitter publishing to the given namespace.
func NewEmitter(client CloudWatchClient, namespace string, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordPlan emits the outcome counts of one planning cycle.
func (e *Emitter) RecordPlan(ctx context.Context, summary *types.PlanSummary) {
	e.put(ctx, []cwTypes.MetricDatum{
		datum(metricJobsPlanned, float64(summary.TotalJobs)),
		datum(metricJobsQueued, float64(summary.TotalQueued)),
		datum(metricPlanFailures, float64(len(summary.Failures))),
	})
}

// RecordDispatch emits the outcome counts of one dispatch cycle.
func (e *Emitter) RecordDispatch(ctx context.Context, summary *types.DispatchSummary) {
	e.put(ctx, []cwTypes.MetricDatum{
		datum(metricJobsDispatched, float64(summary.Dispatched)),
		datum(metricDispatchFailures, float64(summary.Failed)),
		datum(metricDispatchSkipped, float64(summary.Skipped)),
	})
}

func (e *Emitter) put(ctx context.Context, data []cwTypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(e.namespace),
		MetricData: data,
	}
	if _, err := e.client.PutMetricData(ctx, input); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish metrics",
			"namespace", e.namespace,
			"error", err,
		)
	}
}

func datum(name string, value float64) cwTypes.MetricDatum {
	return cwTypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwTypes.StandardUnitCount,
	}
}
