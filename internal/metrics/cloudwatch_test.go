package metrics

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"postpilot/internal/types"
)

// mockCloudWatch records PutMetricData calls.
type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	putErr error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func metricValues(input *cloudwatch.PutMetricDataInput) map[string]float64 {
	values := map[string]float64{}
	for _, d := range input.MetricData {
		values[aws.ToString(d.MetricName)] = aws.ToFloat64(d.Value)
	}
	return values
}

func TestRecordPlan(t *testing.T) {
	client := &mockCloudWatch{}
	emitter := NewEmitter(client, "PostPilot", testLogger())

	emitter.RecordPlan(context.Background(), &types.PlanSummary{
		TotalJobs:   5,
		TotalQueued: 4,
		Failures:    []types.PlanFailure{{AccountID: "bad"}},
	})

	if len(client.inputs) != 1 {
		t.Fatalf("put calls = %d, want 1", len(client.inputs))
	}
	input := client.inputs[0]
	if aws.ToString(input.Namespace) != "PostPilot" {
		t.Errorf("namespace = %q", aws.ToString(input.Namespace))
	}

	values := metricValues(input)
	if values["JobsPlanned"] != 5 || values["JobsQueued"] != 4 || values["PlanAccountFailures"] != 1 {
		t.Errorf("metric values = %v", values)
	}
}

func TestRecordDispatch(t *testing.T) {
	client := &mockCloudWatch{}
	emitter := NewEmitter(client, "PostPilot", testLogger())

	emitter.RecordDispatch(context.Background(), &types.DispatchSummary{
		Dispatched: 2,
		Failed:     1,
		Skipped:    3,
	})

	values := metricValues(client.inputs[0])
	if values["JobsDispatched"] != 2 || values["DispatchFailures"] != 1 || values["DispatchSkipped"] != 3 {
		t.Errorf("metric values = %v", values)
	}
}

// Emission is best-effort: a failing PutMetricData call must not panic or
// propagate.
func TestPutFailureSwallowed(t *testing.T) {
	client := &mockCloudWatch{putErr: errors.New("throttled")}
	emitter := NewEmitter(client, "PostPilot", testLogger())

	emitter.RecordPlan(context.Background(), &types.PlanSummary{TotalJobs: 1})
	emitter.RecordDispatch(context.Background(), &types.DispatchSummary{Dispatched: 1})
}
