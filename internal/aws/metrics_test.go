package aws

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
)

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestMetrics_Count(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetrics(cw, "MpesaRelay")
	m.Count(context.Background(), "CallbackReceived", map[string]string{"Status": "completed"})

	if len(cw.inputs) != 1 {
		t.Fatalf("expected one PutMetricData call, got %d", len(cw.inputs))
	}
	in := cw.inputs[0]
	if *in.Namespace != "MpesaRelay" {
		t.Fatalf("namespace mismatch: %s", *in.Namespace)
	}
	d := in.MetricData[0]
	if *d.MetricName != "CallbackReceived" || *d.Value != 1 {
		t.Fatalf("unexpected datum: %+v", d)
	}
	if len(d.Dimensions) != 1 || *d.Dimensions[0].Name != "Status" || *d.Dimensions[0].Value != "completed" {
		t.Fatalf("unexpected dimensions: %+v", d.Dimensions)
	}
}

func TestMetrics_CountSwallowsErrors(t *testing.T) {
	m := NewMetrics(&mockCloudWatch{err: errors.New("throttled")}, "MpesaRelay")
	m.Count(context.Background(), "StkPushInitiated", nil) // must not panic
}
