package aws

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes single-count CloudWatch datapoints under one namespace.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	nowFunc    func() time.Time
}

func NewMetrics(cw CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		CloudWatch: cw,
		Namespace:  namespace,
		nowFunc:    time.Now,
	}
}

// Count records a value of 1 for name. Failures are logged, never returned.
func (m *Metrics) Count(ctx context.Context, name string, dims map[string]string) {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{Name: awsString(k), Value: awsString(dims[k])})
	}

	now := m.nowFunc()
	one := 1.0
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.Namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awsString(name),
			Dimensions: dimensions,
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &one,
		}},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}
