package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// maxDatumsPerCall is the CloudWatch PutMetricData limit.
const maxDatumsPerCall = 1000

// Datum is a single metric observation.
type Datum struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsEmitter publishes datums to one CloudWatch namespace.
type MetricsEmitter struct {
	client    CloudWatchAPI
	namespace string
}

// NewMetricsEmitter returns an emitter bound to namespace.
func NewMetricsEmitter(client CloudWatchAPI, namespace string) *MetricsEmitter {
	return &MetricsEmitter{client: client, namespace: namespace}
}

// Emit sends datums, batching to the API limit.
func (m *MetricsEmitter) Emit(ctx context.Context, datums []Datum) error {
	for start := 0; start < len(datums); start += maxDatumsPerCall {
		end := start + maxDatumsPerCall
		if end > len(datums) {
			end = len(datums)
		}
		batch := make([]cwtypes.MetricDatum, 0, end-start)
		for _, d := range datums[start:end] {
			batch = append(batch, toMetricDatum(d))
		}
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  &m.namespace,
			MetricData: batch,
		})
		if err != nil {
			return fmt.Errorf("put metric data: %w", err)
		}
	}
	return nil
}

func toMetricDatum(d Datum) cwtypes.MetricDatum {
	unit := d.Unit
	if unit == "" {
		unit = cwtypes.StandardUnitNone
	}
	out := cwtypes.MetricDatum{
		MetricName: sdkaws.String(d.Name),
		Value:      sdkaws.Float64(d.Value),
		Unit:       unit,
	}
	if !d.Timestamp.IsZero() {
		out.Timestamp = sdkaws.Time(d.Timestamp)
	}
	// stable dimension order keeps requests reproducible
	keys := make([]string, 0, len(d.Dimensions))
	for k := range d.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Dimensions = append(out.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(d.Dimensions[k]),
		})
	}
	return out
}
