package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/metrics/metricsTypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	kind   string
	name   string
	value  float64
	labels []metricsTypes.MetricsLabel
}

type recordingClient struct {
	calls []recordedCall
	err   error
}

func (r *recordingClient) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	r.calls = append(r.calls, recordedCall{"incr", name, value, labels})
	return r.err
}

func (r *recordingClient) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	r.calls = append(r.calls, recordedCall{"gauge", name, value, labels})
	return r.err
}

func (r *recordingClient) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	r.calls = append(r.calls, recordedCall{"timing", name, float64(value.Milliseconds()), labels})
	return r.err
}

func Test_MetricsSink(t *testing.T) {
	t.Run("Fans out to every client with default labels first", func(t *testing.T) {
		a := &recordingClient{}
		b := &recordingClient{}
		ms, err := NewMetricsSink(&MetricsSinkConfig{
			DefaultLabels: []metricsTypes.MetricsLabel{{Name: "chain", Value: "gnosis"}},
		}, []metricsTypes.IMetricsClient{a, b})
		require.NoError(t, err)

		require.NoError(t, ms.Incr(metricsTypes.Metric_Incr_AlertSent, []metricsTypes.MetricsLabel{{Name: "service", Value: "alice"}}, 1))
		require.NoError(t, ms.Timing(metricsTypes.Metric_Timing_JobDuration, 2*time.Second, []metricsTypes.MetricsLabel{{Name: "job", Value: "balance_check"}}))

		for _, c := range []*recordingClient{a, b} {
			require.Len(t, c.calls, 2)
			assert.Equal(t, "incr", c.calls[0].kind)
			assert.Equal(t, []metricsTypes.MetricsLabel{{Name: "chain", Value: "gnosis"}, {Name: "service", Value: "alice"}}, c.calls[0].labels)
			assert.Equal(t, "timing", c.calls[1].kind)
			assert.Equal(t, float64(2000), c.calls[1].value)
		}
	})
	t.Run("Nil labels use only the defaults", func(t *testing.T) {
		a := &recordingClient{}
		ms, _ := NewMetricsSink(&MetricsSinkConfig{}, []metricsTypes.IMetricsClient{a})

		require.NoError(t, ms.Gauge(metricsTypes.Metric_Gauge_ServiceBalance, 3, nil))
		assert.Empty(t, a.calls[0].labels)
	})
	t.Run("Returns the first client error", func(t *testing.T) {
		a := &recordingClient{err: errors.New("statsd down")}
		ms, _ := NewMetricsSink(&MetricsSinkConfig{}, []metricsTypes.IMetricsClient{a})
		assert.EqualError(t, ms.Incr(metricsTypes.Metric_Incr_BalanceCheckRun, nil, 1), "statsd down")
	})
	t.Run("Noop sink accepts everything", func(t *testing.T) {
		ms := NewNoopMetricsSink()
		assert.NoError(t, ms.Incr(metricsTypes.Metric_Incr_BalanceCheckRun, nil, 1))
	})
}
