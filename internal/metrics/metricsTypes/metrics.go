package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_BalanceCheckRun = "balance_check_run"
	Metric_Incr_AlertSent       = "alert_sent"
	Metric_Incr_ClaimAttempt    = "claim_attempt"
	Metric_Incr_WithdrawAttempt = "withdraw_attempt"
	Metric_Incr_StatusFailure   = "status_failure"

	Metric_Gauge_ServiceBalance = "service_balance"

	Metric_Timing_JobDuration = "job_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_BalanceCheckRun,
			Labels: []string{},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_AlertSent,
			Labels: []string{"service", "wallet"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ClaimAttempt,
			Labels: []string{"service", "result"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_WithdrawAttempt,
			Labels: []string{"service", "result"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_StatusFailure,
			Labels: []string{"service"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_ServiceBalance,
			Labels: []string{"service", "wallet"},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_JobDuration,
			Labels: []string{"job"},
		},
	},
}
