package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Foreign call metrics
	ForeignCallsTotal    *prometheus.CounterVec
	ForeignCallDuration  *prometheus.HistogramVec
	ForeignCallsInFlight prometheus.Gauge

	// Install metrics
	InstallsTotal   *prometheus.CounterVec
	InstallDuration prometheus.Histogram
	ArchiveSize     prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ForeignCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginstall_foreign_calls_total",
				Help: "Total number of calls into the secondary runtime",
			},
			[]string{"function", "outcome"},
		),
		ForeignCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pluginstall_foreign_call_duration_seconds",
				Help:    "Time spent inside the secondary runtime per call, lock wait excluded",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"function"},
		),
		ForeignCallsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pluginstall_foreign_calls_in_flight",
				Help: "Number of calls currently executing inside the secondary runtime",
			},
		),

		InstallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pluginstall_installs_total",
				Help: "Total number of install attempts by outcome and the stage they ended in",
			},
			[]string{"outcome", "stage"},
		),
		InstallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pluginstall_install_duration_seconds",
				Help:    "Install pipeline duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ArchiveSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pluginstall_archive_size_bytes",
				Help:    "Size of downloaded plugin archives",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),
	}

	registry.MustRegister(
		m.ForeignCallsTotal,
		m.ForeignCallDuration,
		m.ForeignCallsInFlight,
		m.InstallsTotal,
		m.InstallDuration,
		m.ArchiveSize,
	)

	return m
}

// ForeignCallStarted marks a call entering the secondary runtime.
func (m *Metrics) ForeignCallStarted() {
	if m == nil {
		return
	}
	m.ForeignCallsInFlight.Inc()
}

// ForeignCallFinished records a call leaving the secondary runtime.
func (m *Metrics) ForeignCallFinished(function string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ForeignCallsInFlight.Dec()
	m.ForeignCallsTotal.WithLabelValues(function, outcome(err)).Inc()
	m.ForeignCallDuration.WithLabelValues(function).Observe(duration.Seconds())
}

// RecordInstall records a finished install attempt. stage is the last stage reached.
func (m *Metrics) RecordInstall(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.InstallsTotal.WithLabelValues(outcome(err), stage).Inc()
	m.InstallDuration.Observe(duration.Seconds())
}

// RecordArchiveSize records the size of a downloaded archive.
func (m *Metrics) RecordArchiveSize(bytes int) {
	if m == nil {
		return
	}
	m.ArchiveSize.Observe(float64(bytes))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
