package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/approvalgate/internal/domain/audit"
)

const namespace = "approval_gate"

// Metrics holds all Prometheus metrics for approval-gate.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	VerdictsTotal    *prometheus.CounterVec
	OutcomesTotal    *prometheus.CounterVec
	ApprovalDuration *prometheus.HistogramVec

	reg prometheus.Registerer
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		reg: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		VerdictsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Policy verdicts by kind",
			},
			[]string{"verdict"}, // deny/allow/hold
		),
		OutcomesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Terminal request outcomes by stage",
			},
			[]string{"stage", "outcome"},
		),
		ApprovalDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "approval_duration_seconds",
				Help:      "Time from enqueue to resolution of held requests",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
	}
}

// RegisterQueueDepth exports the approval queue length as a gauge.
func (m *Metrics) RegisterQueueDepth(q QueueReporter) {
	promauto.With(m.reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "approval_queue_depth",
			Help:      "Requests waiting for human approval",
		},
		func() float64 { return float64(q.Len()) },
	)
}

// RegisterJournalDrops exports the outcome journal drop count.
func (m *Metrics) RegisterJournalDrops(j JournalReporter) {
	promauto.With(m.reg).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_drops_total",
			Help:      "Outcome records dropped due to backpressure",
		},
		func() float64 { return float64(j.DroppedRecords()) },
	)
}

// Record updates verdict and outcome metrics from an outcome record.
func (m *Metrics) Record(r audit.Record) {
	if r.Stage == audit.StageSync && r.Verdict != "" {
		m.VerdictsTotal.WithLabelValues(r.Verdict).Inc()
	}
	m.OutcomesTotal.WithLabelValues(r.Stage, r.Outcome).Inc()
	if r.Stage == audit.StageApproval {
		m.ApprovalDuration.WithLabelValues(r.Outcome).Observe(float64(r.LatencyMicros) / 1e6)
	}
}

var _ audit.Recorder = (*Metrics)(nil)
