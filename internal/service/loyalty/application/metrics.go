package application

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 引擎流程的 Prometheus 指标
type Metrics struct {
	workflows *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loyalty",
			Name:      "workflow_total",
			Help:      "Loyalty workflow executions by outcome.",
		}, []string{"workflow", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "loyalty",
			Name:      "workflow_duration_seconds",
			Help:      "Loyalty workflow latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
	}
	reg.MustRegister(m.workflows, m.duration)
	return m
}

func (m *Metrics) observe(workflow, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.workflows.WithLabelValues(workflow, outcome).Inc()
	m.duration.WithLabelValues(workflow).Observe(time.Since(started).Seconds())
}
