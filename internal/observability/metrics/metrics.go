package metrics

import "github.com/prometheus/client_golang/prometheus"

// GateMetrics exposes counters/histograms for outbound gate decisions.
type GateMetrics struct {
	decisionsTotal  *prometheus.CounterVec
	blockedTotal    *prometheus.CounterVec
	decisionLatency prometheus.Histogram
}

func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	m := &GateMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "techaura",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total outbound gate decisions",
		}, []string{"outcome", "message_type"}),
		blockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "techaura",
			Subsystem: "gate",
			Name:      "blocked_total",
			Help:      "Blocked sends by failing gate",
		}, []string{"gate"}),
		decisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "techaura",
			Subsystem: "gate",
			Name:      "decision_latency_seconds",
			Help:      "Latency of gate policy evaluation (excludes dispatch)",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.blockedTotal, m.decisionLatency)
	return m
}

func (m *GateMetrics) ObserveDecision(outcome, messageType string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(outcome, messageType).Inc()
}

func (m *GateMetrics) ObserveBlockedGate(gate string) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(gate).Inc()
}

func (m *GateMetrics) ObserveDecisionLatency(seconds float64) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(seconds)
}
