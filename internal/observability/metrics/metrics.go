package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics exposes counters/histograms for the dispatch pipeline.
type DispatchMetrics struct {
	claimsTotal     *prometheus.CounterVec
	sendsTotal      *prometheus.CounterVec
	retriesTotal    prometheus.Counter
	reapedTotal     prometheus.Counter
	reconciledTotal *prometheus.CounterVec
	sendLatency     prometheus.Histogram
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "novasend",
			Subsystem: "dispatch",
			Name:      "claims_total",
			Help:      "Queue item claim attempts",
		}, []string{"outcome"}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "novasend",
			Subsystem: "dispatch",
			Name:      "sends_total",
			Help:      "Provider send attempts by outcome",
		}, []string{"outcome"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "novasend",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Sends rescheduled after transient failure",
		}),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "novasend",
			Subsystem: "dispatch",
			Name:      "reaped_leases_total",
			Help:      "Expired leases returned to the queue",
		}),
		reconciledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "novasend",
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Outcome events applied by the reconciler",
		}, []string{"event_type", "result"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "novasend",
			Subsystem: "dispatch",
			Name:      "send_latency_seconds",
			Help:      "Latency of provider send calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.claimsTotal, m.sendsTotal, m.retriesTotal, m.reapedTotal, m.reconciledTotal, m.sendLatency)
	return m
}

func (m *DispatchMetrics) ObserveClaim(outcome string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(outcome).Inc()
}

func (m *DispatchMetrics) ObserveSend(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(outcome).Inc()
	m.sendLatency.Observe(seconds)
}

func (m *DispatchMetrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *DispatchMetrics) ObserveReaped(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reapedTotal.Add(float64(count))
}

func (m *DispatchMetrics) ObserveReconciled(eventType, result string) {
	if m == nil {
		return
	}
	m.reconciledTotal.WithLabelValues(eventType, result).Inc()
}
