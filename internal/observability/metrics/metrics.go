package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for simulated confirmation calls.
type CallMetrics struct {
	callsStarted  prometheus.Counter
	callOutcomes  *prometheus.CounterVec
	responderPath *prometheus.CounterVec
	callDuration  prometheus.Histogram
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calenderapp",
			Subsystem: "calls",
			Name:      "started_total",
			Help:      "Total simulated calls started",
		}),
		callOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calenderapp",
			Subsystem: "calls",
			Name:      "outcomes_total",
			Help:      "Call outcomes by resulting appointment status",
		}, []string{"status"}),
		responderPath: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calenderapp",
			Subsystem: "calls",
			Name:      "responder_path_total",
			Help:      "Responder invocations by engine path",
		}, []string{"path"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calenderapp",
			Subsystem: "calls",
			Name:      "duration_seconds",
			Help:      "Connected duration of simulated calls",
			Buckets:   []float64{5, 15, 30, 60, 120, 300},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsStarted, m.callOutcomes, m.responderPath, m.callDuration)
	return m
}

// CallStarted counts a new call session. Nil-safe.
func (m *CallMetrics) CallStarted() {
	if m == nil {
		return
	}
	m.callsStarted.Inc()
}

// CallEnded records the outcome and connected duration of a finished call.
// status is the resulting appointment status, or "none" when the call ended
// without a decision.
func (m *CallMetrics) CallEnded(status string, seconds float64) {
	if m == nil {
		return
	}
	if status == "" {
		status = "none"
	}
	m.callOutcomes.WithLabelValues(status).Inc()
	m.callDuration.Observe(seconds)
}

// ResponderPath counts which engine produced a reply.
func (m *CallMetrics) ResponderPath(path string) {
	if m == nil || path == "" {
		return
	}
	m.responderPath.WithLabelValues(path).Inc()
}
