package cluster

import "github.com/prometheus/client_golang/prometheus"

type transportMetrics struct {
	requests *prometheus.CounterVec
}

func newTransportMetrics(reg prometheus.Registerer) *transportMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpforge",
		Subsystem: "cluster",
		Name:      "transport_requests_total",
		Help:      "Cluster API attempts by transport and outcome",
	}, []string{"transport", "outcome"})
	if err := reg.Register(requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				requests = existing
			}
		}
	}
	return &transportMetrics{requests: requests}
}

func (m *transportMetrics) observe(transport, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.With(prometheus.Labels{"transport": transport, "outcome": outcome}).Inc()
}
