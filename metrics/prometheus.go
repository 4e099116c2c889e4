package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GlobalMetricsRegistry is the Prometheus metrics registry singleton backing
// Global.
var GlobalMetricsRegistry *prometheus.Registry

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	return reg
}
