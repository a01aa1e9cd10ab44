// Package metrics exposes gofor's operational state: the Prometheus
// registry, the GopherMetrics collector interface, and the operator HTTP
// server (/metrics, /healthz, /readyz).
//
// Collection is opt-in. Until InitRegistry is called GetRegistry returns nil
// and collector constructors fall back to no-op implementations.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// NewRegistry returns a registry preloaded with the Go runtime, process and
// build info collectors, so every gofor scrape carries them next to the
// gofor_gopher_* series.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// InitRegistry installs the process-wide registry on the first call and
// returns it. Later calls return the same registry.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()
	if registry == nil {
		registry = NewRegistry()
	}
	return registry
}

// GetRegistry returns the process-wide registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
