package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one compile run on its own registry, so
// runs in the same process (tests, validate dry runs) never share counters
type Recorder struct {
	registry *prometheus.Registry

	RunInfo            *prometheus.GaugeVec
	ServersAllocated   *prometheus.CounterVec
	AddressesAllocated *prometheus.CounterVec
	Diagnostics        *prometheus.CounterVec
	PluginDuration     *prometheus.HistogramVec
	RunDuration        prometheus.Gauge
}

// NewRecorder creates a recorder with every metric registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		RunInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cloudcfg_run_info",
				Help: "Information about the last compile run (always 1)",
			},
			[]string{"run_id", "cloud"},
		),

		ServersAllocated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcfg_servers_allocated_total",
				Help: "Servers newly allocated to a cluster or resource group",
			},
			[]string{"group"},
		),

		AddressesAllocated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcfg_addresses_allocated_total",
				Help: "Addresses allocated or reconfirmed by network",
			},
			[]string{"network"},
		),

		Diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cloudcfg_diagnostics_total",
				Help: "Errors and warnings recorded by severity",
			},
			[]string{"severity"},
		),

		PluginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cloudcfg_plugin_duration_seconds",
				Help:    "Time spent in each plugin",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin", "phase"},
		),

		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cloudcfg_run_duration_seconds",
				Help: "Wall time of the compile run",
			},
		),
	}

	r.registry.MustRegister(
		r.RunInfo,
		r.ServersAllocated,
		r.AddressesAllocated,
		r.Diagnostics,
		r.PluginDuration,
		r.RunDuration,
	)
	return r
}

// Registry returns the recorder's registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes every metric in the text exposition format, for the
// node exporter textfile collector
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
