/*
Package metrics records what a compile run did as Prometheus metrics.

A compiler run is a short-lived process, so nothing is served over HTTP.
Each run owns a Recorder with a private registry. Plugins increment its
counters as they allocate servers and addresses, and the plugin runner
times every plugin into a histogram. When a metrics file is configured the
registry is written once at the end of the run in the text exposition
format, ready for the node exporter textfile collector:

	cloudcfg_run_info{cloud="...",run_id="..."}          1
	cloudcfg_servers_allocated_total{group="cp/cluster"} newly allocated members
	cloudcfg_addresses_allocated_total{network="..."}    addresses handed out
	cloudcfg_diagnostics_total{severity="error|warning"} findings recorded
	cloudcfg_plugin_duration_seconds{plugin,phase}       plugin wall time
	cloudcfg_run_duration_seconds                        whole run wall time

Timer measures one operation:

	timer := metrics.NewTimer()
	err := p.Run(ctx, pctx)
	timer.ObserveDurationVec(rec.PluginDuration, p.ID(), string(p.Phase()))
*/
package metrics
