// Package prometheus exposes authcore engine metrics as a Prometheus
// collector.
//
// Counters are named authcore_*_total; the Authenticate latency histogram is
// authcore_authenticate_latency_seconds. Nothing is registered globally:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(authprom.New(engine))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package prometheus
