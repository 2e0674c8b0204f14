package metric

import "github.com/prometheus/client_golang/prometheus"

var (
	// PluginOpLatency latency of network lifecycle calls handled by the plugin
	PluginOpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ovsvlan_plugin_op_latency_ms",
			Help:    "ovsvlan plugin operation latency in ms",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"op", "error"},
	)
)
