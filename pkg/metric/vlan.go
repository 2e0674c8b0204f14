package metric

import "github.com/prometheus/client_golang/prometheus"

var (
	VlanPoolCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ovsvlan_vlan_pool_capacity",
			Help: "number of vlan tags managed by the pool",
		},
		[]string{"range"},
	)

	VlanPoolInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ovsvlan_vlan_pool_in_use",
			Help: "number of vlan tags bound to a network",
		},
		[]string{"range"},
	)

	VlanPoolExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ovsvlan_vlan_pool_exhausted_total",
			Help: "acquire calls that found no free vlan tag",
		},
		[]string{"range"},
	)

	VlanBootstrapBindings = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ovsvlan_vlan_bootstrap_bindings",
			Help: "bindings restored from the binding store on the last bootstrap",
		},
		[]string{"range"},
	)
)
