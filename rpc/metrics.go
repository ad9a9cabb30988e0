package rpc

import "github.com/prometheus/client_golang/prometheus"

var (
	allocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slab_pool_allocations_total",
		Help: "Allocations served over RPC.",
	})
	freesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slab_pool_frees_total",
		Help: "Frees served over RPC.",
	})
	liveObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "slab_pool_live_objects",
		Help: "Objects currently allocated and not yet freed.",
	})
)

func init() {
	prometheus.MustRegister(allocationsTotal, freesTotal, liveObjects)
}
