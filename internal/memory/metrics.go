package memory

import "github.com/prometheus/client_golang/prometheus"

var (
	usedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modyn_memory_pool_used_bytes",
		Help: "Bytes currently allocated from the pool",
	}, []string{"pool"})
	freeBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modyn_memory_pool_free_bytes",
		Help: "Bytes currently free in the pool",
	}, []string{"pool"})
	allocsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modyn_memory_pool_allocs_total",
		Help: "Successful allocations",
	}, []string{"pool"})
	oomTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modyn_memory_pool_oom_total",
		Help: "Allocations rejected because no free block fit",
	}, []string{"pool"})
)

func init() {
	prometheus.MustRegister(usedBytes, freeBytes, allocsTotal, oomTotal)
}

// publishMetrics mirrors counters into gauges. Caller holds p.mu.
func (p *Pool) publishMetrics() {
	usedBytes.WithLabelValues(p.name).Set(float64(p.usedBytes))
	freeBytes.WithLabelValues(p.name).Set(float64(len(p.arena) - p.usedBytes))
}
