package instancepool

import "github.com/prometheus/client_golang/prometheus"

var (
	instancesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modyn_instances",
		Help: "Engine instances by model and status",
	}, []string{"model", "status"})
	acquireTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modyn_acquire_total",
		Help: "Instance acquisitions by model and result",
	}, []string{"model", "result"})
	acquireWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modyn_acquire_wait_seconds",
		Help:    "Time spent in Acquire",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
	inferenceSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modyn_inference_duration_seconds",
		Help:    "Engine inference latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})
)

func init() {
	prometheus.MustRegister(instancesGauge, acquireTotal, acquireWait, inferenceSeconds)
}

// publish mirrors instance counts into the gauge. Pool lock held.
func (p *Pool) publish() {
	counts := map[Status]int{}
	for _, in := range p.instances {
		counts[in.status]++
	}
	counts[StatusLoading] += p.creating
	for _, s := range []Status{StatusLoading, StatusIdle, StatusBusy, StatusError} {
		instancesGauge.WithLabelValues(p.cfg.ModelID, s.String()).Set(float64(counts[s]))
	}
}
