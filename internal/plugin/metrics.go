package plugin

import "github.com/prometheus/client_golang/prometheus"

var (
	loadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modyn_plugin_loads_total",
		Help: "Plugin load attempts by result",
	}, []string{"result"})
	pluginsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "modyn_plugins_loaded",
		Help: "Plugins currently held by the loader",
	})
)

func init() {
	prometheus.MustRegister(loadsTotal, pluginsLoaded)
}
