package treasury

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(pluginLoadFailures)
}

var pluginLoadFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "treasury_plugin_load_failures",
		Help: "Importer plugin libraries that failed to load, by library path",
	},
	[]string{"path"},
)
