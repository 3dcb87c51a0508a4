package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RestoreActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "restorer_restore_active",
			Help: "Whether a cluster-wide restore is in progress (1 = active, 0 = idle)",
		},
	)

	RestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorer_restores_total",
			Help: "Total number of finished restores by status",
		},
		[]string{"status"},
	)

	BlocksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "restorer_blocks_total",
			Help: "Number of restore blocks of the active plan by status",
		},
		[]string{"status"},
	)

	OfferRequirementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restorer_offer_requirements_total",
			Help: "Total number of resource claims submitted to the allocator",
		},
	)

	TasksLaunched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restorer_tasks_launched_total",
			Help: "Total number of restore containers launched",
		},
	)

	TasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "restorer_tasks_finished_total",
			Help: "Total number of restore tasks reaching a terminal state",
		},
		[]string{"state"},
	)

	TickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "restorer_plan_tick_errors_total",
			Help: "Total number of block errors observed while executing plans",
		},
	)
)

func init() {
	prometheus.MustRegister(RestoreActive)
	prometheus.MustRegister(RestoresTotal)
	prometheus.MustRegister(BlocksTotal)
	prometheus.MustRegister(OfferRequirementsTotal)
	prometheus.MustRegister(TasksLaunched)
	prometheus.MustRegister(TasksFinished)
	prometheus.MustRegister(TickErrors)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
