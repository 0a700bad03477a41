package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/hochfrequenz/project-tracker/internal/domain"
)

type metrics struct {
	runsTotal  *prometheus.CounterVec
	stageTotal *prometheus.CounterVec
	duration   prometheus.Histogram
	costTotal  prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by result.",
		}, []string{"result"}),
		stageTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "import",
			Name:      "stage_total",
			Help:      "Total number of import stage outcomes.",
		}, []string{"stage", "status"}),
		duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tracker",
			Subsystem: "import",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of import runs.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		costTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "tracker",
			Subsystem: "import",
			Name:      "cost_usd_total",
			Help:      "Aggregated AI cost reported by import stages.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func recordStage(stage string, status domain.StageStatus) {
	getMetrics().stageTotal.WithLabelValues(stage, string(status)).Inc()
}

func recordRun(success bool, d time.Duration, cost decimal.Decimal) {
	m := getMetrics()
	result := "success"
	if !success {
		result = "failure"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
	if f, _ := cost.Float64(); f > 0 {
		m.costTotal.Add(f)
	}
}
