package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain/entities/schema"
)

var tracer = otel.Tracer("eam-transfer")

type metrics struct {
	rowsTotal *prometheus.CounterVec
	runsTotal *prometheus.CounterVec

	storeCallLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eam_transfer",
			Name:      "rows_total",
			Help:      "Total number of rows processed by the importer broken down by phase and result.",
		}, []string{"entity_type", "phase", "result"}),
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eam_transfer",
			Name:      "runs_total",
			Help:      "Total number of transfer runs broken down by operation and result.",
		}, []string{"operation", "result"}),
		storeCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eam_transfer",
			Name:      "store_call_seconds",
			Help:      "Latency distribution of entity store calls.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"entity_type", "op", "result"}),
	}
})

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func recordRow(t schema.EntityType, phase string, result string) {
	metricsSingleton().rowsTotal.WithLabelValues(string(t), phase, result).Inc()
}

func recordRun(operation string, err error) {
	metricsSingleton().runsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

func observeStoreCall(t schema.EntityType, op string, err error, d time.Duration) {
	metricsSingleton().storeCallLatency.WithLabelValues(string(t), op, resultLabel(err)).Observe(d.Seconds())
}
