// Package telemetry exposes Prometheus collectors for ingest and analysis
// runs. Collectors register with the default registry on import.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "satark"

var (
	// pipelineRuns counts analysis runs. Labels: outcome (ok, error).
	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome",
	}, []string{"outcome"})

	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "duration_seconds",
		Help:      "Wall time of a full pipeline run",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	processedDistricts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "processed_districts",
		Help:      "Districts reported by the latest run",
	})

	criticalDistricts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "critical_districts",
		Help:      "Districts above the critical gap in the latest run",
	})

	anomalousDistricts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "anomalous_districts",
		Help:      "Districts flagged as outliers in the latest run",
	})

	// modelRuns counts detector invocations. Labels: mode (trained, scored, fallback, retrained, skipped).
	modelRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "anomaly",
		Name:      "detections_total",
		Help:      "Anomaly detector invocations by model mode",
	}, []string{"mode"})

	// mergedRows counts rows accepted into a master. Labels: kind.
	mergedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "rows_total",
		Help:      "Normalized rows merged into master tables",
	}, []string{"kind"})

	// masterRows tracks current master table sizes. Labels: kind.
	masterRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "master_rows",
		Help:      "Rows currently held in each master table",
	}, []string{"kind"})

	// fetchedRecords counts records pulled from the open-data API. Labels: kind.
	fetchedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Records fetched from the open-data API",
	}, []string{"kind"})
)

// RunStats is what a finished pipeline run reports.
type RunStats struct {
	Processed int
	Critical  int
	Anomalies int
	Mode      string
	Duration  time.Duration
}

// RecordRun records a successful pipeline run.
func RecordRun(s RunStats) {
	pipelineRuns.WithLabelValues("ok").Inc()
	pipelineDuration.Observe(s.Duration.Seconds())
	processedDistricts.Set(float64(s.Processed))
	criticalDistricts.Set(float64(s.Critical))
	anomalousDistricts.Set(float64(s.Anomalies))
	if s.Mode != "" {
		modelRuns.WithLabelValues(s.Mode).Inc()
	}
}

// RecordRunError records a failed pipeline run.
func RecordRunError() {
	pipelineRuns.WithLabelValues("error").Inc()
}

// RecordMerge records rows accepted into kind's master and its new size.
func RecordMerge(kind string, accepted, total int) {
	mergedRows.WithLabelValues(kind).Add(float64(accepted))
	masterRows.WithLabelValues(kind).Set(float64(total))
}

// RecordFetch records records fetched for kind.
func RecordFetch(kind string, n int) {
	fetchedRecords.WithLabelValues(kind).Add(float64(n))
}
