// Package metrics records pipeline measurements in prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Collector implements pipeline.Recorder.
type Collector struct {
	attemptsTotal     *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	repairsTotal      *prometheus.CounterVec
	resultsTotal      *prometheus.CounterVec
	resultAttempts    *prometheus.HistogramVec
	executionDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
}

// NewCollector registers the pipeline collectors with registerer under namespace. A nil
// registerer uses prometheus.DefaultRegisterer.
func NewCollector(namespace string, registerer prometheus.Registerer) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Collector{
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Generation attempts by schema and outcome",
			},
			[]string{"schema", "outcome"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Duration of a single generation attempt in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"schema"},
		),
		repairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Repair passes by schema and result",
			},
			[]string{"schema", "result"},
		),
		resultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Pipeline executions by schema and result",
			},
			[]string{"schema", "result"},
		),
		resultAttempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "result_attempts",
				Help:      "Generation attempts consumed per execution",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"schema"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of a pipeline execution in seconds",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"schema", "result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (c *Collector) ObserveAttempt(schemaName string, outcome string, elapsed time.Duration) {
	c.attemptsTotal.WithLabelValues(schemaName, outcome).Inc()
	c.attemptDuration.WithLabelValues(schemaName).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRepair(schemaName string, success bool) {
	c.repairsTotal.WithLabelValues(schemaName, resultLabel(success)).Inc()
}

func (c *Collector) ObserveResult(schemaName string, success bool, attempts int, elapsed time.Duration) {
	result := resultLabel(success)
	c.resultsTotal.WithLabelValues(schemaName, result).Inc()
	c.resultAttempts.WithLabelValues(schemaName).Observe(float64(attempts))
	c.executionDuration.WithLabelValues(schemaName, result).Observe(elapsed.Seconds())
}

// ObserveCacheLookup counts response cache hits and misses.
func (c *Collector) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// WriteTextfile writes every metric gathered by gatherer to path in the text exposition
// format, for the node_exporter textfile collector.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

func resultLabel(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}
