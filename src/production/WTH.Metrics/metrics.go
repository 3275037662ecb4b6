// Package metrics holds the Prometheus collectors shared by the API and ingestor services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	engine "gitlab.com/maplesense1/wth.sensor_server/src/production/WTH.Engine"
)

// Label values
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"

	ModeLatest = "latest"
	ModeRanged = "ranged"

	ResultOK      = "ok"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

var (
	ReadingsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wth_readings_submitted_total",
		Help: "Readings received, by source and outcome.",
	}, []string{"source", "result"})

	Queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wth_queries_total",
		Help: "Sensor queries, by mode and outcome.",
	}, []string{"mode", "result"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wth_query_duration_seconds",
		Help:    "Time spent resolving sensor queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})
)

// Result classifies an engine outcome into a result label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case engine.IsValidation(err):
		return ResultInvalid
	default:
		return ResultError
	}
}
