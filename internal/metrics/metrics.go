// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "meddocs_http_requests_total",
	Help: "Total number of requests labelled by path and status",
}, []string{"path", "status"})

var generatorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "meddocs_generator_calls_total",
	Help: "Generator calls labelled by purpose (answer, section) and outcome",
}, []string{"purpose", "outcome"})

var retrievedPassages = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "meddocs_retrieved_passages",
	Help:    "Passages returned per retrieval after the similarity floor",
	Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
})

var answerConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "meddocs_answer_confidence",
	Help:    "Confidence of grounded answers",
	Buckets: []float64{0, .1, .2, .3, .4, .5, .6, .7, .8, .9, 1},
})

var jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "meddocs_job_duration_seconds",
	Help:    "Time spent processing background jobs",
	Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
}, []string{"kind", "status"})

var dependencyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "meddocs_dependency_latency_seconds",
	Help:    "Latency of external service calls.",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
}, []string{"service"})

var indexFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "meddocs_index_failures_total",
	Help: "Embedding index failures labelled by operation",
}, []string{"operation"})

func RecordHTTPRequest(path string, status int) {
	httpRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func RecordGeneratorCall(purpose string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	generatorCalls.WithLabelValues(purpose, outcome).Inc()
}

func ObserveRetrieved(n int) {
	retrievedPassages.Observe(float64(n))
}

func ObserveConfidence(c float64) {
	answerConfidence.Observe(c)
}

func CaptureJobMetrics(kind, status string, elapsed time.Duration) {
	jobDuration.WithLabelValues(kind, status).Observe(elapsed.Seconds())
}

func CaptureExecutionMetrics(service string, elapsed time.Duration) {
	dependencyLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func IncIndexFailure(operation string) {
	indexFailures.WithLabelValues(operation).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
