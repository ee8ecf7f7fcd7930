package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	seedWorker = "seed_worker"

	// Seed metrics
	seedsProcessedTotal = "seeds_processed_total"
	fetchTotal          = "fetch_total"
	expansionDuration   = "expansion_duration_seconds"
	lastPollTimestamp   = "last_poll_timestamp_seconds"

	// Labels
	outcomeLabel = "outcome"
	resultLabel  = "result"
)

// Fetch results
const (
	FetchFound = "found"
	FetchEmpty = "empty"
	FetchError = "error"
)

/**
* Metrics definition
**/
var seedsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: seedWorker,
		Name:      seedsProcessedTotal,
		Help:      "number of worker cycles partitioned by outcome",
	},
	[]string{outcomeLabel},
)

var fetchTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: seedWorker,
		Name:      fetchTotal,
		Help:      "number of pending seed fetches partitioned by result",
	},
	[]string{resultLabel},
)

var expansionDurationMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: seedWorker,
		Name:      expansionDuration,
		Help:      "time spent expanding a seed, failures included",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	},
)

var lastPollTimestampMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: seedWorker,
		Name:      lastPollTimestamp,
		Help:      "unix time of the last fetch from the store",
	},
)

func IncreaseSeedsProcessedMetric(outcome string) {
	seedsProcessedTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func IncreaseFetchTotalMetric(result string) {
	fetchTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func ObserveExpansionDuration(d time.Duration) {
	expansionDurationMetric.Observe(d.Seconds())
}

func SetLastPollTimestamp(t time.Time) {
	lastPollTimestampMetric.Set(float64(t.Unix()))
}

type PrometheusMetricsHandler struct {
	handler http.Handler
}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{handler: promhttp.Handler()}
}

func (p *PrometheusMetricsHandler) Handler() http.Handler {
	return p.handler
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(seedsProcessedTotalMetric)
	prometheus.MustRegister(fetchTotalMetric)
	prometheus.MustRegister(expansionDurationMetric)
	prometheus.MustRegister(lastPollTimestampMetric)
}
