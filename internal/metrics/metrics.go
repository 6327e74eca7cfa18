// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Link dispositions recorded by ObserveLink.
const (
	LinkAdmitted   = "admitted"
	LinkRejected   = "rejected"
	LinkOutOfScope = "out_of_scope"
)

var (
	crawlerPagesTotal           *prometheus.CounterVec
	crawlerBytesTotal           prometheus.Counter
	crawlerFetchDurationSeconds prometheus.Histogram
	crawlerLinksTotal           *prometheus.CounterVec
	crawlerCrawlsTotal          *prometheus.CounterVec
	crawlerActiveWorkers        prometheus.Gauge
	crawlerFrontierDepth        prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages processed, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of body bytes fetched.",
			},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		crawlerLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_links_total",
				Help: "Total number of discovered links, labeled by disposition.",
			},
			[]string{"disposition"},
		)

		crawlerCrawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_crawls_total",
				Help: "Total number of crawl runs, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a URL.",
			},
		)

		crawlerFrontierDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_depth",
				Help: "Number of admitted URLs waiting in the frontier.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one processed URL with its pipeline result.
func ObservePage(result string) {
	Init()
	crawlerPagesTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records a successful fetch.
func ObserveFetch(duration time.Duration, bytesFetched int) {
	Init()
	crawlerFetchDurationSeconds.Observe(duration.Seconds())
	if bytesFetched > 0 {
		crawlerBytesTotal.Add(float64(bytesFetched))
	}
}

// ObserveLink counts a discovered link by disposition.
func ObserveLink(disposition string) {
	Init()
	crawlerLinksTotal.WithLabelValues(disposition).Inc()
}

// ObserveCrawl counts a finished crawl run.
func ObserveCrawl(status string) {
	Init()
	crawlerCrawlsTotal.WithLabelValues(status).Inc()
}

// SetFrontierDepth reports the current frontier length.
func SetFrontierDepth(n int) {
	Init()
	crawlerFrontierDepth.Set(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
