package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConsoleRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eduadmin", Name: "console_requests_total", Help: "Console HTTP requests by method and status",
	}, []string{"method", "status"})
	ConsoleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eduadmin", Name: "console_request_seconds", Help: "Console HTTP request latency",
		Buckets: prometheus.DefBuckets,
	})
	UpstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eduadmin", Name: "upstream_calls_total", Help: "REST API calls by endpoint, method and outcome",
	}, []string{"endpoint", "method", "outcome"})
	UpstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eduadmin", Name: "upstream_call_seconds", Help: "REST API call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	SessionQueries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "eduadmin", Name: "session_query_seconds", Help: "Session store query latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ConsoleRequests, ConsoleDuration, UpstreamCalls, UpstreamDuration, SessionQueries)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveRequest records one console request.
func ObserveRequest(method string, status int, d time.Duration) {
	ConsoleRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	ConsoleDuration.Observe(d.Seconds())
}

// ObserveUpstream records one REST API call. outcome is "ok", an HTTP status code, or
// "transport" when no response arrived.
func ObserveUpstream(endpoint, method, outcome string, d time.Duration) {
	UpstreamCalls.WithLabelValues(endpoint, method, outcome).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func ObserveSessionQuery(d time.Duration) { SessionQueries.Observe(d.Seconds()) }
