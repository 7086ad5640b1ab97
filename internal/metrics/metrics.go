package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rb",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests broken down by route, method and status class.",
	}, []string{"route", "method", "result"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rb",
		Subsystem: "http",
		Name:      "latency_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rb",
		Subsystem: "aggregate",
		Name:      "query_seconds",
		Help:      "Latency of primary and satellite read queries.",
		Buckets: []float64{
			0.001, 0.002, 0.005, 0.01,
			0.02, 0.05, 0.1, 0.2,
			0.5, 1, 2, 5,
		},
	}, []string{"query", "result"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rb",
		Subsystem: "events",
		Name:      "handled_total",
		Help:      "Domain events handled by notifiers.",
	}, []string{"event_type", "result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records one read query. Its signature matches aggregate.Observer.
func ObserveQuery(name string, elapsed time.Duration, err error) {
	queryLatency.WithLabelValues(name, result(err)).Observe(elapsed.Seconds())
}

func ObserveEvent(eventType string, err error) {
	notifications.WithLabelValues(eventType, result(err)).Inc()
}

func statusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	return strconv.Itoa(code/100) + "xx"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware labels requests by chi route pattern so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequests.WithLabelValues(route, r.Method, statusClass(rec.status)).Inc()
		httpLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
