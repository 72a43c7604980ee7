// Package metrics exposes Prometheus metrics on /metrics.
//
// Two kinds of series live here:
//   - HTTP: request count and latency per route PATTERN ("/places/{id}", not
//     "/places/cv37rs3pp9olc6atsptg"), so cardinality stays bounded.
//   - Domain: places created/deleted, reviews by star rating, cascade sizes,
//     aggregator latency and logins. Metrics implements service.Recorder.
//
// Each Metrics owns its registry instead of using the global default, so tests
// can build as many as they like without "duplicate metrics collector" panics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trailmap"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	placesCreated     prometheus.Counter
	placesDeleted     prometheus.Counter
	reviewsCascaded   prometheus.Counter
	reviewsCreated    *prometheus.CounterVec
	recomputeDuration prometheus.Histogram
	logins            *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		placesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "places_created_total",
			Help:      "Places created.",
		}),
		placesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "places_deleted_total",
			Help:      "Places deleted.",
		}),
		reviewsCascaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_cascade_deleted_total",
			Help:      "Reviews removed together with their place.",
		}),
		reviewsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_created_total",
			Help:      "Reviews created, by star rating.",
		}, []string{"rating"}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rating_recompute_duration_seconds",
			Help:      "Time to summarize a place's reviews and store the aggregate.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Successful logins by provider and whether the user was new.",
		}, []string{"provider", "new_user"}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.placesCreated,
		m.placesDeleted,
		m.reviewsCascaded,
		m.reviewsCreated,
		m.recomputeDuration,
		m.logins,
	)

	return m
}

// Handler serves the exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records every request. It must be mounted on the chi router so
// the route pattern is known once the request has been routed.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) PlaceCreated() {
	m.placesCreated.Inc()
}

func (m *Metrics) PlaceDeleted(reviewsDeleted int64) {
	m.placesDeleted.Inc()
	m.reviewsCascaded.Add(float64(reviewsDeleted))
}

func (m *Metrics) ReviewCreated(rating int) {
	m.reviewsCreated.WithLabelValues(strconv.Itoa(rating)).Inc()
}

func (m *Metrics) RatingRecomputed(d time.Duration) {
	m.recomputeDuration.Observe(d.Seconds())
}

func (m *Metrics) UserLoggedIn(provider string, created bool) {
	m.logins.WithLabelValues(provider, strconv.FormatBool(created)).Inc()
}
