package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName labels logs, traces and the health payload.
const ServiceName = "route-weather-service"

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. A full itinerary fans out to several upstream calls, so expect
	// this to track the slowest city rather than the sum.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap calls by endpoint (geocode, current, forecast) and status.
	UpstreamCallsTotal *prometheus.CounterVec

	// OpenWeatherMap latency by endpoint. Watch for: p95 > 2s (upstream degradation).
	UpstreamDuration *prometheus.HistogramVec

	// Failed lookups by endpoint and error category (timeout, not_found, parsing, ...).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Itinerary builds by outcome (success, missing_endpoints, city_unresolved).
	ItineraryBuildsTotal *prometheus.CounterVec

	// Number of cities per itinerary build.
	ItineraryStops prometheus.Histogram

	// Verdicts handed out, by value. A spike in "bad" usually means a weather event, not a bug.
	VerdictsTotal *prometheus.CounterVec

	// Lookups that shared an in-flight upstream call with a duplicate stop.
	CoalescedLookupsTotal prometheus.Counter

	// Total city lookups.
	CityLookupsTotal prometheus.Counter

	// Per-city lookup count (allow-list; others go to "other").
	CityLookupsByCityTotal *prometheus.CounterVec

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of OpenWeatherMap calls",
		},
		[]string{"endpoint", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "OpenWeatherMap latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Failed OpenWeatherMap lookups by error category",
		},
		[]string{"endpoint", "category"},
	)
	ItineraryBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itineraryBuildsTotal",
			Help: "Itinerary builds by outcome",
		},
		[]string{"outcome"},
	)
	ItineraryStops = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itineraryStops",
			Help:    "Cities per itinerary build",
			Buckets: []float64{2, 3, 4, 6, 8, 12, 20},
		},
	)
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdictsTotal",
			Help: "Weather verdicts by value",
		},
		[]string{"verdict"},
	)
	CoalescedLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedLookupsTotal",
			Help: "City lookups answered by an identical in-flight call",
		},
	)
	CityLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cityLookupsTotal",
			Help: "Total number of city lookups",
		},
	)
	CityLookupsByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityLookupsByCityTotal",
			Help: "City lookups by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamErrorsTotal,
		ItineraryBuildsTotal, ItineraryStops, VerdictsTotal, CoalescedLookupsTotal,
		CityLookupsTotal, CityLookupsByCityTotal,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities increment "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// RecordCityLookup records a lookup for the given city.
func RecordCityLookup(city string) {
	CityLookupsTotal.Inc()
	CityLookupsByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// MetricCityLabel returns the normalized city when tracked, otherwise "other".
// Keeps label cardinality bounded regardless of user input.
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe in Go
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
