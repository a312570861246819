package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/itinerary"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/present"
)

// Orchestrator is the itinerary behaviour the handlers depend on.
type Orchestrator interface {
	Build(ctx context.Context, req itinerary.Request) (*itinerary.Result, error)
	Resolve(ctx context.Context, cities []string, req itinerary.Request) *itinerary.Result
}

// KeyValidator checks the upstream API key. Used by /health; may be nil.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// UpstreamMonitor reports whether recent upstream calls have been failing.
type UpstreamMonitor interface {
	Degraded() bool
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orchestrator Orchestrator
	validator    KeyValidator
	upstream     UpstreamMonitor
	logger       *zap.Logger

	draining         atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. validator and upstream may be nil; /health then
// skips the corresponding check.
func NewHandler(orchestrator Orchestrator, validator KeyValidator, upstream UpstreamMonitor, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: orchestrator,
		validator:    validator,
		upstream:     upstream,
		logger:       logger,
	}
}

// BeginShutdown marks the handler as draining. /health answers 503 from then on so
// load balancers stop routing new traffic while in-flight requests finish.
func (h *Handler) BeginShutdown() {
	h.draining.Store(true)
}

// Draining reports whether BeginShutdown was called.
func (h *Handler) Draining() bool {
	return h.draining.Load()
}

// GetIndex handles GET /: the empty itinerary form.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, "index.html", formPage{ShowMap: true})
}

// PostIndex handles POST /: builds the itinerary strictly and renders results, or
// re-renders the form with the failure explained inline.
func (h *Handler) PostIndex(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderPage(w, r, http.StatusBadRequest, "index.html", formPage{Error: "Could not read the form."})
		return
	}
	page := formPage{
		Start:   r.PostForm.Get("start"),
		End:     r.PostForm.Get("end"),
		Stops:   r.PostForm.Get("stops"),
		Days:    r.PostForm.Get("days"),
		ShowMap: r.PostForm.Get("show_map") != "",
	}

	days, err := parseDays(page.Days)
	if err != nil {
		page.Error = err.Error()
		renderPage(w, r, http.StatusBadRequest, "index.html", page)
		return
	}
	mode := itinerary.ModeCurrent
	if days > 0 {
		mode = itinerary.ModeForecast
	}

	res, err := h.orchestrator.Build(r.Context(), itinerary.Request{
		Start:           page.Start,
		End:             page.End,
		Stops:           page.Stops,
		Mode:            mode,
		WithCoordinates: page.ShowMap,
		Days:            days,
	})
	if err != nil {
		status, _, msg := itineraryErrorStatus(err)
		if status == http.StatusInternalServerError {
			observability.LoggerFromContext(r.Context()).Error("itinerary build failed", zap.Error(err))
		}
		page.Error = msg
		renderPage(w, r, status, "index.html", page)
		return
	}

	page.Result = newResultView(res, page)
	renderPage(w, r, http.StatusOK, "index.html", page)
}

// GetDashboard handles GET /dashboard. It is lenient: cities that cannot be resolved
// are left off the map, and a chart failure shows a message instead of failing the page.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := dashboardPage{
		Start:         q.Get("start"),
		End:           q.Get("end"),
		Stops:         q.Get("stops"),
		Days:          q.Get("days"),
		AllIndicators: present.AllIndicators(),
	}
	indicators := present.AllIndicators()
	if _, set := q["indicators"]; set {
		indicators = present.ParseIndicators(q["indicators"])
	}
	page.Indicators = make(map[present.Indicator]bool, len(indicators))
	for _, ind := range indicators {
		page.Indicators[ind] = true
	}

	days, err := parseDays(page.Days)
	if err != nil {
		page.Message = err.Error()
		page.Figure = present.MessageFigure(page.Message)
		renderPage(w, r, http.StatusBadRequest, "dashboard.html", page)
		return
	}

	page.Cities = itinerary.ParseCities(page.Start, page.End, page.Stops)
	if len(page.Cities) == 0 {
		page.Message = "Enter at least one city."
		page.Figure = present.MessageFigure(page.Message)
		renderPage(w, r, http.StatusOK, "dashboard.html", page)
		return
	}
	page.Selected = selectCity(page.Cities, q.Get("city"))

	res := h.orchestrator.Resolve(r.Context(), page.Cities, itinerary.Request{
		Mode:            itinerary.ModeForecast,
		WithCoordinates: true,
		Days:            days,
	})
	page.Map = present.ToMapLayers(res.CityWeather())

	stop, ok := res.ByCity(page.Selected)
	if !ok || stop.Err != nil || stop.Forecast == nil {
		page.Message = fmt.Sprintf("Could not fetch data for %s.", page.Selected)
		page.Figure = present.MessageFigure(page.Message)
	} else {
		chart := present.ToChartSeries(stop.City, *stop.Forecast, indicators)
		page.Figure = chart.Figure(stop.Forecast.TimezoneOffset)
	}
	renderPage(w, r, http.StatusOK, "dashboard.html", page)
}

// itineraryResponse is the JSON body of GET /api/itinerary.
type itineraryResponse struct {
	*itinerary.Result
	Map *present.MapSpec `json:"map,omitempty"`
}

// GetItinerary handles GET /api/itinerary.
func (h *Handler) GetItinerary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := itinerary.ParseMode(q.Get("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_MODE", "mode must be current or forecast")
		return
	}
	days, err := parseDays(q.Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", err.Error())
		return
	}
	withMap := parseBool(q.Get("map"))

	res, err := h.orchestrator.Build(r.Context(), itinerary.Request{
		Start:           q.Get("start"),
		End:             q.Get("end"),
		Stops:           q.Get("stops"),
		Mode:            mode,
		WithCoordinates: withMap,
		Days:            days,
	})
	if err != nil {
		writeItineraryError(w, r, err)
		return
	}

	resp := itineraryResponse{Result: res}
	if withMap {
		m := present.ToMapLayers(res.CityWeather())
		resp.Map = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetChart handles GET /api/chart: the forecast chart for one city.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := strings.TrimSpace(q.Get("city"))
	if city == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_CITY", "city is required")
		return
	}
	days, err := parseDays(q.Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", err.Error())
		return
	}
	indicators := present.AllIndicators()
	if _, set := q["indicators"]; set {
		indicators = present.ParseIndicators(q["indicators"])
	}

	res := h.orchestrator.Resolve(r.Context(), []string{city}, itinerary.Request{Mode: itinerary.ModeForecast, Days: days})
	stop := res.Stops[0]
	if stop.Err != nil || stop.Forecast == nil {
		writeItineraryError(w, r, &itinerary.ValidationError{Kind: itinerary.KindCityUnresolved, City: city, Err: stop.Err})
		return
	}

	chart := present.ToChartSeries(stop.City, *stop.Forecast, indicators)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chart":  chart,
		"figure": chart.Figure(stop.Forecast.TimezoneOffset),
	})
}

// GetMap handles GET /api/map: markers and route as GeoJSON. Unresolvable cities are skipped.
func (h *Handler) GetMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cities := itinerary.ParseCities(q.Get("start"), q.Get("end"), q.Get("stops"))

	var spec present.MapSpec
	if len(cities) == 0 {
		spec = present.ToMapLayers(nil)
	} else {
		res := h.orchestrator.Resolve(r.Context(), cities, itinerary.Request{Mode: itinerary.ModeCurrent, WithCoordinates: true})
		spec = present.ToMapLayers(res.CityWeather())
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(spec.FeatureCollection())
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	switch result.reason {
	case "api_key_invalid", "upstream_unreachable", "upstream_error_rate":
		checks["weatherApi"] = "unhealthy"
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   "dev",
		"checks":    checks,
		"inFlight":  InFlightCount(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order: shutting-down, recent
// upstream error rate, then upstream key validity.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.Draining() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.upstream != nil && h.upstream.Degraded() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_error_rate"}
	}
	if h.validator == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if err := h.validator.ValidateAPIKey(ctx); err != nil {
		if errors.Is(err, client.ErrInvalidAPIKey) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
		return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unreachable"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// itineraryErrorStatus maps a Build error to HTTP status, error code and user message.
func itineraryErrorStatus(err error) (int, string, string) {
	var ve *itinerary.ValidationError
	if errors.As(err, &ve) {
		switch ve.Kind {
		case itinerary.KindMissingEndpoints:
			return http.StatusBadRequest, "MISSING_ENDPOINTS", "Start and end cities are required."
		case itinerary.KindCityUnresolved:
			return http.StatusUnprocessableEntity, "CITY_UNRESOLVED", fmt.Sprintf("Could not get weather for %q.", ve.City)
		}
	}
	return http.StatusInternalServerError, "INTERNAL", "Something went wrong. Please try again."
}

// writeItineraryError writes the JSON error for a failed itinerary lookup. The city is
// echoed in the body so clients can highlight the offending field.
func writeItineraryError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := itineraryErrorStatus(err)
	logger := observability.LoggerFromContext(r.Context())
	if status == http.StatusInternalServerError {
		logger.Error("itinerary failed", zap.Error(err))
	} else {
		logger.Debug("itinerary rejected", zap.Error(err))
	}

	body := map[string]string{
		"code":      code,
		"message":   msg,
		"requestId": observability.CorrelationIDFromContext(r.Context()),
	}
	var ve *itinerary.ValidationError
	if errors.As(err, &ve) && ve.City != "" {
		body["city"] = ve.City
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// parseDays accepts "" (0, provider default) or 1..MaxForecastDays.
func parseDays(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := strconv.Atoi(s)
	if err != nil || d < 0 || d > client.MaxForecastDays {
		return 0, fmt.Errorf("days must be a whole number between 0 and %d", client.MaxForecastDays)
	}
	return d, nil
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// selectCity returns want if it names one of cities (case-insensitive), else the first city.
func selectCity(cities []string, want string) string {
	want = strings.TrimSpace(want)
	for _, c := range cities {
		if strings.EqualFold(c, want) {
			return c
		}
	}
	return cities[0]
}
