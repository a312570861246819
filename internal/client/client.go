package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/validation"
)

// Geocoder resolves a free-text city name to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, city string) (models.Coordinate, error)
}

// WeatherClient fetches the current reading or a 3-hourly forecast for a location.
type WeatherClient interface {
	CurrentWeather(ctx context.Context, loc Location) (models.Reading, error)
	Forecast(ctx context.Context, loc Location, days int) (models.Forecast, error)
}

var (
	// ErrNotFound means the geocoder produced no coordinates for the query. It covers
	// transport failures as well as empty match lists; callers treat it as an expected outcome.
	ErrNotFound = errors.New("city not found")
	// ErrUnavailable means no usable weather payload could be obtained.
	ErrUnavailable = errors.New("weather unavailable")
	// ErrInvalidAPIKey is returned at construction or by ValidateAPIKey.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Metric and span names for the three upstream endpoints.
const (
	EndpointGeocode  = "geocode"
	EndpointCurrent  = "current"
	EndpointForecast = "forecast"
)

const (
	// MaxForecastDays is the horizon of the 5 day / 3 hour forecast endpoint.
	MaxForecastDays = 5
	pointsPerDay    = 8
	maxBodyBytes    = 1 << 20
)

// Endpoints holds the upstream URLs. Zero fields fall back to DefaultEndpoints.
type Endpoints struct {
	GeocodeURL  string
	CurrentURL  string
	ForecastURL string
}

// DefaultEndpoints returns the public OpenWeatherMap URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		GeocodeURL:  "https://api.openweathermap.org/geo/1.0/direct",
		CurrentURL:  "https://api.openweathermap.org/data/2.5/weather",
		ForecastURL: "https://api.openweathermap.org/data/2.5/forecast",
	}
}

// Options configures an OpenWeatherClient. It is read once at construction.
type Options struct {
	APIKey        string
	Endpoints     Endpoints
	Timeout       time.Duration // transport timeout per call; 0 means http.Client default
	Lang          string        // display locale for condition text, e.g. "en", "ru"
	MaxCityLength int
	Outcomes      OutcomeRecorder // optional; told about every upstream call
}

// OutcomeRecorder receives the outcome of each upstream call. Lookups that fail
// because of the caller's input (unknown city) count as successes.
type OutcomeRecorder interface {
	RecordSuccess()
	RecordFailure()
}

// Location is what a weather lookup is keyed by: a city name or a resolved coordinate.
// The coordinate wins when both are set.
type Location struct {
	City       string
	Coordinate *models.Coordinate
}

// ByCity returns a Location queried by name.
func ByCity(name string) Location {
	return Location{City: name}
}

// ByCoordinate returns a Location queried by latitude/longitude, keeping the
// city name for display.
func ByCoordinate(city string, c models.Coordinate) Location {
	return Location{City: city, Coordinate: &c}
}

func (l Location) String() string {
	if l.Coordinate != nil {
		return fmt.Sprintf("%s (%.4f,%.4f)", l.City, l.Coordinate.Lat, l.Coordinate.Lon)
	}
	return l.City
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Code)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// OpenWeatherClient implements Geocoder and WeatherClient against OpenWeatherMap.
// Every method makes exactly one upstream call; there is no retry and no caching.
type OpenWeatherClient struct {
	apiKey        string
	endpoints     Endpoints
	lang          string
	maxCityLength int
	outcomes      OutcomeRecorder
	client        *http.Client
}

// NewOpenWeatherClient validates the options and returns a ready client.
func NewOpenWeatherClient(opts Options) (*OpenWeatherClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(opts.APIKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	def := DefaultEndpoints()
	eps := opts.Endpoints
	if eps.GeocodeURL == "" {
		eps.GeocodeURL = def.GeocodeURL
	}
	if eps.CurrentURL == "" {
		eps.CurrentURL = def.CurrentURL
	}
	if eps.ForecastURL == "" {
		eps.ForecastURL = def.ForecastURL
	}
	lang := strings.TrimSpace(opts.Lang)
	if lang == "" {
		lang = "en"
	}
	maxLen := opts.MaxCityLength
	if maxLen <= 0 {
		maxLen = validation.DefaultMaxCityLength
	}

	return &OpenWeatherClient{
		apiKey:        opts.APIKey,
		endpoints:     eps,
		lang:          lang,
		maxCityLength: maxLen,
		outcomes:      opts.Outcomes,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// Resolve geocodes city to its best match. Any failure, including an empty or
// invalid query (rejected before the network), yields an error wrapping ErrNotFound.
func (c *OpenWeatherClient) Resolve(ctx context.Context, city string) (models.Coordinate, error) {
	name, err := validation.ValidateCity(city, c.maxCityLength)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", "1")

	var matches []geocodeMatch
	if err := c.getJSON(ctx, EndpointGeocode, c.endpoints.GeocodeURL, params, &matches); err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: geocode %q: %w", ErrNotFound, name, err)
	}
	if len(matches) == 0 {
		recordFailure(EndpointGeocode, ErrNotFound)
		return models.Coordinate{}, fmt.Errorf("%w: no match for %q", ErrNotFound, name)
	}
	m := matches[0]
	if m.Lat == nil || m.Lon == nil {
		err := fmt.Errorf("%w: match for %q has no coordinates", ErrNotFound, name)
		recordFailure(EndpointGeocode, err)
		return models.Coordinate{}, err
	}
	return models.Coordinate{Lat: *m.Lat, Lon: *m.Lon}, nil
}

// CurrentWeather fetches the current reading for loc.
func (c *OpenWeatherClient) CurrentWeather(ctx context.Context, loc Location) (models.Reading, error) {
	params, err := c.locationParams(loc)
	if err != nil {
		return models.Reading{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var resp currentResponse
	if err := c.getJSON(ctx, EndpointCurrent, c.endpoints.CurrentURL, params, &resp); err != nil {
		return models.Reading{}, fmt.Errorf("%w: current weather for %s: %w", ErrUnavailable, loc, err)
	}
	if resp.Main == nil {
		err := fmt.Errorf("%w: current weather for %s: payload has no main block", ErrUnavailable, loc)
		recordFailure(EndpointCurrent, err)
		return models.Reading{}, err
	}
	return resp.toCurrentReading(time.Now()), nil
}

// Forecast fetches the 3-hourly forecast for loc. days > 0 limits the horizon
// (capped at MaxForecastDays); 0 returns everything the provider serves.
func (c *OpenWeatherClient) Forecast(ctx context.Context, loc Location, days int) (models.Forecast, error) {
	params, err := c.locationParams(loc)
	if err != nil {
		return models.Forecast{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if days > 0 {
		params.Set("cnt", strconv.Itoa(min(days, MaxForecastDays)*pointsPerDay))
	}

	var resp forecastResponse
	if err := c.getJSON(ctx, EndpointForecast, c.endpoints.ForecastURL, params, &resp); err != nil {
		return models.Forecast{}, fmt.Errorf("%w: forecast for %s: %w", ErrUnavailable, loc, err)
	}
	if len(resp.List) == 0 {
		err := fmt.Errorf("%w: forecast for %s: payload has no list entries", ErrUnavailable, loc)
		recordFailure(EndpointForecast, err)
		return models.Forecast{}, err
	}

	name := loc.City
	if name == "" {
		name = resp.City.Name
	}
	f := models.Forecast{
		City:           name,
		TimezoneOffset: resp.City.Timezone,
		Readings:       make([]models.Reading, 0, len(resp.List)),
	}
	for _, item := range resp.List {
		f.Readings = append(f.Readings, item.toForecastReading())
	}
	return f, nil
}

// ValidateAPIKey issues a single geocoding call and reports whether the key is accepted.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{}
	params.Set("q", "London")
	params.Set("limit", "1")
	var matches []geocodeMatch
	err := c.getJSON(ctx, EndpointGeocode, c.endpoints.GeocodeURL, params, &matches)
	var se *StatusError
	if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) locationParams(loc Location) (url.Values, error) {
	params := url.Values{}
	if loc.Coordinate != nil {
		params.Set("lat", strconv.FormatFloat(loc.Coordinate.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(loc.Coordinate.Lon, 'f', -1, 64))
	} else {
		name, err := validation.ValidateCity(loc.City, c.maxCityLength)
		if err != nil {
			return nil, err
		}
		params.Set("q", name)
	}
	params.Set("units", "metric")
	params.Set("lang", c.lang)
	return params, nil
}

// getJSON performs one GET against endpoint and decodes the body into dst.
// appid is added here so it never appears in logs or span attributes.
func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, rawURL string, params url.Values, dst any) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "openweather."+endpoint)
	span.SetAttributes(attribute.String("upstream.endpoint", endpoint))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			recordFailure(endpoint, err)
		}
		c.recordOutcome(err)
		span.End()
	}()

	start := time.Now()
	req, err := c.buildRequest(ctx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: upstreamMessage(body)}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func (c *OpenWeatherClient) recordOutcome(err error) {
	if c.outcomes == nil || errors.Is(err, context.Canceled) {
		return
	}
	if err == nil {
		c.outcomes.RecordSuccess()
		return
	}
	switch CategorizeError(err) {
	case ErrorCategoryNotFound, ErrorCategoryValidation:
		c.outcomes.RecordSuccess()
	default:
		c.outcomes.RecordFailure()
	}
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	q := baseURL.Query()
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("appid", c.apiKey)
	baseURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// upstreamMessage extracts OpenWeatherMap's {"message": ...} error text, if any.
func upstreamMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Message
	}
	return ""
}

func recordFailure(endpoint string, err error) {
	observability.UpstreamErrorsTotal.WithLabelValues(endpoint, string(CategorizeError(err))).Inc()
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
