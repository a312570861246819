// Package itinerary turns a start city, an end city and optional stops into
// per-city weather with a verdict for each.
package itinerary

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/route-weather-service/internal/classify"
	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/models"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// Mode selects between current conditions and the 3-hourly forecast.
type Mode string

const (
	ModeCurrent  Mode = "current"
	ModeForecast Mode = "forecast"
)

// ParseMode accepts "current" and "forecast" (case-insensitive). Empty means ModeCurrent.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCurrent:
		return ModeCurrent, nil
	case ModeForecast:
		return ModeForecast, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// DefaultConcurrency bounds per-request upstream fan-out when Options.Concurrency is unset.
const DefaultConcurrency = 4

// Request describes one itinerary lookup.
type Request struct {
	Start string
	End   string
	Stops string // comma-separated intermediate cities

	Mode            Mode
	WithCoordinates bool // geocode every city first and look weather up by coordinate
	Days            int  // forecast horizon; 0 means everything the provider returns
}

// Stop is the resolved weather for one city of the itinerary.
type Stop struct {
	models.CityWeather
	Verdict  classify.Verdict   `json:"verdict,omitempty"`
	Verdicts []classify.Verdict `json:"verdicts,omitempty"` // per forecast reading
	Err      error              `json:"-"`
}

// Result holds one Stop per itinerary city, in itinerary order.
type Result struct {
	Mode  Mode   `json:"mode"`
	Stops []Stop `json:"stops"`
}

// Cities returns the city names in itinerary order.
func (r *Result) Cities() []string {
	out := make([]string, len(r.Stops))
	for i, s := range r.Stops {
		out[i] = s.City
	}
	return out
}

// CityWeather returns the weather part of each stop, for the presentation layer.
func (r *Result) CityWeather() []models.CityWeather {
	out := make([]models.CityWeather, len(r.Stops))
	for i, s := range r.Stops {
		out[i] = s.CityWeather
	}
	return out
}

// ByCity returns the first stop whose city matches name, ignoring case and surrounding space.
func (r *Result) ByCity(name string) (Stop, bool) {
	key := normalizeCity(name)
	for _, s := range r.Stops {
		if normalizeCity(s.City) == key {
			return s, true
		}
	}
	return Stop{}, false
}

// Options configures an Orchestrator.
type Options struct {
	Concurrency int  // max upstream lookups in flight per request; <= 0 uses DefaultConcurrency
	Coalesce    bool // share one upstream call between identical stops of the same request
}

// Orchestrator resolves itineraries against a geocoder and a weather source.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	geocoder    client.Geocoder
	weather     client.WeatherClient
	concurrency int
	coalesce    bool
}

// New creates an Orchestrator.
func New(geocoder client.Geocoder, weather client.WeatherClient, opts Options) *Orchestrator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Orchestrator{
		geocoder:    geocoder,
		weather:     weather,
		concurrency: concurrency,
		coalesce:    opts.Coalesce,
	}
}

// Build resolves the itinerary strictly: empty start or end is rejected without any
// network call, and the first city (in itinerary order) whose lookup fails rejects
// the whole request. On success every stop carries weather and a verdict.
func (o *Orchestrator) Build(ctx context.Context, req Request) (*Result, error) {
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	if strings.TrimSpace(req.Start) == "" || strings.TrimSpace(req.End) == "" {
		observability.ItineraryBuildsTotal.WithLabelValues(string(KindMissingEndpoints)).Inc()
		logger.Debug("itinerary rejected", zap.String("reason", string(KindMissingEndpoints)))
		return nil, &ValidationError{Kind: KindMissingEndpoints}
	}

	ctx, span := observability.Tracer().Start(ctx, "itinerary.build")
	defer span.End()

	cities := ParseCities(req.Start, req.End, req.Stops)
	result := o.resolve(ctx, cities, req)
	observability.ItineraryStops.Observe(float64(len(cities)))
	span.SetAttributes(
		attribute.Int("itinerary.stops", len(cities)),
		attribute.String("itinerary.mode", string(result.Mode)),
	)

	for _, s := range result.Stops {
		if s.Err == nil {
			continue
		}
		observability.ItineraryBuildsTotal.WithLabelValues(string(KindCityUnresolved)).Inc()
		span.SetStatus(codes.Error, "city unresolved")
		logger.Info("itinerary rejected",
			zap.String("reason", string(KindCityUnresolved)),
			zap.String("city", s.City),
			zap.Error(s.Err),
		)
		return nil, &ValidationError{Kind: KindCityUnresolved, City: s.City, Err: s.Err}
	}

	recordVerdicts(result.Stops)
	observability.ItineraryBuildsTotal.WithLabelValues("success").Inc()
	logger.Debug("itinerary built",
		zap.Strings("cities", cities),
		zap.String("mode", string(result.Mode)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Resolve looks up every city and never fails as a whole: a stop whose lookup failed
// carries Err and whatever was resolved before the failure (e.g. its coordinate).
// Start, End and Stops of req are ignored; cities is used as given.
func (o *Orchestrator) Resolve(ctx context.Context, cities []string, req Request) *Result {
	ctx, span := observability.Tracer().Start(ctx, "itinerary.resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("itinerary.stops", len(cities)))

	result := o.resolve(ctx, cities, req)
	logger := observability.LoggerFromContext(ctx)
	for _, s := range result.Stops {
		if s.Err != nil {
			logger.Debug("city skipped", zap.String("city", s.City), zap.Error(s.Err))
		}
	}
	recordVerdicts(result.Stops)
	return result
}

// resolve fans out one lookup per city and assembles the stops in city order.
// Siblings are not cancelled when one fails so that every stop reports its own outcome.
func (o *Orchestrator) resolve(ctx context.Context, cities []string, req Request) *Result {
	mode := req.Mode
	if mode == "" {
		mode = ModeCurrent
	}
	req.Mode = mode

	stops := make([]Stop, len(cities))
	var flights *singleflight.Group
	if o.coalesce {
		flights = &singleflight.Group{}
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, city := range cities {
		g.Go(func() error {
			stops[i] = o.resolveStop(ctx, flights, city, req)
			return nil
		})
	}
	_ = g.Wait()

	return &Result{Mode: mode, Stops: stops}
}

func (o *Orchestrator) resolveStop(ctx context.Context, flights *singleflight.Group, city string, req Request) Stop {
	st := Stop{CityWeather: models.CityWeather{City: city}}
	observability.RecordCityLookup(city)

	loc := client.ByCity(city)
	if req.WithCoordinates {
		coord, err := coalesced(flights, "geocode|"+normalizeCity(city), func() (models.Coordinate, error) {
			return o.geocoder.Resolve(ctx, city)
		})
		if err != nil {
			st.Err = err
			return st
		}
		st.Coordinate = &coord
		loc = client.ByCoordinate(city, coord)
	}

	switch req.Mode {
	case ModeForecast:
		key := "forecast|" + locationKey(loc) + "|" + strconv.Itoa(req.Days)
		f, err := coalesced(flights, key, func() (models.Forecast, error) {
			return o.weather.Forecast(ctx, loc, req.Days)
		})
		if err != nil {
			st.Err = err
			return st
		}
		f.City = city
		st.Forecast = &f
		st.Verdicts = classify.Forecast(f)
		if len(st.Verdicts) > 0 {
			st.Verdict = st.Verdicts[0]
		}
	default:
		r, err := coalesced(flights, "current|"+locationKey(loc), func() (models.Reading, error) {
			return o.weather.CurrentWeather(ctx, loc)
		})
		if err != nil {
			st.Err = err
			return st
		}
		st.Current = &r
		st.Verdict = classify.Classify(r)
	}
	return st
}

// coalesced runs fn once per key among concurrent callers sharing flights.
// A nil group disables coalescing.
func coalesced[T any](flights *singleflight.Group, key string, fn func() (T, error)) (T, error) {
	if flights == nil {
		return fn()
	}
	v, err, shared := flights.Do(key, func() (interface{}, error) {
		return fn()
	})
	if shared {
		observability.CoalescedLookupsTotal.Inc()
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func recordVerdicts(stops []Stop) {
	for _, s := range stops {
		if s.Verdict != "" {
			observability.VerdictsTotal.WithLabelValues(string(s.Verdict)).Inc()
		}
	}
}

func locationKey(loc client.Location) string {
	if loc.Coordinate != nil {
		return strconv.FormatFloat(loc.Coordinate.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(loc.Coordinate.Lon, 'f', 4, 64)
	}
	return normalizeCity(loc.City)
}

func normalizeCity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
