package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is the environment variable holding the OpenWeatherMap key.
const APIKeyEnv = "OPEN_WEATHER_KEY"

// ErrMissingAPIKey is returned by Load when no API key is configured anywhere.
var ErrMissingAPIKey = errors.New(APIKeyEnv + " required (set env, .env, or config/secrets.yaml open_weather_key)")

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	GeocodeURL        string
	CurrentURL        string
	ForecastURL       string
	WeatherAPITimeout time.Duration
	Lang              string

	RequestTimeout time.Duration // 0 disables the per-request deadline
	MaxCityLength  int

	ItineraryConcurrency int
	ItineraryCoalesce    bool

	CORSAllowedOrigins []string

	TracingEndpoint    string
	TracingSampleRatio float64

	ShutdownTimeout time.Duration

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		GeocodeURL  string `yaml:"geocode_url"`
		CurrentURL  string `yaml:"current_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
		Lang        string `yaml:"lang"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout       string `yaml:"timeout"`
		MaxCityLength int    `yaml:"max_city_length"`
	} `yaml:"request"`

	Itinerary struct {
		Concurrency int   `yaml:"concurrency"`
		Coalesce    *bool `yaml:"coalesce"`
	} `yaml:"itinerary"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Tracing struct {
		Endpoint    string   `yaml:"endpoint"`
		SampleRatio *float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	OpenWeatherKey string `yaml:"open_weather_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). A .env file in the
// working directory is loaded first and never overrides variables already set.
// The API key comes from OPEN_WEATHER_KEY or config/secrets.yaml. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env file: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}

	cfg.GeocodeURL = firstNonEmpty(fc.WeatherAPI.GeocodeURL, "https://api.openweathermap.org/geo/1.0/direct")
	cfg.CurrentURL = firstNonEmpty(fc.WeatherAPI.CurrentURL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.ForecastURL = firstNonEmpty(fc.WeatherAPI.ForecastURL, "https://api.openweathermap.org/data/2.5/forecast")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.Lang = strings.ToLower(firstNonEmpty(os.Getenv("WEATHER_LANG"), fc.WeatherAPI.Lang, "en"))

	cfg.RequestTimeout = parseDurationOrZero(fc.Request.Timeout, 0)
	cfg.MaxCityLength = fc.Request.MaxCityLength
	if cfg.MaxCityLength <= 0 {
		cfg.MaxCityLength = 100
	}

	cfg.ItineraryConcurrency = fc.Itinerary.Concurrency
	if cfg.ItineraryConcurrency <= 0 {
		cfg.ItineraryConcurrency = 4
	}
	cfg.ItineraryCoalesce = true
	if fc.Itinerary.Coalesce != nil {
		cfg.ItineraryCoalesce = *fc.Itinerary.Coalesce
	}

	cfg.CORSAllowedOrigins = fc.CORS.AllowedOrigins
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	cfg.TracingEndpoint = firstNonEmpty(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), fc.Tracing.Endpoint)
	cfg.TracingSampleRatio = 1
	if fc.Tracing.SampleRatio != nil {
		cfg.TracingSampleRatio = *fc.Tracing.SampleRatio
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse OTEL_TRACES_SAMPLER_ARG: %w", err)
		}
		cfg.TracingSampleRatio = ratio
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinSamples = fc.Health.DegradedMinSamples
	if cfg.DegradedMinSamples <= 0 {
		cfg.DegradedMinSamples = 5
	}
	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadAPIKey reads OPEN_WEATHER_KEY (possibly set from .env), falling back to config/secrets.yaml.
func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	secretsData, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrMissingAPIKey
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	if key := strings.TrimSpace(sec.OpenWeatherKey); key != "" {
		return key, nil
	}
	return "", ErrMissingAPIKey
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// A positive RequestTimeout shorter than one upstream call is raised to leave room for it.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request.timeout must not be negative")
	}
	if cfg.RequestTimeout > 0 && cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	for name, raw := range map[string]string{
		"weather_api.geocode_url":  cfg.GeocodeURL,
		"weather_api.current_url":  cfg.CurrentURL,
		"weather_api.forecast_url": cfg.ForecastURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	if cfg.TracingSampleRatio < 0 || cfg.TracingSampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", cfg.TracingSampleRatio)
	}
	return nil
}
