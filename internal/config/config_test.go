package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_FailsWhenNoAPIKey(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error when no OPEN_WEATHER_KEY and no secrets file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Load() error = %v, want ErrMissingAPIKey", err)
	}
	if !strings.Contains(err.Error(), "OPEN_WEATHER_KEY") {
		t.Errorf("Load() error = %v, want message containing OPEN_WEATHER_KEY", err)
	}
}

func TestLoad_FailsWhenSecretsFileHasEmptyKey(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "open_weather_key: \"  \"\n")
	chdir(t, dir)

	if _, err := Load(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Load() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoad_SucceedsWithSecretsFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "open_weather_key: key-from-secrets-file\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-secrets-file" {
		t.Errorf("WeatherAPIKey = %q, want key from secrets file", cfg.WeatherAPIKey)
	}
}

func TestLoad_SucceedsWithDotEnv(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "open_weather_key: key-from-secrets-file\n")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPEN_WEATHER_KEY=key-from-dotenv\nWEATHER_LANG=ru\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-dotenv" {
		t.Errorf("WeatherAPIKey = %q, want .env to win over secrets file", cfg.WeatherAPIKey)
	}
	if cfg.Lang != "ru" {
		t.Errorf("Lang = %q, want ru from .env", cfg.Lang)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "key-from-env")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPEN_WEATHER_KEY=key-from-dotenv\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "key-from-env" {
		t.Errorf("WeatherAPIKey = %q, want process env to win", cfg.WeatherAPIKey)
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	isolateEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")
	chdir(t, findProjectRoot(t))

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"9090\"\n")
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.GeocodeURL != "https://api.openweathermap.org/geo/1.0/direct" ||
		cfg.CurrentURL != "https://api.openweathermap.org/data/2.5/weather" ||
		cfg.ForecastURL != "https://api.openweathermap.org/data/2.5/forecast" {
		t.Errorf("URLs = %s %s %s, want OpenWeatherMap defaults", cfg.GeocodeURL, cfg.CurrentURL, cfg.ForecastURL)
	}
	if cfg.WeatherAPITimeout != 5*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 5s", cfg.WeatherAPITimeout)
	}
	if cfg.RequestTimeout != 0 {
		t.Errorf("RequestTimeout = %v, want 0 (disabled)", cfg.RequestTimeout)
	}
	if cfg.Lang != "en" {
		t.Errorf("Lang = %q, want en", cfg.Lang)
	}
	if cfg.MaxCityLength != 100 {
		t.Errorf("MaxCityLength = %d, want 100", cfg.MaxCityLength)
	}
	if cfg.ItineraryConcurrency != 4 || !cfg.ItineraryCoalesce {
		t.Errorf("itinerary = %d/%v, want 4/true", cfg.ItineraryConcurrency, cfg.ItineraryCoalesce)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
	if cfg.TracingEndpoint != "" || cfg.TracingSampleRatio != 1 {
		t.Errorf("tracing = %q/%v, want disabled with ratio 1", cfg.TracingEndpoint, cfg.TracingSampleRatio)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.DegradedWindow != time.Minute || cfg.DegradedErrorPct != 50 || cfg.DegradedMinSamples != 5 {
		t.Errorf("degraded = %v/%d/%d, want 1m/50/5", cfg.DegradedWindow, cfg.DegradedErrorPct, cfg.DegradedMinSamples)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
server:
  port: "8081"
weather_api:
  geocode_url: "http://localhost:9000/geo/1.0/direct"
  current_url: "http://localhost:9000/data/2.5/weather"
  forecast_url: "http://localhost:9000/data/2.5/forecast"
  timeout: "3s"
  lang: "RU"
request:
  timeout: "20s"
  max_city_length: 64
itinerary:
  concurrency: 8
  coalesce: false
cors:
  allowed_origins: ["https://example.com"]
tracing:
  endpoint: "http://collector:4318"
  sample_ratio: 0.25
shutdown:
  timeout: "10s"
health:
  degraded_window: "2m"
  degraded_error_pct: 25
  degraded_min_samples: 10
metrics:
  tracked_cities: ["paris", "moscow"]
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeocodeURL != "http://localhost:9000/geo/1.0/direct" {
		t.Errorf("GeocodeURL = %q", cfg.GeocodeURL)
	}
	if cfg.WeatherAPITimeout != 3*time.Second || cfg.RequestTimeout != 20*time.Second {
		t.Errorf("timeouts = %v/%v, want 3s/20s", cfg.WeatherAPITimeout, cfg.RequestTimeout)
	}
	if cfg.Lang != "ru" {
		t.Errorf("Lang = %q, want lowercased ru", cfg.Lang)
	}
	if cfg.MaxCityLength != 64 {
		t.Errorf("MaxCityLength = %d, want 64", cfg.MaxCityLength)
	}
	if cfg.ItineraryConcurrency != 8 || cfg.ItineraryCoalesce {
		t.Errorf("itinerary = %d/%v, want 8/false", cfg.ItineraryConcurrency, cfg.ItineraryCoalesce)
	}
	if cfg.CORSAllowedOrigins[0] != "https://example.com" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.TracingEndpoint != "http://collector:4318" || cfg.TracingSampleRatio != 0.25 {
		t.Errorf("tracing = %q/%v", cfg.TracingEndpoint, cfg.TracingSampleRatio)
	}
	if len(cfg.TrackedCities) != 2 {
		t.Errorf("TrackedCities = %v, want 2 entries", cfg.TrackedCities)
	}
	if cfg.DegradedWindow != 2*time.Minute || cfg.DegradedErrorPct != 25 || cfg.DegradedMinSamples != 10 {
		t.Errorf("degraded = %v/%d/%d, want 2m/25/10", cfg.DegradedWindow, cfg.DegradedErrorPct, cfg.DegradedMinSamples)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	t.Setenv("PORT", "7070")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel:4318")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "7070" {
		t.Errorf("ServerPort = %q, want 7070 from PORT", cfg.ServerPort)
	}
	if cfg.TracingEndpoint != "http://otel:4318" || cfg.TracingSampleRatio != 0.5 {
		t.Errorf("tracing = %q/%v, want env values", cfg.TracingEndpoint, cfg.TracingSampleRatio)
	}
}

func TestLoad_InvalidDurationFallsBackToDefault(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: "not-a-duration"
shutdown:
  timeout: "-5s"
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 5*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want default 5s", cfg.WeatherAPITimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoad_RequestTimeoutRaisedAboveUpstreamTimeout(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, `
weather_api:
  timeout: "4s"
request:
  timeout: "2s"
`)
	chdir(t, dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s (upstream timeout + 1s)", cfg.RequestTimeout)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "zero upstream timeout",
			yaml:    "weather_api:\n  timeout: \"0s\"\n",
			wantMsg: "weather_api.timeout",
		},
		{
			name:    "relative URL",
			yaml:    "weather_api:\n  forecast_url: \"/data/2.5/forecast\"\n",
			wantMsg: "weather_api.forecast_url",
		},
		{
			name:    "sample ratio out of range",
			yaml:    "tracing:\n  sample_ratio: 2\n",
			wantMsg: "tracing.sample_ratio",
		},
		{
			name:    "error percentage above 100",
			yaml:    "health:\n  degraded_error_pct: 120\n",
			wantMsg: "health.degraded_error_pct",
		},
		{
			name:    "negative request timeout",
			yaml:    "request:\n  timeout: \"-1s\"\n",
			wantMsg: "request.timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)
			t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
			dir := t.TempDir()
			writeEnvFile(t, dir, tt.yaml)
			chdir(t, dir)

			cfg, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error, got config %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want message containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_InvalidSecretsYAML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeSecretsFile(t, dir, "open_weather_key: [unclosed\n")
	chdir(t, dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse secrets file") {
		t.Errorf("Load() error = %v, want parse secrets file error", err)
	}
}

func TestLoad_InvalidConfigYAML(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	dir := t.TempDir()
	writeEnvFile(t, dir, "server: [port\n")
	chdir(t, dir)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse config file") {
		t.Errorf("Load() error = %v, want parse config file error", err)
	}
}

func TestLoad_SucceedsWithProjectConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPEN_WEATHER_KEY", "test-key-1234567890")
	chdir(t, findProjectRoot(t))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPIKey != "test-key-1234567890" {
		t.Errorf("WeatherAPIKey = %q, want test key", cfg.WeatherAPIKey)
	}
	if cfg.ForecastURL == "" || cfg.ServerPort == "" {
		t.Errorf("Load() did not populate config from config/dev.yaml")
	}
}

const minimalEnvYAML = `
server:
  port: "8080"
weather_api:
  timeout: "2s"
request:
  timeout: "5s"
shutdown:
  timeout: "10s"
`

// isolateEnv unsets every variable Load reads and restores them after the test.
// Unset (rather than empty) matters: godotenv skips keys that exist in the environment.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV_NAME", "OPEN_WEATHER_KEY", "PORT", "WEATHER_LANG",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_TRACES_SAMPLER_ARG",
	} {
		saved, ok := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, saved)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func writeSecretsFile(t *testing.T, dir, content string) {
	t.Helper()
	secretsDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(secretsDir, "secrets.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("write secrets file: %v", err)
	}
}

// TestCoverageGaps_IntentionallyUntested documents paths we reviewed but chose not to test.
// Run with -v to see skip reasons. These gaps do not affect coverage targets.
func TestCoverageGaps_IntentionallyUntested(t *testing.T) {
	t.Run("loadAPIKey_read_error", func(t *testing.T) {
		t.Skip("read-error path (non-IsNotExist) requires simulated ReadFile failure; would need OS-specific tricks or afero, not worth portability cost")
	})
	t.Run("Load_read_config_error", func(t *testing.T) {
		t.Skip("ReadFile error path (permission denied, etc.) same as loadAPIKey; would require injecting failure")
	})
	t.Run("Load_malformed_dotenv", func(t *testing.T) {
		t.Skip("godotenv accepts nearly any line; a parse failure needs an unterminated quote whose exact handling varies by godotenv version")
	})
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "config", "dev.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("config/dev.yaml not found (run tests from project root)")
		}
		dir = parent
	}
}
