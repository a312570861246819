package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/client"
	"github.com/kjstillabower/route-weather-service/internal/config"
	"github.com/kjstillabower/route-weather-service/internal/degraded"
	httphandler "github.com/kjstillabower/route-weather-service/internal/http"
	"github.com/kjstillabower/route-weather-service/internal/itinerary"
	"github.com/kjstillabower/route-weather-service/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	shutdownTracing, err := observability.SetupTracing(context.Background(), observability.TracingConfig{
		Endpoint:    cfg.TracingEndpoint,
		SampleRatio: cfg.TracingSampleRatio,
	})
	if err != nil {
		logger.Fatal("tracing", zap.Error(err))
	}
	if cfg.TracingEndpoint != "" {
		logger.Info("tracing enabled", zap.String("endpoint", cfg.TracingEndpoint), zap.Float64("sample_ratio", cfg.TracingSampleRatio))
	}

	upstreamHealth := degraded.New(degraded.Config{
		Window:     cfg.DegradedWindow,
		ErrorPct:   cfg.DegradedErrorPct,
		MinSamples: cfg.DegradedMinSamples,
	})

	weatherClient, err := client.NewOpenWeatherClient(client.Options{
		APIKey: cfg.WeatherAPIKey,
		Endpoints: client.Endpoints{
			GeocodeURL:  cfg.GeocodeURL,
			CurrentURL:  cfg.CurrentURL,
			ForecastURL: cfg.ForecastURL,
		},
		Timeout:       cfg.WeatherAPITimeout,
		Lang:          cfg.Lang,
		MaxCityLength: cfg.MaxCityLength,
		Outcomes:      upstreamHealth,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	orchestrator := itinerary.New(weatherClient, weatherClient, itinerary.Options{
		Concurrency: cfg.ItineraryConcurrency,
		Coalesce:    cfg.ItineraryCoalesce,
	})
	handler := httphandler.NewHandler(orchestrator, weatherClient, upstreamHealth, logger)

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: httphandler.NewRouter(handler, httphandler.RouterOptions{
			RequestTimeout:     cfg.RequestTimeout,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:             logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Int("itinerary_concurrency", cfg.ItineraryConcurrency),
			zap.Bool("itinerary_coalesce", cfg.ItineraryCoalesce))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := observability.FlushTelemetry(flushCtx, logger, shutdownTracing); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
