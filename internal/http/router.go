package http

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	RequestTimeout     time.Duration // deadline for /api routes; 0 disables
	CORSAllowedOrigins []string
	Logger             *zap.Logger
}

// NewRouter wires the UI pages, the JSON API, /health and /metrics.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(TracingMiddleware)
	router.Use(MetricsMiddleware)
	// Innermost so a recovered panic is still counted and traced as a 500.
	router.Use(RecoverMiddleware)

	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/", h.PostIndex).Methods(http.MethodPost)
	router.HandleFunc("/dashboard", h.GetDashboard).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Routes must accept OPTIONS or mux never runs the CORS middleware for preflights.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{CorrelationIDHeader},
		MaxAge:         300,
	}))
	api.Use(TimeoutMiddleware(opts.RequestTimeout))
	api.HandleFunc("/itinerary", h.GetItinerary).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/chart", h.GetChart).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/map", h.GetMap).Methods(http.MethodGet, http.MethodOptions)

	return router
}
