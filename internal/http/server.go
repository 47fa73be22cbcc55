// README: API gateway; registers the dispatch routes and delegates to the per-driver engines.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartdispatch/internal/http/handlers"
	"smartdispatch/internal/http/middleware"
	"smartdispatch/internal/infra"
	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/dispatch"
	"smartdispatch/internal/platform/metrics"
)

type ServerDeps struct {
	Registry        *dispatch.Registry
	Mapper          maps.Mapper
	DefaultDriverID string
	Metrics         *metrics.Metrics
	// Verifier enables Firebase auth on the dispatch routes when set.
	Verifier infra.TokenVerifier
	Logger   *slog.Logger
}

type Server struct {
	registry *dispatch.Registry
	mapper   maps.Mapper
	driverID string
	metrics  *metrics.Metrics
	verifier infra.TokenVerifier
	logger   *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		registry: deps.Registry,
		mapper:   deps.Mapper,
		driverID: deps.DefaultDriverID,
		metrics:  deps.Metrics,
		verifier: deps.Verifier,
		logger:   deps.Logger,
	}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Logging(s.logger), middleware.Metrics(s.metrics), middleware.Recovery(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "drivers": len(s.registry.Drivers())})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/")
	if s.verifier != nil {
		api.Use(middleware.Auth(s.verifier))
	}

	dispatchHandler := handlers.NewDispatchHandler(s.registry, s.driverID)
	api.POST("/evaluate_new_order", dispatchHandler.EvaluateNewOrder)
	api.POST("/order_response", dispatchHandler.OrderResponse)
	api.POST("/probe_publish_trip", dispatchHandler.ProbePublishTrip)
	api.POST("/current_route_preview", dispatchHandler.CurrentRoutePreview)

	modeHandler := handlers.NewModeHandler(s.registry, s.driverID)
	api.GET("/driver_mode", modeHandler.Get)
	api.PUT("/driver_mode", modeHandler.Put)
	api.GET("/driver_mode_config", modeHandler.GetConfig)
	api.PUT("/driver_mode_config", modeHandler.PutConfig)

	tripHandler := handlers.NewTripHandler(s.registry, s.driverID)
	api.GET("/planned_trip", tripHandler.List)
	api.POST("/planned_trip", tripHandler.Create)
	api.PUT("/planned_trip", tripHandler.Update)
	api.POST("/planned_trip/complete", tripHandler.Complete)

	geocodeHandler := handlers.NewGeocodeHandler(s.mapper)
	api.GET("/reverse_geocode", geocodeHandler.ReverseGeocode)
	api.POST("/reverse_geocode", geocodeHandler.ReverseGeocode)

	return r
}
