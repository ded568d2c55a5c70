package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/urmzd/heos-bridge/pkg/api/handlers"
	"github.com/urmzd/heos-bridge/pkg/device"
)

// Router holds the Gin engine and dependencies
type Router struct {
	engine     *gin.Engine
	controller device.Controller
	subscriber device.EventSubscriber
}

// NewRouter creates a new API router
func NewRouter(controller device.Controller, subscriber device.EventSubscriber) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	SetupMiddleware(engine)

	router := &Router{
		engine:     engine,
		controller: controller,
		subscriber: subscriber,
	}

	router.setupRoutes()

	return router
}

// setupRoutes configures all API routes
func (r *Router) setupRoutes() {
	// Swagger UI
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})

	healthHandler := handlers.NewHealthHandler(r.controller)
	r.engine.GET("/health", healthHandler.Health)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		// Discovery and events
		discoveryHandler := handlers.NewDiscoveryHandler(r.controller, r.subscriber)
		discovery := v1.Group("/discovery")
		{
			discovery.POST("/start", discoveryHandler.StartDiscovery)
			discovery.POST("/stop", discoveryHandler.StopDiscovery)
			discovery.GET("/events", discoveryHandler.Events)
		}
		v1.GET("/events", discoveryHandler.Events)
		v1.GET("/events/ws", discoveryHandler.EventsWS)

		// Devices
		devicesHandler := handlers.NewDevicesHandler(r.controller)
		controlHandler := handlers.NewControlHandler(r.controller)
		v1.GET("/pairing/candidates", devicesHandler.PairingCandidates)
		devices := v1.Group("/devices")
		{
			devices.GET("", devicesHandler.ListDevices)
			devices.POST("", devicesHandler.PairDevice)
			devices.GET("/:id", devicesHandler.GetDevice)
			devices.PATCH("/:id", devicesHandler.RenameDevice)
			devices.DELETE("/:id", devicesHandler.RemoveDevice)

			devices.GET("/:id/state", controlHandler.GetState)
			devices.POST("/:id/state", controlHandler.SetState)
			devices.GET("/:id/artwork", controlHandler.Artwork)
			devices.POST("/:id/actions/:action", controlHandler.RunAction)
		}
	}
}

// Handler returns the underlying http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Run starts the HTTP server
func (r *Router) Run(addr string) error {
	return r.engine.Run(addr)
}
