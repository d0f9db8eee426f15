package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kilroy/internal/api/handlers"
	"kilroy/internal/api/middleware"
)

type Router struct {
	proximityHandler *handlers.ProximityHandler
	pinHandler       *handlers.PinHandler
	kilroyHandler    *handlers.KilroyHandler
	isAdmin          func(deviceID string) bool
}

func NewRouter(
	proximityHandler *handlers.ProximityHandler,
	pinHandler *handlers.PinHandler,
	kilroyHandler *handlers.KilroyHandler,
	isAdmin func(deviceID string) bool,
) *Router {
	return &Router{
		proximityHandler: proximityHandler,
		pinHandler:       pinHandler,
		kilroyHandler:    kilroyHandler,
		isAdmin:          isAdmin,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Device routes
	api := engine.Group("/")
	api.Use(middleware.DeviceAuth())
	{
		api.POST("/proximity/refresh", r.proximityHandler.Refresh)
		api.GET("/proximity", r.proximityHandler.Current)
		api.POST("/proximity/dismiss", r.proximityHandler.Dismiss)
		api.GET("/memories/nearby", r.proximityHandler.Nearby)

		api.GET("/index/status", r.proximityHandler.Status)
		api.POST("/index/rebuild", r.proximityHandler.Rebuild)
		api.GET("/library/thumbnails/*id", r.proximityHandler.Thumbnail)

		api.GET("/pins", r.pinHandler.List)
		api.POST("/pins", r.pinHandler.Drop)
		api.POST("/pins/resync", r.pinHandler.Resync)
		api.DELETE("/pins/:id", r.pinHandler.Delete)

		api.GET("/kilroys/nearby", r.kilroyHandler.Nearby)
		api.GET("/kilroys/latest", r.kilroyHandler.Latest)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireAdmin(r.isAdmin))
		{
			admin.POST("/seed", r.pinHandler.Seed)
		}
	}

	// Debug endpoints (no auth)
	debug := engine.Group("/debug")
	{
		debug.GET("/geohash", handlers.Geohash)
	}
}
