package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kilroy/internal/services"
)

type KilroyHandler struct {
	kilroyService *services.KilroyService
	defaultRadius float64
	maxRadius     float64
}

func NewKilroyHandler(kilroyService *services.KilroyService, defaultRadius, maxRadius float64) *KilroyHandler {
	return &KilroyHandler{
		kilroyService: kilroyService,
		defaultRadius: defaultRadius,
		maxRadius:     maxRadius,
	}
}

// Nearby handles GET /kilroys/nearby?lat=&long=&radius=&order=
// When the backend fails the last good answer for the same query is returned
// with status 502 and "stale": true, so clients keep showing it.
func (h *KilroyHandler) Nearby(c *gin.Context) {
	location, err := queryLocation(c)
	if err != nil {
		respondError(c, err)
		return
	}
	radius, err := queryRadius(c, h.defaultRadius, h.maxRadius)
	if err != nil {
		respondError(c, err)
		return
	}
	order, err := services.ParseSortOrder(c.Query("order"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.kilroyService.Nearby(c.Request.Context(), location, radius, order)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":      err.Error(),
			"hits":       result.Hits,
			"stale":      result.Stale,
			"fetched_at": result.FetchedAt,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Latest handles GET /kilroys/latest?limit=
func (h *KilroyHandler) Latest(c *gin.Context) {
	docs, err := h.kilroyService.Latest(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kilroys": docs, "count": len(docs)})
}
