package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
	"kilroy/internal/services"
	"kilroy/internal/sources"
)

type ProximityHandler struct {
	aggregator    *services.ProximityAggregator
	registry      *sources.Registry
	library       *sources.LibrarySource
	defaultRadius float64
	maxRadius     float64
}

// NewProximityHandler wires the proximity endpoints. library may be nil when
// no photo library is configured.
func NewProximityHandler(
	aggregator *services.ProximityAggregator,
	registry *sources.Registry,
	library *sources.LibrarySource,
	defaultRadius, maxRadius float64,
) *ProximityHandler {
	return &ProximityHandler{
		aggregator:    aggregator,
		registry:      registry,
		library:       library,
		defaultRadius: defaultRadius,
		maxRadius:     maxRadius,
	}
}

type RefreshRequest struct {
	LocationRequest
	Force bool `json:"force"`
}

// Refresh handles POST /proximity/refresh
func (h *ProximityHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.aggregator.Refresh(c.Request.Context(), req.GeoPoint(), req.Force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Current handles GET /proximity
func (h *ProximityHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, h.aggregator.Current())
}

// Dismiss handles POST /proximity/dismiss
func (h *ProximityHandler) Dismiss(c *gin.Context) {
	c.JSON(http.StatusOK, h.aggregator.DismissReveal())
}

// Nearby handles GET /memories/nearby?lat=&long=&radius=
func (h *ProximityHandler) Nearby(c *gin.Context) {
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

	results, total, err := h.aggregator.FindNearby(c.Request.Context(), location, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"location":      location,
		"radius_meters": radius,
		"sources":       results,
		"total":         total,
	})
}

// Rebuild handles POST /index/rebuild?source=
// Without a source every index is rebuilt. A failed rebuild keeps the
// previous index, so the response reports the error alongside the statuses.
func (h *ProximityHandler) Rebuild(c *gin.Context) {
	ctx := c.Request.Context()

	var err error
	if kind := c.Query("source"); kind != "" {
		err = h.registry.Rebuild(ctx, entities.SourceKind(kind))
		if errors.Is(err, sources.ErrUnknownSource) {
			respondError(c, err)
			return
		}
	} else {
		err = h.registry.RebuildAll(ctx)
	}

	body := gin.H{"sources": h.registry.Statuses()}
	if err != nil {
		body["error"] = err.Error()
		c.JSON(http.StatusBadGateway, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// Status handles GET /index/status
func (h *ProximityHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.registry.Statuses()})
}

// Thumbnail handles GET /library/thumbnails/*id?size=
// Asset ids are slash-separated paths, hence the catch-all parameter.
func (h *ProximityHandler) Thumbnail(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo library not configured"})
		return
	}

	data, err := h.library.Thumbnail(c.Request.Context(), strings.TrimPrefix(c.Param("id"), "/"), queryInt(c, "size", 0))
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", data)
}
