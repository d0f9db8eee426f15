package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kilroy/internal/api/middleware"
	"kilroy/internal/services"
)

type PinHandler struct {
	pinService *services.PinService
}

func NewPinHandler(pinService *services.PinService) *PinHandler {
	return &PinHandler{
		pinService: pinService,
	}
}

type DropPinRequest struct {
	Location     LocationRequest `json:"location"`
	ImageRef     string          `json:"image_ref" binding:"required"`
	Comment      string          `json:"comment"`
	PlaceName    string          `json:"place_name"`
	PlaceAddress string          `json:"place_address"`
}

// Drop handles POST /pins
func (h *PinHandler) Drop(c *gin.Context) {
	var req DropPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pin, err := h.pinService.Drop(c.Request.Context(), services.DropRequest{
		Coordinate:   req.Location.GeoPoint(),
		ImageRef:     req.ImageRef,
		Comment:      req.Comment,
		PlaceName:    req.PlaceName,
		PlaceAddress: req.PlaceAddress,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pin)
}

// List handles GET /pins
func (h *PinHandler) List(c *gin.Context) {
	pins, err := h.pinService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pins": pins, "count": len(pins)})
}

// Delete handles DELETE /pins/:id
func (h *PinHandler) Delete(c *gin.Context) {
	if err := h.pinService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resync handles POST /pins/resync
func (h *PinHandler) Resync(c *gin.Context) {
	n, err := h.pinService.Resync(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"scheduled": n})
}

type SeedKilroyRequest struct {
	Location     LocationRequest `json:"location"`
	ImageURL     string          `json:"imageURL" binding:"required"`
	PlaceName    string          `json:"placeName" binding:"required"`
	PlaceAddress string          `json:"placeAddress"`
	Comment      string          `json:"comment"`
	CreatedAt    *time.Time      `json:"createdAt"`
}

// Seed handles POST /admin/seed
func (h *PinHandler) Seed(c *gin.Context) {
	var req SeedKilroyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seed := services.SeedRequest{
		Coordinate:   req.Location.GeoPoint(),
		ImageURL:     req.ImageURL,
		PlaceName:    req.PlaceName,
		PlaceAddress: req.PlaceAddress,
		Comment:      req.Comment,
	}
	if req.CreatedAt != nil {
		seed.CreatedAt = *req.CreatedAt
	}

	doc, err := h.pinService.Seed(c.Request.Context(), middleware.GetDeviceID(c), seed)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}
