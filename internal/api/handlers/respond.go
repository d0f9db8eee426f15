package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
	"kilroy/internal/services"
	"kilroy/internal/sources"
)

// LocationRequest is the JSON shape of a coordinate in request bodies.
// Pointers let binding distinguish a missing field from a zero coordinate.
type LocationRequest struct {
	Lat  *float64 `json:"lat" binding:"required"`
	Long *float64 `json:"long" binding:"required"`
}

func (r LocationRequest) GeoPoint() entities.GeoPoint {
	return entities.NewGeoPoint(*r.Lat, *r.Long)
}

// statusFor maps domain errors to HTTP status codes.
//
// Go Learning Note — errors.Is:
// Services wrap sentinel errors with fmt.Errorf("...: %w", err). errors.Is
// walks that chain, so the handler can match on the sentinel no matter how
// many layers added context on the way up.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrInvalidCoordinate),
		errors.Is(err, geo.ErrInvalidRadius),
		errors.Is(err, services.ErrMissingImage),
		errors.Is(err, services.ErrInvalidSortOrder):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrPinNotFound),
		errors.Is(err, repository.ErrAssetNotFound),
		errors.Is(err, sources.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, services.ErrSyncInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// queryLocation reads the lat and long query parameters.
func queryLocation(c *gin.Context) (entities.GeoPoint, error) {
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		return entities.GeoPoint{}, fmt.Errorf("%w: lat", entities.ErrInvalidCoordinate)
	}
	long, err := strconv.ParseFloat(c.Query("long"), 64)
	if err != nil {
		return entities.GeoPoint{}, fmt.Errorf("%w: long", entities.ErrInvalidCoordinate)
	}
	p := entities.NewGeoPoint(lat, long)
	return p, p.Validate()
}

// queryRadius reads the optional radius parameter, falling back to def and
// capping at maxRadius.
func queryRadius(c *gin.Context, def, maxRadius float64) (float64, error) {
	raw := c.Query("radius")
	if raw == "" {
		return def, nil
	}
	r, err := strconv.ParseFloat(raw, 64)
	if err != nil || r < 0 || math.IsNaN(r) || math.IsInf(r, 1) {
		return 0, geo.ErrInvalidRadius
	}
	if maxRadius > 0 && r > maxRadius {
		r = maxRadius
	}
	return r, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
