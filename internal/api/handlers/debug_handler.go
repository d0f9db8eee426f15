package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kilroy/internal/geo"
)

// Geohash handles GET /debug/geohash?lat=&long=&precision=
// It shows the cell a point falls in and the lexical neighbours the remote
// planner would query for it.
func Geohash(c *gin.Context) {
	location, err := queryLocation(c)
	if err != nil {
		respondError(c, err)
		return
	}
	precision := queryInt(c, "precision", geo.DefaultPrecision)
	if precision < 1 || precision > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "precision must be between 1 and 12"})
		return
	}

	hash := geo.Encode(location.Latitude, location.Longitude, precision)
	lat, long := geo.Decode(hash)
	c.JSON(http.StatusOK, gin.H{
		"geohash":   hash,
		"center":    gin.H{"lat": lat, "long": long},
		"neighbors": geo.Neighbors(hash),
	})
}
