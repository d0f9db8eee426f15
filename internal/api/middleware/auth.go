// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any function with the signature `gin.HandlerFunc`, which
// is `func(*gin.Context)`. Middleware functions form a chain: each one runs,
// optionally calls c.Next() to pass control to the next handler, and can call
// c.Abort() to stop the chain.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DeviceIDKey is the gin context key holding the authenticated device id.
const DeviceIDKey = "device_id"

// DeviceAuth extracts the calling device from the Authorization header.
// Format: "Bearer <device-id>". Any non-empty id is accepted: devices are
// anonymous and identify themselves with a locally generated UUID, the same
// id that ends up in the deviceId field of the documents they write.
//
// Go Learning Note — c.Abort():
// c.Abort() prevents subsequent handlers in the chain from running. Without it,
// even after writing an error response, the next handler would still execute.
// Always pair error responses with c.Abort() in middleware.
func DeviceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		deviceID := strings.TrimSpace(parts[1])
		if deviceID == "" || strings.ContainsAny(deviceID, " \t") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid device id"})
			return
		}

		c.Set(DeviceIDKey, deviceID)
		c.Next()
	}
}

// RequireAdmin lets the request through only when isAdmin accepts the
// device id set by DeviceAuth. Must be used after DeviceAuth in the chain.
//
// Go Learning Note — Returning Functions (Closures):
// The returned handler captures isAdmin, so the router decides where the
// whitelist lives and the middleware stays free of service imports.
func RequireAdmin(isAdmin func(deviceID string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(GetDeviceID(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// GetDeviceID returns the device id set by DeviceAuth, or "" when the route
// is not authenticated.
func GetDeviceID(c *gin.Context) string {
	return c.GetString(DeviceIDKey)
}
