package middleware

import (
	"net/http"

	"live777go/pkg/config"

	"github.com/gin-gonic/gin"
)

// CORS returns a permissive cross-origin middleware, gated by http.cors
// — WHIP/WHEP clients are commonly browser pages served from a
// different origin than the SFU.
func CORS(cfg *config.Config) gin.HandlerFunc {
	if !cfg.HTTP.CORS {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Expose-Headers", "Location, Link, ETag")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
