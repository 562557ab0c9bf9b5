package middleware

import (
	"net/http"
	"strings"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds response headers for a JSON and websocket API.
// Nothing served here is meant to be framed or to load subresources.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		if !strings.HasPrefix(c.Request.URL.Path, "/swagger") {
			c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// RequireJSON rejects state-changing requests whose body is neither JSON nor a multipart upload
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		ct := strings.ToLower(c.ContentType())
		if ct == "application/json" || ct == "multipart/form-data" {
			c.Next()
			return
		}
		common.ErrorResponse(c, http.StatusUnsupportedMediaType, "Content-Type must be application/json or multipart/form-data", nil)
		c.Abort()
	}
}
