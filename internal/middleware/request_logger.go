package middleware

import (
	"strings"
	"time"

	"github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	RequestIDHeader    = "X-Request-ID"
	ctxRequestID       = "request_id"
	maxRequestIDLength = 64
)

// health checks and scrapes only show up at debug level
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// RequestLogger tags each request with an id, puts a logger carrying it on
// the request context and writes one line when the handler returns. For a
// WebSocket upgrade that is when the socket closes, so latency is the session
// length.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := inboundRequestID(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()[:8]
		}
		c.Set(ctxRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		reqLog := logger.ForRequest(requestID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		live := c.IsWebsocket()

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = reqLog.Error()
		case status >= 400:
			event = reqLog.Warn()
		case quietRoutes[c.FullPath()]:
			event = reqLog.Debug()
		default:
			event = reqLog.Info()
		}
		if userID := GetUserID(c); userID != "" {
			event = event.Str("user_id", userID)
		}
		if errs := c.Errors.String(); errs != "" {
			event = event.Str("errors", strings.TrimSpace(errs))
		}
		event = event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("body_size", c.Writer.Size())

		if live {
			event.Msg("ws session closed")
			return
		}
		event.Msg("request")
	}
}

// GetRequestID returns the id RequestLogger assigned
func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// inboundRequestID accepts a caller supplied id only when it is short printable ASCII
func inboundRequestID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxRequestIDLength {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x21 || v[i] > 0x7e {
			return ""
		}
	}
	return v
}
