package routes

import (
	"github.com/damoang/angple-chat/internal/handler"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/pkg/jwt"
	"github.com/damoang/angple-chat/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// Handlers groups every handler the route table mounts
type Handlers struct {
	User    *handler.UserHandler
	Access  *handler.AccessHandler
	Message *handler.MessageHandler
	WS      *handler.WSHandler
	// Audit is optional; without it /me/audit is not mounted
	Audit *handler.AuditHandler
}

// Options tunes route-level middleware
type Options struct {
	// SendLimiter is the per-user send quota, shared with the live session; nil disables it
	SendLimiter ratelimit.Limiter
	AuditLogger *middleware.AuditLogger
}

// Setup configures all API routes
func Setup(router *gin.Engine, h Handlers, jwtManager *jwt.Manager, opts Options) {
	auth := middleware.JWTAuth(jwtManager)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(opts.AuditLogger, action, resource)
	}

	api := router.Group("/api/v1", auth, middleware.RequireJSON())

	// Identity & profile
	api.POST("/session", h.User.Session)
	api.PUT("/me/profile", h.User.UpdateProfile)
	api.DELETE("/me", audit("delete_account", "user"), h.User.DeleteAccount)
	api.POST("/me/presence", h.User.Touch)
	if h.Audit != nil {
		api.GET("/me/audit", h.Audit.List)
	}

	// Contacts
	users := api.Group("/users")
	users.GET("", h.User.Contacts)
	users.GET("/search", h.User.Search)
	users.GET("/:id", h.User.Get)

	// Chat requests
	requests := api.Group("/requests")
	requests.POST("", audit("request", "chat_request"), h.Access.SendRequest)
	requests.GET("", h.Access.ListRequests)
	requests.POST("/:id/accept", audit("accept", "chat_request"), h.Access.Accept)
	requests.POST("/:id/reject", audit("reject", "chat_request"), h.Access.Reject)

	// Access ledger
	access := api.Group("/access")
	access.GET("/:user_id", h.Access.Status)
	access.POST("/:user_id/revoke", audit("revoke", "user"), h.Access.Revoke)
	access.POST("/:user_id/grant", audit("grant", "user"), h.Access.Grant)

	// Messages
	messages := api.Group("/messages")
	messages.GET("", h.Message.List)
	messages.POST("", middleware.RateLimitPerUser(opts.SendLimiter), h.Message.Send)
	messages.PUT("/:id", h.Message.Edit)
	messages.DELETE("/:id", h.Message.Delete)

	// Live session
	router.GET("/ws/chat", auth, h.WS.Connect)
}
