package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/internal/session"
	"github.com/damoang/angple-chat/internal/ws"
	"github.com/damoang/angple-chat/pkg/cache"
	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// heartbeat keeps a connected member inside the presence active window
const heartbeat = service.ActiveWindow / 2

// WSHandler upgrades chat connections and runs one session per connection
type WSHandler struct {
	hub            *ws.Hub
	users          service.UserService
	presence       service.PresenceService
	feeds          *service.Feeds
	store          cache.Store
	opts           session.Options
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(
	hub *ws.Hub,
	users service.UserService,
	presence service.PresenceService,
	feeds *service.Feeds,
	store cache.Store,
	opts session.Options,
	allowedOrigins string,
) *WSHandler {
	h := &WSHandler{
		hub:            hub,
		users:          users,
		presence:       presence,
		feeds:          feeds,
		store:          store,
		opts:           opts,
		allowedOrigins: parseOrigins(allowedOrigins),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// parseOrigins parses comma-separated origins string
func parseOrigins(origins string) []string {
	if origins == "" || origins == "*" {
		return nil
	}
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// checkOrigin validates the request origin against allowed origins
func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // Same-origin requests don't have Origin header
	}

	// No allowed origins configured: allow all (development mode)
	if len(h.allowedOrigins) == 0 {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// Connect handles GET /ws/chat
// @Summary Live chat session over WebSocket
// @Description Client frames are session commands (select, mute, send, ping); server frames are session events
// @Tags chat
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Security BearerAuth
// @Router /ws/chat [get]
func (h *WSHandler) Connect(c *gin.Context) {
	user, err := h.users.EnsureProfile(c.Request.Context(), middleware.GetIdentity(c))
	if err != nil {
		common.FailWith(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := session.New(user.ID, h.feeds, h.feeds, h.store, h.opts)
	log := pkglogger.ForUser(c.Request.Context(), user.ID)

	client := ws.NewClient(h.hub, conn, user.ID, func(data []byte) {
		var cmd session.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Debug().Err(err).Msg("ws: dropping malformed command")
			return
		}
		if err := sess.Submit(ctx, cmd); err != nil {
			log.Debug().Err(err).Str("command", cmd.Type).Msg("ws: command not accepted")
		}
	})
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	go sess.Run(ctx)
	go h.pump(ctx, cancel, sess, client)
	go h.keepAlive(ctx, user.ID)

	log.Info().Msg("ws: chat session started")
}

// pump forwards session events to the socket until either side stops
func (h *WSHandler) pump(ctx context.Context, cancel context.CancelFunc, sess *session.Session, client *ws.Client) {
	defer cancel()
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				h.hub.Unregister(client)
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				pkglogger.Warn("ws: marshal %s event failed: %v", ev.Type, err)
				continue
			}
			if !client.Send(data) {
				h.hub.Unregister(client)
				return
			}
		case <-client.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *WSHandler) keepAlive(ctx context.Context, userID string) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		if err := h.presence.Touch(ctx, userID); err != nil && ctx.Err() == nil {
			pkglogger.Warn("ws: presence touch failed for %s: %v", userID, err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
