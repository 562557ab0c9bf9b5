package ws

import (
	"context"
	"encoding/json"
	"sync"

	pkglogger "github.com/damoang/angple-chat/pkg/logger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const redisPubSubChannel = "chat:members"

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "chat_ws_clients",
	Help: "Number of open chat WebSocket connections",
})

// Event is a member-addressed push, marshaled as-is onto every connection of the member
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub tracks the live connections of every member on this instance and
// relays member events between instances.
type Hub struct {
	// Registered clients grouped by member ID
	clients map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *targetedEvent

	// Event types after which the member's connections are closed
	terminal map[string]bool

	mu          sync.RWMutex
	redisClient *redis.Client
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

type targetedEvent struct {
	MemberID string
	Event    *Event
}

// NewHub creates a new Hub. Connections of a member are closed after any of closeOn is delivered.
func NewHub(redisClient *redis.Client, closeOn ...string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	terminal := make(map[string]bool, len(closeOn))
	for _, t := range closeOn {
		terminal[t] = true
	}
	return &Hub{
		clients:     make(map[string]map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *targetedEvent, 256),
		terminal:    terminal,
		redisClient: redisClient,
		instanceID:  uuid.NewString(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Unregister removes a client and closes it
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		client.close()
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	if h.redisClient != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.memberID] == nil {
				h.clients[client.memberID] = make(map[*Client]struct{})
			}
			h.clients[client.memberID][client] = struct{}{}
			h.mu.Unlock()
			connectedClients.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			h.drop(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.ctx.Done():
			h.mu.Lock()
			for _, clients := range h.clients {
				for client := range clients {
					h.drop(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) deliver(msg *targetedEvent) {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		pkglogger.Warn("ws: marshal %s event failed: %v", msg.Event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[msg.MemberID] {
		if !client.Send(data) || h.terminal[msg.Event.Type] {
			h.drop(client)
		}
	}
}

// drop must be called with mu held
func (h *Hub) drop(client *Client) {
	clients, ok := h.clients[client.memberID]
	if !ok {
		client.close()
		return
	}
	if _, ok := clients[client]; ok {
		delete(clients, client)
		connectedClients.Dec()
		if len(clients) == 0 {
			delete(h.clients, client.memberID)
		}
	}
	client.close()
}

// IsOnline reports whether the member has a connection on this instance
func (h *Hub) IsOnline(memberID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[memberID]) > 0
}

// Notify pushes an event to every connection of the member
func (h *Hub) Notify(memberID, eventType string, payload interface{}) {
	h.SendToMember(memberID, &Event{Type: eventType, Payload: payload})
}

// SendToMember sends an event to a specific member (local + Redis publish)
func (h *Hub) SendToMember(memberID string, event *Event) {
	select {
	case h.broadcast <- &targetedEvent{MemberID: memberID, Event: event}:
	case <-h.ctx.Done():
		return
	}

	if h.redisClient != nil {
		msg := &redisMessage{Origin: h.instanceID, MemberID: memberID, Event: event}
		data, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := h.redisClient.Publish(h.ctx, redisPubSubChannel, data).Err(); err != nil {
			pkglogger.Warn("ws: publish to %s failed: %v", memberID, err)
		}
	}
}

type redisMessage struct {
	Origin   string `json:"origin"`
	MemberID string `json:"member_id"`
	Event    *Event `json:"event"`
}

// subscribeRedis listens for member events from other instances
func (h *Hub) subscribeRedis() {
	pubsub := h.redisClient.Subscribe(h.ctx, redisPubSubChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm redisMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil || rm.Event == nil {
				continue
			}
			if rm.Origin == h.instanceID {
				continue
			}
			select {
			case h.broadcast <- &targetedEvent{MemberID: rm.MemberID, Event: rm.Event}:
			case <-h.ctx.Done():
				return
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the hub
func (h *Hub) Stop() {
	h.cancel()
}
