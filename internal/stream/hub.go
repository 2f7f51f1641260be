package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Hub fans tracking refresh signals out to a user's connected UIs, locally
// over websockets and across instances via redis pub/sub.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID string
	Send   chan []byte
}

// Signal is one UI refresh message. The client reacts to the type and
// re-renders; no response is consumed.
type Signal struct {
	Type         string     `json:"type"`
	LocationID   string     `json:"location_id,omitempty"`
	LocationName string     `json:"location_name,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	close(client.Send)
}

// StartTracking tells the user's UIs a session began.
func (h *Hub) StartTracking(userID, locationID, locationName string, startedAt time.Time) {
	h.signal(userID, Signal{
		Type:         "tracking_started",
		LocationID:   locationID,
		LocationName: locationName,
		StartedAt:    &startedAt,
	})
}

// ResetTracking tells the user's UIs the session ended.
func (h *Hub) ResetTracking(userID string) {
	h.signal(userID, Signal{Type: "tracking_reset"})
}

// ReloadToday tells the user's UIs the daily ledger changed.
func (h *Hub) ReloadToday(userID string) {
	h.signal(userID, Signal{Type: "reload_today"})
}

func (h *Hub) signal(userID string, s Signal) {
	payload, _ := json.Marshal(s)
	h.Broadcast(userID, payload)
}

func (h *Hub) Broadcast(userID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[userID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(userID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.Subscribe(ctx, "presence:*:signals")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		userID := userIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[userID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(userID string) string {
	return "presence:" + userID + ":signals"
}

func userIDFromChannel(ch string) string {
	// presence:{user}:signals
	const prefix = "presence:"
	const suffix = ":signals"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
