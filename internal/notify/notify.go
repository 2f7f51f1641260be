package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Notifier delivers user-facing notifications. Implementations are
// fire-and-forget: delivery failures are logged, never returned, and must
// not affect tracking state.
type Notifier interface {
	Arrival(locationName string)
	EndOfDay(hours, minutes int, locationName string)
	SessionGuard(locationName, locationID string, hoursRunning int)
	Simple(title, body string)
}

const channel = "notifications:events"

type message struct {
	Kind         string `json:"kind"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	LocationID   string `json:"location_id,omitempty"`
	LocationName string `json:"location_name,omitempty"`
}

// RedisNotifier publishes notifications on a redis channel for the delivery
// collaborator to pick up. A nil client degrades to log-only.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func (n *RedisNotifier) Arrival(locationName string) {
	n.publish(message{
		Kind:         "arrival",
		Title:        "Tracking started",
		Body:         fmt.Sprintf("Arrived at %s", locationName),
		LocationName: locationName,
	})
}

func (n *RedisNotifier) EndOfDay(hours, minutes int, locationName string) {
	n.publish(message{
		Kind:         "end_of_day",
		Title:        "Tracking stopped",
		Body:         fmt.Sprintf("%dh %02dm recorded today at %s", hours, minutes, locationName),
		LocationName: locationName,
	})
}

func (n *RedisNotifier) SessionGuard(locationName, locationID string, hoursRunning int) {
	n.publish(message{
		Kind:         "session_guard",
		Title:        "Still working?",
		Body:         fmt.Sprintf("Tracking at %s has been running for %d hours", locationName, hoursRunning),
		LocationID:   locationID,
		LocationName: locationName,
	})
}

func (n *RedisNotifier) Simple(title, body string) {
	n.publish(message{Kind: "simple", Title: title, Body: body})
}

func (n *RedisNotifier) publish(m message) {
	log.Printf("notify: %s: %s", m.Title, m.Body)
	if n.redis == nil {
		return
	}

	payload, _ := json.Marshal(m)
	if err := n.redis.Publish(context.Background(), channel, payload).Err(); err != nil {
		log.Printf("notification publish error: %v", err)
	}
}
