package syncer

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// Syncer asks the sync collaborator to push local changes upstream. Best
// effort: callers never wait on or react to the outcome, and a failed
// trigger never rolls back local state.
type Syncer interface {
	SyncNow(userID string)
}

// RedisSyncer enqueues sync requests on a redis list drained by the sync
// worker. A nil client makes every trigger a no-op.
type RedisSyncer struct {
	redis *redis.Client
	queue string
}

func NewRedisSyncer(client *redis.Client, queue string) *RedisSyncer {
	if queue == "" {
		queue = "sync:pending"
	}
	return &RedisSyncer{redis: client, queue: queue}
}

func (s *RedisSyncer) SyncNow(userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.LPush(context.Background(), s.queue, userID).Err(); err != nil {
		log.Printf("sync enqueue error: %v", err)
	}
}
