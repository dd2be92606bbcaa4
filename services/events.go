package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventPublisher fans out session-change notifications over Redis
// pub/sub so other connected devices of the same user can refresh.
// A nil client disables publishing.
type EventPublisher struct {
	rdb *redis.Client
}

func NewEventPublisher(rdb *redis.Client) *EventPublisher {
	return &EventPublisher{rdb: rdb}
}

func UserChannel(userID uuid.UUID) string {
	return "ws:user:" + userID.String()
}

// SessionChanged publishes a chat_session_changed event for the user.
// Action is one of "created", "updated", "deleted", "message".
func (p *EventPublisher) SessionChanged(ctx context.Context, userID, sessionID uuid.UUID, action string) {
	if p == nil || p.rdb == nil {
		return
	}

	event := map[string]string{
		"type":       "chat_session_changed",
		"action":     action,
		"session_id": sessionID.String(),
	}
	data, _ := json.Marshal(event)
	if err := p.rdb.Publish(ctx, UserChannel(userID), string(data)).Err(); err != nil {
		log.Printf("[Events] Publish failed for %s: %v", sessionID, err)
	}
}
