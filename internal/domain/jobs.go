package domain

import (
	"context"
	"time"
)

// BroadcastEventType описывает изменение в жизненном цикле объявления.
type BroadcastEventType string

const (
	EventCreated   BroadcastEventType = "broadcast.created"
	EventScheduled BroadcastEventType = "broadcast.scheduled"
	EventPublished BroadcastEventType = "broadcast.published"
	EventExpired   BroadcastEventType = "broadcast.expired"
	EventPinned    BroadcastEventType = "broadcast.pinned"
	EventUnpinned  BroadcastEventType = "broadcast.unpinned"
	EventDeleted   BroadcastEventType = "broadcast.deleted"
)

// BroadcastEvent публикуется только после фиксации перехода в хранилище.
type BroadcastEvent struct {
	ID          string             `json:"event_id"`
	Type        BroadcastEventType `json:"type"`
	BroadcastID string             `json:"broadcast_id"`
	Status      BroadcastStatus    `json:"status"`
	Priority    Priority           `json:"priority,omitempty"`
	Title       string             `json:"title,omitempty"`
	ActorID     string             `json:"actor_id,omitempty"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// EventPublisher доставляет события жизненного цикла внешним потребителям.
type EventPublisher interface {
	Publish(ctx context.Context, event BroadcastEvent) error
}

// NopPublisher отбрасывает события.
type NopPublisher struct{}

// Publish ничего не делает.
func (NopPublisher) Publish(context.Context, BroadcastEvent) error { return nil }
