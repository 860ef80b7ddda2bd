package mq

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event names published after a successful write.
const (
	OrderCreated       = "order-created"
	OrderStatusUpdated = "order-status-updated"
	OrderTrackingAdded = "order-tracking-added"
	ReviewAdded        = "review-added"
	ReviewUpdated      = "review-updated"
	ReviewDeleted      = "review-deleted"
)

// Event is the message body published for every domain change.
type Event struct {
	Name       string    `json:"event"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	ItemType   string    `json:"item_type,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	At         time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher fans events out on a Redis pub/sub channel.
type RedisPublisher struct {
	Conn    *redis.Client
	Channel string
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.Conn.Publish(ctx, p.Channel, data).Err()
}

// LogPublisher only logs; used when no Redis is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev Event) error {
	log.Printf("[Emit] %s %s=%s", ev.Name, ev.EntityType, ev.EntityID)
	return nil
}

// Emit publishes ev and logs, rather than returns, a failure: the write it
// describes has already been committed.
func Emit(ctx context.Context, p Publisher, ev Event) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Printf("[Emit] failed to publish %s for %s %s: %v", ev.Name, ev.EntityType, ev.EntityID, err)
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
	return nil
}

// Names returns the recorded event names in publish order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Events))
	for i, ev := range r.Events {
		names[i] = ev.Name
	}
	return names
}
