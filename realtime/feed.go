// Package realtime mirrors central-store changes into the Local Store as
// they happen, independent of the reconciler's batch passes.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// ChangeEvent is one server-pushed notification. New carries the row after
// the change, Old the row before it (deletes only carry Old).
type ChangeEvent struct {
	Table string          `json:"table"`
	Type  EventType       `json:"eventType"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// ChangeFeed is the change-notification transport. One subscription per
// logical table.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, error)
	Close() error
}

// RedisFeed carries change events over redis pub/sub, one channel per
// (shop, table).
type RedisFeed struct {
	client *redis.Client
	shopId string
}

func NewRedisFeed(client *redis.Client, shopId string) *RedisFeed {
	return &RedisFeed{client: client, shopId: shopId}
}

func (f *RedisFeed) channelName(table string) string {
	return fmt.Sprintf("rt:%s:%s", f.shopId, table)
}

func (f *RedisFeed) Subscribe(ctx context.Context, table string) (<-chan ChangeEvent, error) {
	if f.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	sub := f.client.Subscribe(ctx, f.channelName(table))
	// Force the subscription onto the wire before returning.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan ChangeEvent)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				if ev.Table == "" {
					ev.Table = table
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish pushes an event to every subscribed shop instance. Used by the
// central side after it commits a change.
func (f *RedisFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	if f.client == nil {
		return fmt.Errorf("redis client not configured")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channelName(ev.Table), payload).Err()
}

func (f *RedisFeed) Close() error {
	return nil
}
