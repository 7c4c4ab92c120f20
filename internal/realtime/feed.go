// Package realtime relays accepted scans to dashboards watching an event.
// Scans are published on Redis so every API instance sees every scan.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/attendance"
)

const (
	// EventScan is the message type for an accepted scan.
	EventScan = "scan"

	publishTimeout = 5 * time.Second
)

// Message is what subscribers receive, on Redis and on the WebSocket.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// Channel returns the Redis channel of an event's scan feed.
func Channel(eventID uuid.UUID) string {
	return "event:" + eventID.String() + ":scans"
}

// ScanFeed publishes and subscribes to per-event scan channels.
type ScanFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewScanFeed creates a Redis-backed scan feed.
func NewScanFeed(client *redis.Client, logger *zap.Logger) *ScanFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanFeed{client: client, logger: logger}
}

// PublishScan implements attendance.Publisher.
func (f *ScanFeed) PublishScan(ctx context.Context, eventID uuid.UUID, result *attendance.ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	body, err := json.Marshal(Message{Event: EventScan, Data: data, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return f.client.Publish(ctx, Channel(eventID), body).Err()
}

// Subscribe delivers raw messages of an event's channel to handler until cancel
// is called or ctx ends.
func (f *ScanFeed) Subscribe(ctx context.Context, eventID uuid.UUID, handler func(payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := f.client.Subscribe(ctx, Channel(eventID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return cancelCtx, nil
}
