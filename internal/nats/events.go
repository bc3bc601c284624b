package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

const (
	// StreamName is the name of the shop events stream.
	StreamName = "SHOP_EVENTS"

	// SubjectPrefix is the prefix for all shop event subjects.
	SubjectPrefix = "shop"
)

// StreamManager publishes domain events to JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the events stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Placed orders and ended conversations",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for a shop event.
func EventSubject(shopID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, shopID, eventType)
}

// PublishOrderPlaced publishes an order.placed event.
func (m *StreamManager) PublishOrderPlaced(ctx context.Context, event *model.OrderPlacedEvent) error {
	return m.publish(ctx, EventSubject(event.ShopID, event.Type), event.ID, event)
}

// PublishSessionEnded publishes a session.ended event.
func (m *StreamManager) PublishSessionEnded(ctx context.Context, event *model.SessionEndedEvent) error {
	return m.publish(ctx, EventSubject(event.ShopID, event.Type), event.ID, event)
}

func (m *StreamManager) publish(ctx context.Context, subject, msgID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// The message id lets JetStream drop duplicates from publisher retries.
	if _, err := m.client.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
