package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// envelope is the wire shape mirrored onto the Pub/Sub topic for downstream
// consumers (analytics, mail workers, ...).
type envelope struct {
	Name       string    `json:"name"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

// PubSubMirror republishes every bus event onto a Pub/Sub topic.
type PubSubMirror struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

func NewPubSubMirror(topic *pubsub.Topic) (*PubSubMirror, error) {
	if topic == nil {
		return nil, errors.New("pubsub mirror: topic is required")
	}
	return &PubSubMirror{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Handle implements the bus Handler contract. The publish result is awaited
// so a broker outage surfaces as a failed reaction instead of silent loss.
func (m *PubSubMirror) Handle(ctx context.Context, event Event) ReactionResult {
	if m == nil || m.topic == nil {
		return ReactionResult{Handler: "pubsub_mirror", Success: false, Err: errors.New("pubsub mirror: not initialised")}
	}

	data, err := m.marshal(envelope{
		Name:       event.EventName(),
		EntityType: event.EntityType(),
		EntityID:   event.EntityID(),
		OccurredAt: event.OccurredAt().UTC(),
		Payload:    event,
	})
	if err != nil {
		return ReactionResult{Handler: "pubsub_mirror", Success: false, Err: fmt.Errorf("marshal event: %w", err)}
	}

	attrs := make(map[string]string)
	setAttr(attrs, "name", event.EventName())
	setAttr(attrs, "entityType", event.EntityType())
	setAttr(attrs, "entityId", event.EntityID())

	result := m.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return ReactionResult{Handler: "pubsub_mirror", Success: false, Err: fmt.Errorf("publish event: %w", err)}
	}
	return ReactionResult{Handler: "pubsub_mirror", Success: true}
}

func setAttr(attrs map[string]string, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
