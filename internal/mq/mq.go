// Package mq publishes catalog change events to a message broker.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sfm-market/storefront/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Event describes a committed change to a catalog or account resource.
type Event struct {
	// Type is "<resource>.<action>", e.g. "product.updated".
	Type       string    `json:"type"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MQ binds a backend to the channel catalog events travel on.
type MQ struct {
	backend Backend
	channel string
}

// New constructs an MQ wrapper for the provided backend and channel.
func New(backend Backend, channel string) *MQ {
	return &MQ{backend: backend, channel: channel}
}

// FromConfig dials the broker selected by cfg. It returns nil, nil when no
// backend is configured.
func FromConfig(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("mq: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("mq: connect %s: %w", cfg.Backend, err)
	}
	return New(backend, cfg.Channel), nil
}

// PublishEvent encodes ev as JSON and sends it on the events channel.
func (m *MQ) PublishEvent(ctx context.Context, ev Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("mq: encode event: %w", err)
	}
	return m.backend.Publish(ctx, m.channel, data, map[string]string{
		"type":     ev.Type,
		"resource": ev.Resource,
	})
}

// SubscribeEvents decodes every message on the events channel and hands it
// to fn until ctx is done. Undecodable messages are acknowledged and skipped.
func (m *MQ) SubscribeEvents(ctx context.Context, fn func(ctx context.Context, ev Event) error) error {
	return m.backend.Subscribe(ctx, m.channel, func(ctx context.Context, msg Message) error {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return nil
		}
		return fn(ctx, ev)
	})
}

// Channel returns the channel events are published on.
func (m *MQ) Channel() string {
	return m.channel
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
