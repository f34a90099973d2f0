// Package events publishes work order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	log "github.com/tuannvm/workorder-a2a/internal/logging"
)

// Event types
const (
	TypeRefreshed     = "workorders.refreshed"
	TypeNoteAdded     = "workorder.note_added"
	TypeStepUpdated   = "workorder.step_updated"
	TypeStarted       = "workorder.started"
	TypeCompleted     = "workorder.completed"
	TypeTransitioned  = "workorder.transitioned"
	TypeGenerated     = "workorder.generated"
	TypeIngested      = "index.ingested"
	TypeTrackerFailed = "workorder.tracker_failed"
)

// DefaultPublishTimeout bounds a single publish
const DefaultPublishTimeout = 2 * time.Second

// Event is one lifecycle change
type Event struct {
	Type      string                 `json:"type"`
	Key       string                 `json:"key,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// messageWriter is the subset of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends events to a Kafka topic, keyed by work order key
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration // zero leaves the caller's deadline alone
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: DefaultPublishTimeout,
			MaxAttempts:  3,
		},
		topic:   topic,
		timeout: DefaultPublishTimeout,
	}
}

// New returns a Kafka publisher when brokers are configured, otherwise Nop
func New(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return Nop{}
	}
	log.Infof("Publishing work order events to kafka topic %s", topic)
	return NewKafkaPublisher(brokers, topic)
}

// Publish encodes and writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	log.Debugf("Sent %s event to Kafka: %s", event.Type, event.Key)
	return nil
}

// Close closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encode(event Event) (kafka.Message, error) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	key := event.Key
	if key == "" {
		key = event.Type
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}
