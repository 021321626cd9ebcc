package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LogDispatcher writes notifications to a logger. It is the default transport
// when no broker is configured.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a new LogDispatcher.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch logs the payload.
func (d *LogDispatcher) Dispatch(_ context.Context, p Payload) error {
	d.logger.Info().
		Str("title", p.Title).
		Str("body", p.Body).
		Str("tag", p.Tag).
		Msg("notification")
	return nil
}

// MessageWriter is the subset of *kafka.Writer used by KafkaDispatcher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds configuration for a KafkaDispatcher.
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// Writer overrides the writer built from Brokers and Topic.
	Writer MessageWriter
}

// KafkaDispatcher publishes notifications to a Kafka topic. Messages are keyed
// by tag so repeats of the same alert land on the same partition.
type KafkaDispatcher struct {
	writer MessageWriter
}

// NewKafkaDispatcher creates a new KafkaDispatcher.
func NewKafkaDispatcher(cfg KafkaConfig) *KafkaDispatcher {
	writer := cfg.Writer
	if writer == nil {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		}
	}
	return &KafkaDispatcher{writer: writer}
}

// Dispatch publishes the payload as JSON.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, p Payload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(p.Tag),
		Value: value,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// PubSubConfig holds configuration for a PubSubDispatcher.
type PubSubConfig struct {
	// Client is an existing Pub/Sub client. The dispatcher does not close it.
	Client *pubsub.Client

	// Topic is the topic name or ID notifications are published to.
	Topic string
}

// PubSubDispatcher publishes notifications to a Pub/Sub topic.
type PubSubDispatcher struct {
	publisher *pubsub.Publisher

	mu     sync.RWMutex
	closed bool
}

// NewPubSubDispatcher creates a new PubSubDispatcher.
func NewPubSubDispatcher(cfg PubSubConfig) (*PubSubDispatcher, error) {
	if cfg.Client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("pubsub topic is required")
	}
	return &PubSubDispatcher{publisher: cfg.Client.Publisher(cfg.Topic)}, nil
}

// Dispatch publishes the payload and waits for the server to acknowledge it.
func (d *PubSubDispatcher) Dispatch(ctx context.Context, p Payload) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrTransportClosed
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	result := d.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"tag": p.Tag},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	return nil
}

// Close flushes pending messages and stops the publisher.
func (d *PubSubDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.publisher.Stop()
		d.closed = true
	}
	return nil
}

// MultiDispatcher fans a payload out to several transports. Every transport is
// attempted; the joined error reports the ones that failed.
type MultiDispatcher []Dispatcher

// Dispatch sends p to every transport.
func (m MultiDispatcher) Dispatch(ctx context.Context, p Payload) error {
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
