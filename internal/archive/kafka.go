package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/claude/grouplift/internal/rotation"
)

// EventSessionFinished is the event_type header of published sessions.
const EventSessionFinished = "session.finished"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is a Sink that publishes finished sessions as events,
// keyed by archive key so all deliveries of one session share a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
		topic: topic,
	}
}

type sessionFinishedEvent struct {
	EventType  string        `json:"event_type"`
	ArchiveKey string        `json:"archive_key"`
	OccurredAt time.Time     `json:"occurred_at"`
	Session    rotation.View `json:"session"`
}

// ArchiveSession implements Sink.
func (p *KafkaPublisher) ArchiveSession(ctx context.Context, view rotation.View) error {
	occurred := view.StartedAt
	if view.FinishedAt != nil {
		occurred = *view.FinishedAt
	}
	payload, err := json.Marshal(sessionFinishedEvent{
		EventType:  EventSessionFinished,
		ArchiveKey: view.Key.String(),
		OccurredAt: occurred.UTC(),
		Session:    view,
	})
	if err != nil {
		return fmt.Errorf("encoding session event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(view.Key.String()),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSessionFinished)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing session %s to %s: %w", view.ID, p.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
