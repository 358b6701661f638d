package kafka

import (
	"context"
	"encoding/json"
	"time"

	"competition-service/internal/domain"
	"github.com/labstack/gommon/log"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by Publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits competition events keyed by competition id, so every event of
// one competition lands on the same partition in order.
type Publisher struct {
	writer MessageWriter
}

// NewWriter builds an async writer; delivery failures are logged by the completion hook.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("kafka: deliver %d event(s) to %s: %v", len(messages), topic, err)
			}
		},
	}
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Errorf("kafka: encode %s event: %v", event.Type, err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(event.CompetitionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Errorf("kafka: publish %s event: %v", event.Type, err)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
