package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"competition-service/internal/domain"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishKeysByCompetition(t *testing.T) {
	writer := &fakeWriter{}
	p := NewPublisher(writer)

	p.Publish(context.Background(), domain.Event{
		Type:          domain.EventResultImproved,
		CompetitionID: "comp-a",
		User:          "alice",
		Level:         2,
		Ms:            1500,
	})

	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "comp-a" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	if len(msg.Headers) != 1 || msg.Headers[0].Key != "event-type" || string(msg.Headers[0].Value) != string(domain.EventResultImproved) {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	var decoded domain.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if decoded.User != "alice" || decoded.Level != 2 || decoded.Ms != 1500 {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestPublishSwallowsWriterErrors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(writer)

	p.Publish(context.Background(), domain.Event{Type: domain.EventDataReset})

	if len(writer.messages) != 0 {
		t.Fatalf("expected nothing recorded, got %d", len(writer.messages))
	}
	if err := p.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}
