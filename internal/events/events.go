// Package events publishes membership domain events for downstream
// consumers and reconciliation jobs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	MemberRegistered             = "member.registered"
	MemberRegistrationIncomplete = "member.registration_incomplete"
	MemberLinked                 = "member.linked"
	VisitCheckedIn               = "visit.checked_in"
	VisitSurveyed                = "visit.surveyed"
)

// Event is one domain fact.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	SubjectID  string         `json:"subject_id,omitempty"`
	UserID     uint           `json:"user_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Key partitions events so one member's events stay ordered.
func (e Event) Key() string {
	if e.SubjectID != "" {
		return e.SubjectID
	}
	if e.UserID != 0 {
		return strconv.FormatUint(uint64(e.UserID), 10)
	}
	return e.Type
}

// Publisher emits events. Publish must not block on the broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to one topic. Writes are async; broker
// failures are reported through the logger.
type KafkaPublisher struct {
	w messageWriter
}

// NewKafkaPublisher returns a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error("event publish failed", "topic", topic, "count", len(msgs), "error", err)
			}
		},
	}
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: b,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
