package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestKafkaPublisherEncodesEvent(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{w: w}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), Event{
		Type:       VisitCheckedIn,
		OccurredAt: at,
		SubjectID:  "U1",
		UserID:     7,
		Data:       map[string]any{"visit_id": "v1", "store_id": "store1"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "U1" || len(m.Headers) != 1 || string(m.Headers[0].Value) != VisitCheckedIn {
		t.Fatalf("message key/headers = %q %v", m.Key, m.Headers)
	}
	var got Event
	if err := json.Unmarshal(m.Value, &got); err != nil {
		t.Fatal(err)
	}
	if got.Type != VisitCheckedIn || got.UserID != 7 || !got.OccurredAt.Equal(at) || got.Data["visit_id"] != "v1" {
		t.Fatalf("decoded = %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("Close() = %v, closed=%v", err, w.closed)
	}
}

func TestEventKey(t *testing.T) {
	tests := []struct {
		e    Event
		want string
	}{
		{Event{Type: MemberLinked, SubjectID: "U1", UserID: 3}, "U1"},
		{Event{Type: MemberRegistrationIncomplete, UserID: 42}, "42"},
		{Event{Type: MemberRegistered}, MemberRegistered},
	}
	for _, tt := range tests {
		if got := tt.e.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
	}
}

func TestPublishStampsTime(t *testing.T) {
	w := &captureWriter{}
	p := &KafkaPublisher{w: w}
	if err := p.Publish(context.Background(), Event{Type: MemberRegistered}); err != nil {
		t.Fatal(err)
	}
	var got Event
	_ = json.Unmarshal(w.msgs[0].Value, &got)
	if got.OccurredAt.IsZero() {
		t.Fatal("OccurredAt not stamped")
	}
}
