// Package events publishes flagged declarations to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// Flagged is the message body for one flagged declaration.
type Flagged struct {
	EventID string     `json:"event_id"`
	RunID   string     `json:"run_id"`
	Emitted time.Time  `json:"emitted_at"`
	Row     models.Row `json:"row"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes Flagged events keyed by declaration id.
type Publisher struct {
	w     messageWriter
	runID string
	now   func() time.Time
}

// NewPublisher connects a writer for topic on brokers.
func NewPublisher(brokers []string, topic, runID string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newPublisher(w, runID)
}

func newPublisher(w messageWriter, runID string) *Publisher {
	return &Publisher{w: w, runID: runID, now: func() time.Time { return time.Now().UTC() }}
}

// Publish sends one event for row.
func (p *Publisher) Publish(ctx context.Context, row models.Row) error {
	evt := Flagged{
		EventID: uuid.NewString(),
		RunID:   p.runID,
		Emitted: p.now(),
		Row:     row,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(row.DeclarationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.EventID)},
			{Key: "run_id", Value: []byte(p.runID)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", row.DeclarationID, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}
