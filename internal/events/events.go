// Package events publishes ranking analytics events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names an analytics event.
type EventType string

// EventTypeRankingAccepted is emitted for every validated submission.
const EventTypeRankingAccepted EventType = "ranking.accepted"

// RankingAccepted carries an accepted order and the comparisons that produced it.
type RankingAccepted struct {
	Type             EventType       `json:"type"`
	AlbumID          string          `json:"album_id"`
	UserID           *int64          `json:"user_id,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	RankingID        *int64          `json:"ranking_id,omitempty"`
	OrderedIDs       []string        `json:"ordered_ids"`
	Comparisons      json.RawMessage `json:"comparisons,omitempty"`
	ComparisonsCount int             `json:"comparisons_count"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Publisher sends ranking events.
type Publisher interface {
	PublishRankingAccepted(ctx context.Context, event RankingAccepted) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by album id.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// PublishRankingAccepted writes one event.
func (p *KafkaPublisher) PublishRankingAccepted(ctx context.Context, event RankingAccepted) error {
	event.Type = EventTypeRankingAccepted
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AlbumID),
		Value: payload,
		Time:  event.Timestamp,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	return nil
}

// NopPublisher discards events.
type NopPublisher struct{}

// PublishRankingAccepted does nothing.
func (NopPublisher) PublishRankingAccepted(context.Context, RankingAccepted) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }
