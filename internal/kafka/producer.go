package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-gigs/internal/config"
	"ms-gigs/internal/events"
	"ms-gigs/internal/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes gig events as JSON, one topic per event type, keyed by gig id
// so every event of a gig lands on the same partition.
type Producer struct {
	Writer messageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewProducer(brokers []string, topics config.TopicConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

func (p *Producer) topicFor(t events.Type) (string, error) {
	switch t {
	case events.GigProvisioned:
		return p.Topics.GigProvisioned, nil
	case events.TicketBooked:
		return p.Topics.TicketBooked, nil
	case events.ActCancelled:
		return p.Topics.ActCancelled, nil
	case events.GigCancelled:
		return p.Topics.GigCancelled, nil
	default:
		return "", fmt.Errorf("no topic for event type %q", t)
	}
}

func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	topic, err := p.topicFor(e.Type)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(strconv.FormatInt(e.GigID, 10)),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event to %s: %w", e.Type, topic, err)
	}

	if p.Logger != nil {
		p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("event %s for gig %d", e.ID, e.GigID))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
