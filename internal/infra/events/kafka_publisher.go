package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"newspay-l402/internal/domain/model"
	"newspay-l402/internal/domain/ports/adapter"
	"newspay-l402/internal/infra/logging"
)

var _ adapter.EventPublisher = (*KafkaPublisher)(nil)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes lifecycle events as JSON, keyed by session id so a
// session's events stay ordered within one partition.
type KafkaPublisher struct {
	w   messageWriter
	log *zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zerolog.Logger) *KafkaPublisher {
	l := logger.With().Str("component", "KafkaPublisher").Str("topic", topic).Logger()
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				l.Warn().Err(err).Int("messages", len(msgs)).Msg("kafka batch failed")
			}
		},
	}
	return &KafkaPublisher{w: w, log: &l}
}

func newKafkaPublisherWithWriter(w messageWriter, logger *zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.PaymentEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if id := logging.TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(id)})
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }
