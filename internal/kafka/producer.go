package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated  = "ticket.created"
	EventTicketAppended = "ticket.appended"
	EventTicketLocked   = "ticket.locked"
	EventTicketReplied  = "ticket.replied"
)

// TicketEventProducer publishes ticket lifecycle events; swapped for a fake in tests.
type TicketEventProducer interface {
	ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{})
}

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes ticket events to a topic. Delivery is best-effort: failures are logged
// and never reach the caller, since the record store row is the source of truth.
type Producer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewProducer returns a producer; with no brokers or no topic every method is a no-op.
func NewProducer(brokers []string, topic string, logger *slog.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return &Producer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// ProduceTicketEvent sends {"event", "event_id", "occurred_at", ...payload}. Messages are
// keyed by ticket code so one ticket's events stay ordered within a partition.
func (p *Producer) ProduceTicketEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{
		"event":       event,
		"event_id":    uuid.NewString(),
		"occurred_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("kafka: marshal ticket event", "event", event, "error", err)
		return
	}
	var key []byte
	if code, ok := payload["code"].(string); ok {
		key = []byte(code)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		p.logger.Warn("kafka: write ticket event", "event", event, "error", err)
	}
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
