package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/logger"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestNewProducer_Disabled(t *testing.T) {
	p := NewProducer(nil, "ticket-events", logger.Nop())
	p.ProduceTicketEvent(context.Background(), EventTicketCreated, map[string]interface{}{"code": "K1"})
	assert.NoError(t, p.Close())
}

func TestProduceTicketEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: logger.Nop()}

	p.ProduceTicketEvent(context.Background(), EventTicketLocked, map[string]interface{}{
		"code":      "K1700000000",
		"locked_by": "op1",
	})

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("K1700000000"), w.msgs[0].Key)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "ticket.locked", body["event"])
	assert.Equal(t, "op1", body["locked_by"])
	assert.NotEmpty(t, body["event_id"])
	assert.NotEmpty(t, body["occurred_at"])
}

func TestProduceTicketEvent_WriteErrorSwallowed(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: w, logger: logger.Nop()}

	assert.NotPanics(t, func() {
		p.ProduceTicketEvent(context.Background(), EventTicketCreated, map[string]interface{}{})
	})
	assert.Len(t, w.msgs, 1)
	assert.Nil(t, w.msgs[0].Key)
}
