package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, msg *Message) *Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var parsed Message
	require.NoError(t, json.Unmarshal(body, &parsed))
	return &Delivery{Message: parsed}
}

func TestParsePayload_AfterTransport(t *testing.T) {
	id := uuid.New()
	d := decode(t, NewMessage(MessageTypeNodeExecute, NodeExecutePayload{NodeID: id, Repeat: 2}))

	payload, err := ParsePayload[NodeExecutePayload](&d.Message)
	require.NoError(t, err)
	assert.Equal(t, id, payload.NodeID)
	assert.Equal(t, 2, payload.Repeat)
}

func TestRouter_DispatchesByType(t *testing.T) {
	var killed int
	router := Router{
		MessageTypeProcessKill: func(_ context.Context, d *Delivery) error {
			p, err := ParsePayload[ProcessKillPayload](&d.Message)
			killed = p.PID
			return err
		},
	}

	require.NoError(t, router.Handle(context.Background(), decode(t, NewMessage(MessageTypeProcessKill, ProcessKillPayload{PID: 42}))))
	assert.Equal(t, 42, killed)
}

func TestRouter_UnknownTypeIsPermanent(t *testing.T) {
	err := Router{}.Handle(context.Background(), decode(t, NewMessage(MessageTypePathRemove, PathRemovePayload{Path: "/tmp/x"})))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestPermanent_KeepsCause(t *testing.T) {
	cause := errors.New("bad payload")
	err := Permanent(cause)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.ErrorIs(t, err, cause)
}

func rawDelivery(t *testing.T, msg *Message) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return amqp.Delivery{Body: body}
}

func TestConsumer_ProcessOutcomes(t *testing.T) {
	msg := NewMessage(MessageTypeProcessKill, ProcessKillPayload{PID: 7})

	tests := []struct {
		name    string
		handler Handler
		want    outcome
	}{
		{"ok", func(context.Context, *Delivery) error { return nil }, outcomeAck},
		{"transient", func(context.Context, *Delivery) error { return errors.New("db down") }, outcomeRequeue},
		{"permanent", func(context.Context, *Delivery) error { return Permanent(errors.New("bad")) }, outcomeDead},
		{"panic", func(context.Context, *Delivery) error { panic("boom") }, outcomeDead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConsumer(nil, nil, ConsumerConfig{Queue: "q", Handler: tt.handler})
			assert.Equal(t, tt.want, c.process(context.Background(), rawDelivery(t, msg)))
		})
	}
}

func TestConsumer_MalformedBodyIsDeadLettered(t *testing.T) {
	called := false
	c := NewConsumer(nil, nil, ConsumerConfig{Queue: "q", Handler: func(context.Context, *Delivery) error {
		called = true
		return nil
	}})

	assert.Equal(t, outcomeDead, c.process(context.Background(), amqp.Delivery{Body: []byte("{not json")}))
	assert.False(t, called)
}

func TestConsumer_PassesRedelivered(t *testing.T) {
	var got bool
	c := NewConsumer(nil, nil, ConsumerConfig{Queue: "q", Handler: func(_ context.Context, d *Delivery) error {
		got = d.Redelivered
		return nil
	}})

	raw := rawDelivery(t, NewMessage(MessageTypeNodeFinished, NodeFinishedPayload{}))
	raw.Redelivered = true
	c.process(context.Background(), raw)
	assert.True(t, got)
}
