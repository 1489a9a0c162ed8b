package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/telemetry"
)

// ErrPermanent помечает ошибку обработки, после которой повторять
// доставку бессмысленно. Такое сообщение уходит в DLQ.
var ErrPermanent = errors.New("permanent handler failure")

// Permanent оборачивает err в ErrPermanent.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler обрабатывает одно сообщение. Ошибка без ErrPermanent
// возвращает сообщение в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Router выбирает обработчик по типу сообщения.
type Router map[MessageType]Handler

// Handle реализует Handler. Неизвестный тип — постоянная ошибка.
func (r Router) Handle(ctx context.Context, msg *Delivery) error {
	h, ok := r[msg.Message.Type]
	if !ok {
		return Permanent(fmt.Errorf("unknown message type %q", msg.Message.Type))
	}
	return h(ctx, msg)
}

// Delivery — разобранное сообщение вместе с признаком повторной доставки.
type Delivery struct {
	Message Message

	// Redelivered — сообщение уже возвращалось в очередь.
	Redelivered bool
}

// outcome — чем закончилась обработка доставки.
type outcome string

const (
	outcomeAck     outcome = "ack"
	outcomeRequeue outcome = "requeue"
	outcomeDead    outcome = "dead"
)

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	Queue   string
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит consumer.
	// Воркеры берут по одному.
	Prefetch int

	// Tag — consumer tag в RabbitMQ; если пусто, его выдаст брокер.
	Tag string
}

// Consumer читает очередь и передаёт сообщения обработчику.
// После разрыва соединения подписка восстанавливается автоматически.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Start блокирует до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		reconnected := c.conn.ReconnectNotify()
		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consumer started")
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("subscription lost, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reconnected:
		}
	}
}

// Stop отменяет Start.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			res := c.process(ctx, raw)
			telemetry.MessagesHandled.WithLabelValues(c.cfg.Queue, string(res)).Inc()
			if err := settle(raw, res); err != nil {
				c.logger.Warn("settle delivery failed", "outcome", res, "error", err)
			}
		}
	}
}

// process разбирает сообщение и вызывает обработчик.
// Паника обработчика считается постоянной ошибкой.
func (c *Consumer) process(ctx context.Context, raw amqp.Delivery) (res outcome) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		return outcomeDead
	}
	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "panic", r)
			res = outcomeDead
		}
	}()

	logger.Debug("received message", "redelivered", raw.Redelivered)
	err := c.cfg.Handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered})
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrPermanent):
		logger.Error("handler failed, dead-lettering", "error", err)
		return outcomeDead
	default:
		logger.Error("handler failed, requeueing", "error", err)
		return outcomeRequeue
	}
}

func settle(raw amqp.Delivery, res outcome) error {
	switch res {
	case outcomeAck:
		return raw.Ack(false)
	case outcomeRequeue:
		return raw.Nack(false, true)
	default:
		return raw.Nack(false, false)
	}
}

// ParsePayload декодирует payload сообщения в T.
// После транспорта payload приходит как map, поэтому он перекодируется.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(msg.Payload); err != nil {
			return result, fmt.Errorf("marshal payload: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return result, nil
}
