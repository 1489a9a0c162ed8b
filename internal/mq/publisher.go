package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	// MessageTypeNodeExecute — выполнить node (очередь воркеров машины).
	MessageTypeNodeExecute MessageType = "node.execute"

	// MessageTypeProcessKill — убить процесс (очередь supervisor'а).
	MessageTypeProcessKill MessageType = "process.kill"

	// MessageTypePathRemove — удалить файл или каталог (очередь supervisor'а).
	MessageTypePathRemove MessageType = "path.remove"

	// MessageTypeNodeFinished — node дошёл до финального статуса.
	MessageTypeNodeFinished MessageType = "node.finished"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NodeExecutePayload — payload команды выполнения node.
type NodeExecutePayload struct {
	NodeID uuid.UUID `json:"node_id"`

	// Repeat — сколько раз воркер может переотправить команду себе.
	Repeat int `json:"repeat"`
}

// ProcessKillPayload — payload команды завершения процесса.
type ProcessKillPayload struct {
	PID int `json:"pid"`
}

// PathRemovePayload — payload команды удаления пути.
type PathRemovePayload struct {
	Path string `json:"path"`
}

// NodeFinishedPayload — payload события о завершении node.
type NodeFinishedPayload struct {
	NodeID  uuid.UUID `json:"node_id"`
	GraphID uuid.UUID `json:"dag_id"`
	Status  string    `json:"status"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.Timestamp,
		Type:         string(msg.Type),
		Body:         body,
	}
	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, pub)
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, routingKey, err)
	}

	p.logger.Debug("published", "routing_key", routingKey, "message_id", msg.ID, "type", msg.Type)
	return nil
}

// PublishExecute отправляет node в очередь воркеров queue.
func (p *Publisher) PublishExecute(ctx context.Context, queue string, nodeID uuid.UUID, repeat int) error {
	msg := NewMessage(MessageTypeNodeExecute, NodeExecutePayload{NodeID: nodeID, Repeat: repeat})
	return p.Publish(ctx, ExchangeNodes, RoutingKey(queue), msg)
}

// PublishKill отправляет команду завершения процесса в очередь supervisor'а.
func (p *Publisher) PublishKill(ctx context.Context, queue string, pid int) error {
	msg := NewMessage(MessageTypeProcessKill, ProcessKillPayload{PID: pid})
	return p.Publish(ctx, ExchangeNodes, RoutingKey(queue), msg)
}

// PublishRemove отправляет команду удаления пути в очередь supervisor'а.
func (p *Publisher) PublishRemove(ctx context.Context, queue, path string) error {
	msg := NewMessage(MessageTypePathRemove, PathRemovePayload{Path: path})
	return p.Publish(ctx, ExchangeNodes, RoutingKey(queue), msg)
}

// PublishFinished публикует событие о завершении node.
// Потребитель: Orchestrator.
func (p *Publisher) PublishFinished(ctx context.Context, payload NodeFinishedPayload) error {
	msg := NewMessage(MessageTypeNodeFinished, payload)
	return p.Publish(ctx, ExchangeEvents, RoutingKeyFinished, msg)
}
