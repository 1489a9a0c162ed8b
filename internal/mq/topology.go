package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange, Queue и RoutingKey — имена объектов брокера.
type (
	Exchange   string
	Queue      string
	RoutingKey string
)

const (
	// ExchangeNodes — команды машинам. Ключ маршрутизации совпадает
	// с именем очереди машины.
	ExchangeNodes Exchange = "conveyor.nodes"

	// ExchangeEvents — события о node.
	ExchangeEvents Exchange = "conveyor.events"

	ExchangeDLQ Exchange = "conveyor.dlq"
)

// Общие очереди и их ключи.
const (
	QueueNodesFinished Queue = "nodes.finished"
	QueueDLQNodes      Queue = "dlq.nodes"

	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQNodes RoutingKey = "nodes"
)

// SetupTopology объявляет обменники и общие очереди.
// Очереди машин объявляются отдельно через DeclareMachineQueue.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		if err := declareAndBind(ch, string(QueueNodesFinished), RoutingKeyFinished, ExchangeEvents, nil); err != nil {
			return err
		}
		return declareAndBind(ch, string(QueueDLQNodes), RoutingKeyDLQNodes, ExchangeDLQ, nil)
	})
}

// DeclareMachineQueue объявляет очередь машины (воркеров или supervisor'а)
// и привязывает её к ExchangeNodes по её имени.
// Отклонённые сообщения уходят в dlq.nodes.
func DeclareMachineQueue(ctx context.Context, conn *Connection, name string) error {
	args := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQNodes),
	}
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		return declareAndBind(ch, name, RoutingKey(name), ExchangeNodes, args)
	})
}

// exchangeKinds — тип каждого обменника. Команды адресуются очереди
// по имени, события допускают подписку по шаблону.
var exchangeKinds = []struct {
	name Exchange
	kind string
}{
	{ExchangeNodes, amqp.ExchangeDirect},
	{ExchangeEvents, amqp.ExchangeTopic},
	{ExchangeDLQ, amqp.ExchangeDirect},
}

func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range exchangeKinds {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

// declareAndBind объявляет durable очередь и привязывает её к exchange.
func declareAndBind(ch *amqp.Channel, queue string, key RoutingKey, exchange Exchange, args amqp.Table) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, string(key), string(exchange), false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}
