package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection держит одно AMQP соединение с одним каналом и
// восстанавливает их после разрыва.
//
// Все consumers и publishers процесса работают через общий Connection;
// о переподключении узнают через Reconnected.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	// reconnected закрывается после очередного переподключения
	// и заменяется новым.
	reconnected chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	newBackOff func() backoff.BackOff
}

// NewConnection подключается к брокеру. Первая попытка не повторяется:
// недоступный брокер при старте процесса — ошибка конфигурации.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connection{
		url:         url,
		logger:      logger.With("component", "mq"),
		reconnected: make(chan struct{}),
		done:        make(chan struct{}),
		newBackOff:  reconnectBackOff,
	}

	if err := c.dial(); err != nil {
		return nil, err
	}
	c.logger.Info("connected to broker")

	go c.supervise()

	return c, nil
}

func reconnectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, ch
	c.mu.Unlock()
	return nil
}

// supervise ждёт закрытия соединения брокером и переподключается.
func (c *Connection) supervise() {
	for {
		c.mu.RLock()
		closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		select {
		case <-c.done:
			return
		case err := <-closed:
			c.logger.Warn("connection lost", "error", err)
		}

		if err := c.redial(); err != nil {
			return
		}
		c.logger.Info("reconnected to broker")

		c.mu.Lock()
		close(c.reconnected)
		c.reconnected = make(chan struct{})
		c.mu.Unlock()
	}
}

// redial повторяет dial до успеха или Close.
func (c *Connection) redial() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	return backoff.RetryNotify(c.dial, backoff.WithContext(c.newBackOff(), ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("reconnect failed", "error", err, "retry_in", next)
		})
}

// Channel возвращает текущий канал; nil до первого подключения.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify возвращает канал, который закроется при следующем
// переподключении. Брать его нужно до попытки подписки, иначе
// переподключение между ними будет пропущено.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconnected
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.channel != nil {
			if cerr := c.channel.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				err = errors.Join(err, fmt.Errorf("close channel: %w", cerr))
			}
		}
		if c.conn != nil {
			if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) {
				err = errors.Join(err, fmt.Errorf("close connection: %w", cerr))
			}
		}
		c.logger.Info("connection closed")
	})
	return err
}

// WithChannel вызывает fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return fmt.Errorf("no channel available")
	}
	return fn(ch)
}
