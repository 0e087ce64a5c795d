// Package rabbitmq wraps a single AMQP connection and channel that recover
// on their own after the broker drops them.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
)

const (
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
	maxInitialAttempts = 10
	publishAttempts    = 3
)

// Connection manages RabbitMQ connection and channel with automatic recovery
type Connection struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	config   *config.RabbitMQConfig
	name     string
	logger   *zap.Logger
	stopChan chan struct{}
	mu       sync.RWMutex

	reconnectMu  sync.Mutex
	reconnecting bool
}

// NewConnection creates a connection that reports itself to the broker as name
func NewConnection(rabbitMQConfig *config.RabbitMQConfig, name string, logger *zap.Logger) *Connection {
	return &Connection{
		config:   rabbitMQConfig,
		name:     name,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the broker, retrying with exponential backoff, then watches
// the connection for closures
func (c *Connection) Connect() error {
	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxInitialAttempts; attempt++ {
		if lastErr = c.dial(); lastErr == nil {
			go c.monitorConnection()
			return nil
		}
		c.logger.Warn("Initial connection to RabbitMQ failed, retrying...",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		if attempt < maxInitialAttempts {
			time.Sleep(backoff)
			backoff = nextBackoff(backoff)
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialAttempts, lastErr)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func (c *Connection) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Vhost:     c.config.VHost,
		Properties: amqp.Table{
			"connection_name": c.name,
		},
	}

	conn, err := amqp.DialConfig(c.config.ConnectionURL(), amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	c.conn, c.channel = conn, channel

	c.logger.Info("Connected to RabbitMQ",
		zap.String("connection_name", c.name),
		zap.String("host", c.config.Host),
		zap.String("vhost", c.config.VHost),
	)
	return nil
}

func (c *Connection) monitorConnection() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		var reason *amqp.Error
		select {
		case <-c.stopChan:
			return
		case reason = <-connClose:
		case reason = <-channelClose:
		}
		if reason == nil {
			// graceful close
			return
		}
		c.logger.Error("RabbitMQ connection lost, reconnecting",
			zap.String("reason", reason.Reason),
			zap.Int("code", reason.Code),
		)
		if !c.reconnect() {
			return
		}
	}
}

// reconnect redials until it succeeds or Close is called. It reports whether
// the connection is back.
func (c *Connection) reconnect() bool {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return false
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()
	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return false
		default:
		}

		err := c.dial()
		if err == nil {
			c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
			return true
		}
		c.logger.Warn("Failed to reconnect to RabbitMQ, retrying...",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-c.stopChan:
			return false
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// Close closes the channel and connection and stops reconnecting
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

func (c *Connection) current() (*amqp.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ok := c.channel != nil && !c.channel.IsClosed() && c.conn != nil && !c.conn.IsClosed()
	return c.channel, ok
}

// Publish sends a persistent JSON message. While the channel is down it
// retries a few times before giving up.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if msg.ContentType == "" {
		msg.ContentType = "application/json"
	}
	msg.DeliveryMode = amqp.Persistent
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	wait := 100 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		ch, ok := c.current()
		if ok {
			lastErr = ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
			if lastErr == nil {
				return nil
			}
			if _, stillOK := c.current(); stillOK {
				return fmt.Errorf("failed to publish message: %w", lastErr)
			}
		} else {
			lastErr = fmt.Errorf("RabbitMQ channel is not initialized or closed")
		}

		if attempt == publishAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("failed to publish message after %d attempts: %w", publishAttempts, lastErr)
}

// ConsumeMessages starts consuming messages from a queue
func (c *Connection) ConsumeMessages(queue, consumer string, autoAck, exclusive, noLocal, noWait bool) (<-chan amqp.Delivery, error) {
	ch, ok := c.current()
	if !ok {
		return nil, fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}

	messages, err := ch.Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return messages, nil
}

// SetQoS sets the prefetch limits for the channel
func (c *Connection) SetQoS(prefetchCount, prefetchSize int, global bool) error {
	ch, ok := c.current()
	if !ok {
		return fmt.Errorf("RabbitMQ channel is not initialized or closed")
	}
	if err := ch.Qos(prefetchCount, prefetchSize, global); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

// GetChannel returns the current channel
func (c *Connection) GetChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// IsHealthy checks if the connection and channel are open
func (c *Connection) IsHealthy() bool {
	_, ok := c.current()
	return ok
}
