package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/consumer"
	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/rabbitmq"
)

// EventConsumer feeds domain events from the source queue into a Dispatcher
type EventConsumer struct {
	cfg         config.DispatcherConfig
	conn        *rabbitmq.Connection
	dispatcher  *Dispatcher
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     bool

	// handling is held while a message is processed so Stop can wait for it
	handling sync.Mutex
}

func NewEventConsumer(cfg config.DispatcherConfig, conn *rabbitmq.Connection, dispatcher *Dispatcher, logger *zap.Logger) *EventConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventConsumer{
		cfg:         cfg,
		conn:        conn,
		dispatcher:  dispatcher,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("automation-dispatcher-%d", time.Now().Unix()),
	}
}

// Start begins consuming. The source queue must already exist.
func (c *EventConsumer) Start() error {
	if c.cfg.SourceQueue == "" {
		return fmt.Errorf("source queue is required")
	}

	if err := c.startConsuming(); err != nil {
		return err
	}

	c.started = true
	c.logger.Info("Event consumer started",
		zap.String("source_queue", c.cfg.SourceQueue),
		zap.String("consumer_tag", c.consumerTag),
	)
	return nil
}

func (c *EventConsumer) startConsuming() error {
	if err := c.conn.SetQoS(c.cfg.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.conn.ConsumeMessages(
		c.cfg.SourceQueue,
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming from queue %s (queue may not exist): %w", c.cfg.SourceQueue, err)
	}

	go c.processMessages(messages)
	return nil
}

// Stop stops pulling messages and waits for the message being handled to be
// dispatched and settled. Webhook work it queued finishes when the dispatcher
// is closed.
func (c *EventConsumer) Stop() {
	c.logger.Info("Stopping event consumer", zap.String("consumer_tag", c.consumerTag))
	c.cancel()

	if c.conn != nil {
		if ch := c.conn.GetChannel(); ch != nil {
			if err := ch.Cancel(c.consumerTag, false); err != nil {
				c.logger.Error("Failed to cancel consumer",
					zap.String("consumer_tag", c.consumerTag),
					zap.Error(err),
				)
			}
		}
	}

	c.handling.Lock()
	defer c.handling.Unlock()
	c.logger.Info("Event consumer stopped", zap.String("consumer_tag", c.consumerTag))
}

func (c *EventConsumer) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				c.restart()
				return
			}
			if !c.handle(msg) {
				return
			}
		}
	}
}

// handle processes one delivery. A message that arrives after Stop is put
// back on the queue unprocessed and handle reports false.
func (c *EventConsumer) handle(msg amqp.Delivery) bool {
	c.handling.Lock()
	defer c.handling.Unlock()

	if c.ctx.Err() != nil {
		if err := msg.Nack(false, true); err != nil {
			c.logger.Warn("Failed to requeue message after stop",
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.Error(err),
			)
		}
		return false
	}
	consumer.ProcessMessage(c.logger, c.cfg.SourceQueue, msg, c)
	return true
}

// restart re-registers the consumer after the channel closed. The connection
// reconnects on its own; this waits for it with growing pauses.
func (c *EventConsumer) restart() {
	c.logger.Warn("Message channel closed, waiting for reconnection...",
		zap.String("source_queue", c.cfg.SourceQueue),
	)
	for _, wait := range []time.Duration{2 * time.Second, 5 * time.Second, 15 * time.Second, 30 * time.Second} {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
		}
		if !c.started {
			return
		}
		err := c.startConsuming()
		if err == nil {
			c.logger.Info("Event consumer resumed", zap.String("source_queue", c.cfg.SourceQueue))
			return
		}
		c.logger.Error("Failed to restart consuming after channel close",
			zap.String("source_queue", c.cfg.SourceQueue),
			zap.Error(err),
		)
	}
	c.logger.Error("Event consumer gave up reconnecting", zap.String("source_queue", c.cfg.SourceQueue))
}

// HandleEvent implements consumer.EventHandler. Malformed events are
// rejected; everything after validation is the dispatcher's concern. The
// dispatch is not tied to the consumer's lifetime, so a message being handled
// during Stop still runs its rules before it is acked.
func (c *EventConsumer) HandleEvent(decoded []byte) error {
	var event models.DomainEvent
	if err := json.Unmarshal(decoded, &event); err != nil {
		return fmt.Errorf("failed to unmarshal domain event: %w", err)
	}
	if err := models.ValidateEvent(&event); err != nil {
		return err
	}
	c.dispatcher.Dispatch(context.WithoutCancel(c.ctx), event.Event, event.Context)
	return nil
}
