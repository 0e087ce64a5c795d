package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/marminbh/automation-svc/internal/models"
)

// Broker is the publishing side of a Connection
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// CommandPublisher sends rule mutation commands to the CRM's command exchange.
// The routing key is "<entityType>.<action>", e.g. "deal.move_stage".
type CommandPublisher struct {
	broker   Broker
	exchange string
}

func NewCommandPublisher(broker Broker, exchange string) *CommandPublisher {
	return &CommandPublisher{broker: broker, exchange: exchange}
}

func (p *CommandPublisher) Publish(ctx context.Context, cmd models.MutationCommand) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	return p.broker.Publish(ctx, p.exchange, RoutingKey(cmd), amqp.Publishing{
		MessageId: cmd.ID,
		Type:      string(cmd.Action),
		Timestamp: cmd.IssuedAt,
		Body:      body,
	})
}

// RoutingKey is the key a command is published under
func RoutingKey(cmd models.MutationCommand) string {
	return fmt.Sprintf("%s.%s", cmd.EntityType, cmd.Action)
}
