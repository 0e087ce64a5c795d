package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marminbh/automation-svc/internal/models"
)

type fakeBroker struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
	err        error
}

func (b *fakeBroker) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	b.exchange, b.routingKey, b.msg = exchange, routingKey, msg
	return b.err
}

func TestCommandPublisher(t *testing.T) {
	broker := &fakeBroker{}
	pub := NewCommandPublisher(broker, "crm.commands")
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	cmd := models.MutationCommand{
		ID:         "cmd-1",
		Action:     models.ActionMoveStage,
		RuleID:     "rule-1",
		EntityType: models.EntityDeal,
		EntityID:   "682c5990bf4a775c8de9598a",
		Params:     map[string]any{"stageId": "s2"},
		Source:     models.SourceWorkflow,
		IssuedAt:   issued,
	}
	require.NoError(t, pub.Publish(context.Background(), cmd))

	assert.Equal(t, "crm.commands", broker.exchange)
	assert.Equal(t, "deal.move_stage", broker.routingKey)
	assert.Equal(t, "cmd-1", broker.msg.MessageId)
	assert.Equal(t, issued, broker.msg.Timestamp)

	var decoded models.MutationCommand
	require.NoError(t, json.Unmarshal(broker.msg.Body, &decoded))
	assert.Equal(t, cmd.EntityID, decoded.EntityID)
	assert.Equal(t, models.SourceWorkflow, decoded.Source)
	assert.Equal(t, "s2", decoded.Params["stageId"])

	broker.err = errors.New("channel closed")
	assert.Error(t, pub.Publish(context.Background(), cmd))
}
