package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/template"
	"github.com/marminbh/automation-svc/internal/worker"
)

// perform carries out one action's single external effect
func (e *Executor) perform(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, data template.Data, action models.Action) (map[string]any, error) {
	if err := models.ValidateActionConfig(action); err != nil {
		return nil, err
	}

	switch cfg := action.Config.(type) {
	case *models.SendMessageConfig:
		return e.sendMessage(ctx, cfg, data)

	case *models.CallWebhookConfig:
		return e.callWebhook(ctx, rule, event, ectx, cfg, data)

	case *models.DelayConfig:
		// reached only when resuming past the wait
		return map[string]any{"waited": cfg.Minutes}, nil

	case *models.SendNotificationConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"userId":  template.Render(cfg.UserID, data),
			"title":   template.Render(cfg.Title, data),
			"message": template.Render(cfg.Message, data),
		})

	case *models.CreateTaskConfig:
		params := map[string]any{
			"title":       template.Render(cfg.Title, data),
			"description": template.Render(cfg.Description, data),
			"assigneeId":  template.Render(cfg.AssigneeID, data),
		}
		if cfg.DueInDays > 0 {
			params["dueAt"] = e.now().AddDate(0, 0, cfg.DueInDays).Format(time.RFC3339)
		}
		return e.publish(ctx, rule, ectx, action.Type, params)

	case *models.CreateRecordConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"entityType": cfg.EntityType,
			"fields":     template.RenderMap(cfg.Fields, data),
			"parent":     map[string]any{"entityType": ectx.EntityType, "entityId": ectx.EntityID},
		})

	case *models.UpdateFieldConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"field": cfg.Field,
			"value": template.Render(cfg.Value, data),
		})

	case *models.MoveStageConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"pipelineId": template.Render(cfg.PipelineID, data),
			"stageId":    template.Render(cfg.StageID, data),
		})

	case *models.AssignOwnerConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"ownerId": template.Render(cfg.OwnerID, data),
		})

	case *models.TagConfig:
		return e.publish(ctx, rule, ectx, action.Type, map[string]any{
			"tag": template.Render(cfg.Tag, data),
		})
	}

	return nil, fmt.Errorf("unsupported action type %q", action.Type)
}

func (e *Executor) sendMessage(ctx context.Context, cfg *models.SendMessageConfig, data template.Data) (map[string]any, error) {
	if e.messenger == nil {
		return nil, fmt.Errorf("messaging %w", errNotConfigured)
	}

	to := template.Render(cfg.To, data)
	if to == "" {
		return nil, fmt.Errorf("recipient resolved to empty")
	}
	body := template.Render(cfg.Body, data)

	var err error
	switch cfg.Channel {
	case "sms":
		err = e.messenger.SendSMS(ctx, to, body)
	default:
		err = e.messenger.SendEmail(ctx, to, template.Render(cfg.Subject, data), body)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cfg.Channel, err)
	}
	return map[string]any{"channel": cfg.Channel, "to": to}, nil
}

func (e *Executor) callWebhook(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, cfg *models.CallWebhookConfig, data template.Data) (map[string]any, error) {
	if e.webhooks == nil {
		return nil, fmt.Errorf("webhook calls %w", errNotConfigured)
	}

	body, err := worker.MarshalEnvelope(worker.BuildEnvelope(rule.ID.String(), event, ectx, e.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := e.webhooks.Call(ctx, worker.CallRequest{
		URL:     template.Render(cfg.URL, data),
		Method:  cfg.Method,
		Event:   event,
		Headers: template.RenderMap(cfg.Headers, data),
		Secret:  cfg.Secret,
		Body:    body,
	})
	details := map[string]any{}
	if result != nil {
		details["latencyMs"] = result.LatencyMs
		if result.HTTPStatus != nil {
			details["httpStatus"] = *result.HTTPStatus
		}
	}
	return details, err
}

func (e *Executor) publish(ctx context.Context, rule *models.Rule, ectx models.EventContext, action models.ActionType, params map[string]any) (map[string]any, error) {
	if e.commands == nil {
		return nil, fmt.Errorf("command publishing %w", errNotConfigured)
	}

	cmd := models.MutationCommand{
		ID:         uuid.NewString(),
		Action:     action,
		RuleID:     rule.ID.String(),
		EntityType: ectx.EntityType,
		EntityID:   ectx.EntityID,
		OwnerID:    rule.OwnerID,
		Params:     params,
		Source:     models.SourceWorkflow,
		IssuedAt:   e.now(),
	}
	if err := e.commands.Publish(ctx, cmd); err != nil {
		return nil, fmt.Errorf("failed to publish %s command: %w", action, err)
	}
	return map[string]any{"commandId": cmd.ID}, nil
}
