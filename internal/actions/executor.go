// Package actions performs a matched rule's ordered actions.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/template"
	"github.com/marminbh/automation-svc/internal/worker"
)

// Messenger delivers outbound email and SMS
type Messenger interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// CommandPublisher hands state mutations to the CRM
type CommandPublisher interface {
	Publish(ctx context.Context, cmd models.MutationCommand) error
}

// WebhookCaller makes the one-off call behind call_webhook
type WebhookCaller interface {
	Call(ctx context.Context, req worker.CallRequest) (*worker.DeliveryResult, error)
}

// Repository records rule runs and stores delayed continuations
type Repository interface {
	RecordRuleRun(ctx context.Context, id uuid.UUID, at time.Time) error
	CreateExecution(ctx context.Context, exec *models.RuleExecution) error
	CreateScheduledAction(ctx context.Context, sa *models.ScheduledAction) error
}

var errNotConfigured = errors.New("not configured")

type Executor struct {
	repo      Repository
	messenger Messenger
	commands  CommandPublisher
	webhooks  WebhookCaller
	logger    *zap.Logger
	now       func() time.Time
}

func NewExecutor(repo Repository, messenger Messenger, commands CommandPublisher, webhooks WebhookCaller, logger *zap.Logger) *Executor {
	return &Executor{
		repo:      repo,
		messenger: messenger,
		commands:  commands,
		webhooks:  webhooks,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for scheduling and bookkeeping
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// Run executes a rule that matched event and records the run. The rule's
// counters move once per call whatever the actions did.
func (e *Executor) Run(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext) models.ExecutionResult {
	if err := e.repo.RecordRuleRun(ctx, rule.ID, e.now()); err != nil {
		e.logger.Error("Failed to record rule run",
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}

	result := e.Execute(ctx, rule, event, ectx, rule.SortedActions(), false)
	e.audit(ctx, rule, event, ectx, result, false)
	return result
}

// Resume continues a chain that stopped at a delay
func (e *Executor) Resume(ctx context.Context, rule *models.Rule, sa *models.ScheduledAction) models.ExecutionResult {
	result := e.Execute(ctx, rule, sa.Event, sa.Context, sa.Actions, sa.SkipFirstDelay)
	e.audit(ctx, rule, sa.Event, sa.Context, result, true)
	return result
}

// Execute performs actions in the given order. A failing action is recorded
// and the next one still runs. At the first action that has to wait, the rest
// of the chain is stored as a continuation and Execute returns.
func (e *Executor) Execute(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, actions []models.Action, skipFirstDelay bool) models.ExecutionResult {
	data := template.DataFromEvent(event, ectx)
	outcomes := make([]models.ActionOutcome, 0, len(actions))

	for i, action := range actions {
		if delay := action.Delay(); delay > 0 && !(i == 0 && skipFirstDelay) {
			outcomes = append(outcomes, e.schedule(ctx, rule, event, ectx, actions[i:], delay))
			break
		}

		outcome := models.ActionOutcome{ActionID: action.ID, Type: action.Type}
		details, err := e.safePerform(ctx, rule, event, ectx, data, action)
		outcome.Success = err == nil
		outcome.Details = details
		if err != nil {
			outcome.Error = err.Error()
			e.logger.Warn("Rule action failed",
				zap.String("rule_id", rule.ID.String()),
				zap.String("action_id", action.ID),
				zap.String("action_type", string(action.Type)),
				zap.Error(err),
			)
		}
		outcomes = append(outcomes, outcome)
	}

	success := true
	for _, o := range outcomes {
		success = success && o.Success
	}
	return models.ExecutionResult{ActionsExecuted: outcomes, Success: success}
}

// schedule stores the continuation for the waiting action. A delay action
// resumes with the action after it; any other action resumes with itself,
// without waiting a second time.
func (e *Executor) schedule(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, remaining []models.Action, delay int) models.ActionOutcome {
	waiting := remaining[0]
	outcome := models.ActionOutcome{ActionID: waiting.ID, Type: waiting.Type, Success: true}

	resumeWith := remaining
	skipDelay := true
	if waiting.Type == models.ActionDelay {
		resumeWith = remaining[1:]
		skipDelay = false
	}
	if len(resumeWith) == 0 {
		outcome.Details = map[string]any{"scheduled": false, "delayMinutes": delay}
		return outcome
	}

	runAt := e.now().Add(time.Duration(delay) * time.Minute)
	sa := &models.ScheduledAction{
		RuleID:         rule.ID,
		Event:          event,
		Context:        ectx,
		Actions:        resumeWith,
		SkipFirstDelay: skipDelay,
		RunAt:          runAt,
		Status:         models.ScheduledPending,
	}
	if err := e.repo.CreateScheduledAction(ctx, sa); err != nil {
		outcome.Success = false
		outcome.Error = fmt.Sprintf("failed to schedule delayed actions: %v", err)
		e.logger.Error("Failed to schedule delayed actions",
			zap.String("rule_id", rule.ID.String()),
			zap.String("action_id", waiting.ID),
			zap.Error(err),
		)
		return outcome
	}

	outcome.Details = map[string]any{
		"scheduled":      true,
		"continuationId": sa.ID.String(),
		"runAt":          runAt.Format(time.RFC3339),
		"delayMinutes":   delay,
		"remaining":      len(resumeWith),
	}
	return outcome
}

func (e *Executor) safePerform(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, data template.Data, action models.Action) (details map[string]any, err error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		details, err = e.perform(ctx, rule, event, ectx, data, action)
	})
	if r := catcher.Recovered(); r != nil {
		return nil, r.AsError()
	}
	return details, err
}

func (e *Executor) audit(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext, result models.ExecutionResult, resumed bool) {
	exec := &models.RuleExecution{
		RuleID:          rule.ID,
		Event:           event,
		EntityType:      ectx.EntityType,
		EntityID:        ectx.EntityID,
		ActionsExecuted: result.ActionsExecuted,
		Success:         result.Success,
		Resumed:         resumed,
		CreatedAt:       e.now(),
	}
	if err := e.repo.CreateExecution(ctx, exec); err != nil {
		e.logger.Error("Failed to record rule execution",
			zap.String("rule_id", rule.ID.String()),
			zap.Error(err),
		)
	}
}
