// Package dispatcher routes domain events to automation rules and webhook
// subscriptions.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/condition"
	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/worker"
)

// Repository is the read side the dispatcher needs
type Repository interface {
	ActiveRulesByTrigger(ctx context.Context, trigger models.RuleTrigger) ([]models.Rule, error)
	MatchingSubscriptions(ctx context.Context, event string) ([]models.WebhookSubscription, error)
	GetStage(ctx context.Context, id string) (*models.PipelineStage, error)
}

// RuleRunner executes a matched rule
type RuleRunner interface {
	Run(ctx context.Context, rule *models.Rule, event string, ectx models.EventContext) models.ExecutionResult
}

// Deliverer sends webhooks, or persists them for the retry sweep
type Deliverer interface {
	Deliver(ctx context.Context, sub *models.WebhookSubscription, event string, ectx models.EventContext) (*worker.DeliveryOutcome, error)
	Defer(ctx context.Context, sub *models.WebhookSubscription, event string, ectx models.EventContext) error
}

// Dispatcher is the single entry point for domain events
type Dispatcher struct {
	cfg        config.DispatcherConfig
	repo       Repository
	rules      RuleRunner
	deliverer  Deliverer
	ingest     *worker.Pool
	fanout     *worker.Pool
	deliveries *worker.Pool
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher with its ingest, fan-out and delivery
// pools
func NewDispatcher(cfg config.DispatcherConfig, repo Repository, rules RuleRunner, deliverer Deliverer, logger *zap.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Dispatcher{
		cfg:        cfg,
		repo:       repo,
		rules:      rules,
		deliverer:  deliverer,
		ingest:     worker.NewPool("event-ingest", cfg.IngestWorkers, cfg.QueueSize, logger),
		fanout:     worker.NewPool("webhook-fanout", cfg.FanoutWorkers, cfg.QueueSize, logger),
		deliveries: worker.NewPool("webhook-delivery", cfg.DeliveryWorkers, cfg.QueueSize, logger),
		logger:     logger,
	}
}

// Start launches the worker pools
func (d *Dispatcher) Start() {
	d.ingest.Start()
	d.fanout.Start()
	d.deliveries.Start()
}

// Close stops accepting events and waits for queued work to finish. Accepted
// events are dispatched before the webhook pools stop, so their fan-out is
// drained too. Deliveries still queued when ctx ends are persisted for the
// retry sweep.
func (d *Dispatcher) Close(ctx context.Context) error {
	ingestErr := d.ingest.Stop(ctx)
	fanoutErr := d.fanout.Stop(ctx)
	deliveryErr := d.deliveries.Stop(ctx)
	return errors.Join(ingestErr, fanoutErr, deliveryErr)
}

// DispatchAsync queues the event for Dispatch on the ingest pool. It reports
// false when the queue is full or the dispatcher is closing; the caller still
// owns the event then. The dispatch outlives ctx's cancellation.
func (d *Dispatcher) DispatchAsync(ctx context.Context, event string, ectx models.EventContext) bool {
	ctx = context.WithoutCancel(ctx)
	return d.ingest.Submit(func(context.Context) {
		d.Dispatch(ctx, event, ectx)
	})
}

// Dispatch handles one domain event. Matching rules run before Dispatch
// returns; webhook deliveries are queued and happen in the background. Errors
// are logged and never reach the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, ectx models.EventContext) {
	var catcher panics.Catcher
	catcher.Try(func() { d.dispatch(ctx, event, ectx) })
	if r := catcher.Recovered(); r != nil {
		d.logger.Error("Dispatch panicked",
			zap.String("event", event),
			zap.String("entity_id", ectx.EntityID),
			zap.Any("panic", r.Value),
			zap.ByteString("stack", r.Stack),
		)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event string, ectx models.EventContext) {
	d.logger.Info("Dispatching event",
		zap.String("event", event),
		zap.String("entity_type", string(ectx.EntityType)),
		zap.String("entity_id", ectx.EntityID),
	)

	d.runRules(ctx, event, ectx)
	if models.IsWebhookEvent(event) {
		d.queueFanout(ctx, event, ectx)
	}
	d.cascade(ctx, event, ectx)
}

func (d *Dispatcher) runRules(ctx context.Context, event string, ectx models.EventContext) {
	rules, err := d.repo.ActiveRulesByTrigger(ctx, models.TriggerForEvent(event))
	if err != nil {
		d.logger.Error("Failed to load rules for event",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	snapshot := ectx.Snapshot()
	for i := range rules {
		rule := &rules[i]
		var catcher panics.Catcher
		catcher.Try(func() {
			if !condition.Evaluate(rule.Conditions, snapshot) {
				return
			}
			result := d.rules.Run(ctx, rule, event, ectx)
			d.logger.Info("Rule executed",
				zap.String("rule_id", rule.ID.String()),
				zap.String("event", event),
				zap.Int("actions", len(result.ActionsExecuted)),
				zap.Bool("success", result.Success),
			)
		})
		if r := catcher.Recovered(); r != nil {
			d.logger.Error("Rule execution panicked",
				zap.String("rule_id", rule.ID.String()),
				zap.String("event", event),
				zap.Any("panic", r.Value),
			)
		}
	}
}

// queueFanout hands subscription matching to the fan-out pool. When that
// queue is full the matching runs here and every delivery is persisted for
// the sweep instead.
func (d *Dispatcher) queueFanout(ctx context.Context, event string, ectx models.EventContext) {
	queued := d.fanout.Submit(func(ctx context.Context) {
		d.fanOut(ctx, event, ectx, false)
	})
	if !queued {
		d.logger.Warn("Fan-out queue full, deferring deliveries",
			zap.String("event", event),
			zap.String("entity_id", ectx.EntityID),
		)
		d.fanOut(context.WithoutCancel(ctx), event, ectx, true)
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, event string, ectx models.EventContext, deferAll bool) {
	subs, err := d.repo.MatchingSubscriptions(ctx, event)
	if err != nil {
		d.logger.Error("Failed to load webhook subscriptions",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.Filters.Matches(ectx) {
			matched = append(matched, sub)
		}
	}
	if len(matched) == 0 {
		return
	}

	d.logger.Debug("Fanning out webhook deliveries",
		zap.String("event", event),
		zap.Int("subscriptions", len(matched)),
	)

	for start := 0; start < len(matched); start += d.cfg.BatchSize {
		if start > 0 && !deferAll {
			d.pause(ctx)
		}
		end := min(start+d.cfg.BatchSize, len(matched))
		for i := start; i < end; i++ {
			sub := matched[i]
			if deferAll || ctx.Err() != nil || !d.deliveries.Submit(d.deliveryTask(&sub, event, ectx)) {
				d.deferDelivery(ctx, &sub, event, ectx)
			}
		}
	}
}

func (d *Dispatcher) deliveryTask(sub *models.WebhookSubscription, event string, ectx models.EventContext) worker.Task {
	return func(ctx context.Context) {
		if ctx.Err() != nil {
			d.deferDelivery(ctx, sub, event, ectx)
			return
		}
		if _, err := d.deliverer.Deliver(ctx, sub, event, ectx); err != nil {
			d.logger.Error("Webhook delivery errored",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) deferDelivery(ctx context.Context, sub *models.WebhookSubscription, event string, ectx models.EventContext) {
	if err := d.deliverer.Defer(context.WithoutCancel(ctx), sub, event, ectx); err != nil {
		d.logger.Error("Failed to defer webhook delivery, event dropped for subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) pause(ctx context.Context) {
	if d.cfg.BatchPause <= 0 {
		return
	}
	timer := time.NewTimer(d.cfg.BatchPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// cascade raises the derived events: a stage change into a won or lost stage,
// and a deal update that touched the value.
func (d *Dispatcher) cascade(ctx context.Context, event string, ectx models.EventContext) {
	switch event {
	case models.EventDealStageChanged:
		stage := d.resolveStage(ctx, ectx)
		if stage == nil {
			return
		}
		if stage.IsWon {
			d.dispatch(ctx, models.EventDealWon, ectx)
		} else if stage.IsClosed {
			d.dispatch(ctx, models.EventDealLost, ectx)
		}
	case models.EventDealUpdated:
		if ectx.HasChanged("value") {
			d.dispatch(ctx, models.EventDealValueChanged, ectx)
		}
	}
}

// resolveStage reads the deal's new stage from a populated stage document, or
// looks it up by id.
func (d *Dispatcher) resolveStage(ctx context.Context, ectx models.EventContext) *models.PipelineStage {
	if doc, ok := ectx.Current["stage"].(map[string]any); ok {
		_, hasWon := doc["isWon"]
		_, hasClosed := doc["isClosed"]
		if hasWon || hasClosed {
			won, _ := doc["isWon"].(bool)
			closed, _ := doc["isClosed"].(bool)
			return &models.PipelineStage{ID: models.RefID(doc), IsWon: won, IsClosed: closed || won}
		}
	}

	id := models.RefID(ectx.Current["stageId"])
	if id == "" {
		id = models.RefID(ectx.Current["stage"])
	}
	if id == "" {
		return nil
	}

	stage, err := d.repo.GetStage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Debug("Stage not found, no cascade", zap.String("stage_id", id))
		} else {
			d.logger.Error("Failed to load stage", zap.String("stage_id", id), zap.Error(err))
		}
		return nil
	}
	return stage
}
