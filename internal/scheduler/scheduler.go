// Package scheduler runs the periodic sweeps: webhook retries, delayed rule
// continuations and retention cleanup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/models"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/worker"
)

// sweepConcurrency bounds the rows a single sweep works on at once
const sweepConcurrency = 8

// Repository is the persistence the sweeps need
type Repository interface {
	DueDeliveryLogs(ctx context.Context, now, staleBefore time.Time, limit int) ([]models.DeliveryLog, error)
	ClaimDeliveryLog(ctx context.Context, log *models.DeliveryLog) error
	FailDeliveryLog(ctx context.Context, id uuid.UUID, attempt int, reason string) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.WebhookSubscription, error)

	DueScheduledActions(ctx context.Context, now time.Time, limit int) ([]models.ScheduledAction, error)
	ClaimScheduledAction(ctx context.Context, id uuid.UUID) error
	FinishScheduledAction(ctx context.Context, id uuid.UUID, status models.ScheduledStatus, reason *string) error
	GetRule(ctx context.Context, id uuid.UUID) (*models.Rule, error)

	DeleteExpiredDeliveryLogs(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredExecutions(ctx context.Context, now time.Time) (int64, error)
	DeleteFinishedScheduledActions(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sender performs one attempt for a claimed delivery log row
type Sender interface {
	Send(ctx context.Context, log *models.DeliveryLog, sub *models.WebhookSubscription) (*worker.DeliveryOutcome, error)
}

// Resumer continues a delayed action chain
type Resumer interface {
	Resume(ctx context.Context, rule *models.Rule, sa *models.ScheduledAction) models.ExecutionResult
}

// ReapResult counts the rows one retention pass removed
type ReapResult struct {
	DeliveryLogs  int64 `json:"deliveryLogs"`
	Executions    int64 `json:"executions"`
	Continuations int64 `json:"continuations"`
}

type Scheduler struct {
	cfg     config.SchedulerConfig
	repo    Repository
	sender  Sender
	resumer Resumer
	logger  *zap.Logger
	now     func() time.Time
	cron    *cron.Cron
}

func New(cfg config.SchedulerConfig, repo Repository, sender Sender, resumer Resumer, logger *zap.Logger) *Scheduler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = models.LogRetention
	}
	return &Scheduler{
		cfg:     cfg,
		repo:    repo,
		sender:  sender,
		resumer: resumer,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used to decide what is due
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// RetryDue claims due retrying rows, and pending rows abandoned for longer
// than StaleAfter, and makes one attempt for each. It returns the number of
// rows this call claimed. Rows claimed by a concurrent sweep are skipped.
func (s *Scheduler) RetryDue(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.DueDeliveryLogs(ctx, now, now.Add(-s.cfg.StaleAfter), s.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}

	var claimed atomic.Int64
	p := pool.New().WithMaxGoroutines(sweepConcurrency)
	for i := range due {
		log := &due[i]
		p.Go(func() {
			if s.retry(ctx, log) {
				claimed.Add(1)
			}
		})
	}
	p.Wait()

	if len(due) > 0 {
		s.logger.Info("Retry sweep finished",
			zap.Int("due", len(due)),
			zap.Int64("claimed", claimed.Load()),
		)
	}
	return int(claimed.Load()), nil
}

func (s *Scheduler) retry(ctx context.Context, log *models.DeliveryLog) bool {
	if err := s.repo.ClaimDeliveryLog(ctx, log); err != nil {
		if !errors.Is(err, store.ErrNotClaimed) {
			s.logger.Error("Failed to claim delivery log",
				zap.String("log_id", log.ID.String()),
				zap.Error(err),
			)
		}
		return false
	}

	sub, err := s.repo.GetSubscription(ctx, log.SubscriptionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.fail(ctx, log, "subscription deleted")
		return true
	case err != nil:
		// the row stays pending and the stale sweep reclaims it
		s.logger.Error("Failed to load subscription for retry",
			zap.String("log_id", log.ID.String()),
			zap.String("subscription_id", log.SubscriptionID.String()),
			zap.Error(err),
		)
		return true
	case !sub.IsActive:
		s.fail(ctx, log, "subscription inactive")
		return true
	}

	if _, err := s.sender.Send(ctx, log, sub); err != nil {
		s.logger.Error("Webhook retry errored",
			zap.String("log_id", log.ID.String()),
			zap.Int("attempt", log.Attempts),
			zap.Error(err),
		)
	}
	return true
}

func (s *Scheduler) fail(ctx context.Context, log *models.DeliveryLog, reason string) {
	if err := s.repo.FailDeliveryLog(ctx, log.ID, log.Attempts, reason); err != nil {
		s.logger.Error("Failed to mark delivery log failed",
			zap.String("log_id", log.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("Webhook retry abandoned",
		zap.String("log_id", log.ID.String()),
		zap.String("subscription_id", log.SubscriptionID.String()),
		zap.String("reason", reason),
	)
}

// ResumeDue runs delayed action chains whose time has come. It returns the
// number of continuations this call claimed.
func (s *Scheduler) ResumeDue(ctx context.Context) (int, error) {
	due, err := s.repo.DueScheduledActions(ctx, s.now(), s.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}

	var claimed atomic.Int64
	p := pool.New().WithMaxGoroutines(sweepConcurrency)
	for i := range due {
		sa := &due[i]
		p.Go(func() {
			if s.resume(ctx, sa) {
				claimed.Add(1)
			}
		})
	}
	p.Wait()
	return int(claimed.Load()), nil
}

func (s *Scheduler) resume(ctx context.Context, sa *models.ScheduledAction) bool {
	if err := s.repo.ClaimScheduledAction(ctx, sa.ID); err != nil {
		if !errors.Is(err, store.ErrNotClaimed) {
			s.logger.Error("Failed to claim continuation",
				zap.String("continuation_id", sa.ID.String()),
				zap.Error(err),
			)
		}
		return false
	}

	rule, err := s.repo.GetRule(ctx, sa.RuleID)
	var reason string
	switch {
	case errors.Is(err, store.ErrNotFound):
		reason = "rule deleted"
	case err != nil:
		reason = fmt.Sprintf("failed to load rule: %v", err)
	case !rule.IsActive:
		reason = "rule inactive"
	}
	if reason != "" {
		s.finish(ctx, sa, models.ScheduledFailed, &reason)
		return true
	}

	result := s.resumer.Resume(context.WithoutCancel(ctx), rule, sa)
	s.logger.Info("Resumed delayed actions",
		zap.String("continuation_id", sa.ID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.Int("actions", len(result.ActionsExecuted)),
		zap.Bool("success", result.Success),
	)
	s.finish(ctx, sa, models.ScheduledDone, nil)
	return true
}

func (s *Scheduler) finish(ctx context.Context, sa *models.ScheduledAction, status models.ScheduledStatus, reason *string) {
	if err := s.repo.FinishScheduledAction(context.WithoutCancel(ctx), sa.ID, status, reason); err != nil {
		s.logger.Error("Failed to finish continuation",
			zap.String("continuation_id", sa.ID.String()),
			zap.Error(err),
		)
	}
}

// Reap deletes delivery logs and rule executions past their expiry, and
// finished continuations older than the retention window
func (s *Scheduler) Reap(ctx context.Context) (ReapResult, error) {
	now := s.now()
	var res ReapResult
	var err error

	if res.DeliveryLogs, err = s.repo.DeleteExpiredDeliveryLogs(ctx, now); err != nil {
		return res, err
	}
	if res.Executions, err = s.repo.DeleteExpiredExecutions(ctx, now); err != nil {
		return res, err
	}
	if res.Continuations, err = s.repo.DeleteFinishedScheduledActions(ctx, now.Add(-s.cfg.LogRetention)); err != nil {
		return res, err
	}

	s.logger.Info("Retention sweep finished",
		zap.Int64("delivery_logs", res.DeliveryLogs),
		zap.Int64("executions", res.Executions),
		zap.Int64("continuations", res.Continuations),
	)
	return res, nil
}

// Start registers the sweeps on their cron specs and starts the cron runner.
// A sweep still running when its next tick fires is skipped for that tick.
func (s *Scheduler) Start() error {
	logger := cronLogger{s.logger.Sugar()}
	s.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"retry", s.cfg.RetrySpec, func(ctx context.Context) error { _, err := s.RetryDue(ctx); return err }},
		{"resume", s.cfg.ResumeSpec, func(ctx context.Context) error { _, err := s.ResumeDue(ctx); return err }},
		{"reap", s.cfg.ReapSpec, func(ctx context.Context) error { _, err := s.Reap(ctx); return err }},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", job.name, job.spec, err)
		}
		s.logger.Info("Scheduled sweep", zap.String("sweep", job.name), zap.String("spec", job.spec))
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx := context.Background()
		if s.cfg.SweepTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.SweepTimeout)
			defer cancel()
		}
		if err := run(ctx); err != nil {
			s.logger.Error("Sweep failed", zap.String("sweep", name), zap.Error(err))
		}
	}
}

// Stop halts the cron runner and waits for running sweeps until ctx ends
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zap to cron's logger interface
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
