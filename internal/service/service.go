package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/marminbh/automation-svc/internal/actions"
	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/dispatcher"
	"github.com/marminbh/automation-svc/internal/handlers"
	"github.com/marminbh/automation-svc/internal/notify"
	"github.com/marminbh/automation-svc/internal/rabbitmq"
	"github.com/marminbh/automation-svc/internal/routes"
	"github.com/marminbh/automation-svc/internal/scheduler"
	"github.com/marminbh/automation-svc/internal/store"
	"github.com/marminbh/automation-svc/internal/worker"
)

// Service holds all application dependencies
// This eliminates global state and enables proper dependency injection
type Service struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
	RMQ    *rabbitmq.Connection

	Store      *store.Store
	Delivery   *worker.Service
	Executor   *actions.Executor
	Dispatcher *dispatcher.Dispatcher
	Scheduler  *scheduler.Scheduler
}

// NewService wires the engine on top of an open database and, when rmq is
// not nil, a broker connection used for mutation commands. Nothing is
// started.
func NewService(cfg *config.Config, db *gorm.DB, logger *zap.Logger, rmq *rabbitmq.Connection) *Service {
	st := store.New(db)
	delivery := worker.NewService(st, cfg.Delivery, logger.Named("delivery"))

	messenger := &notify.Messenger{
		Email: notify.NewEmailSender(cfg.Email, logger.Named("email")),
		SMS:   notify.NewSMSSender(cfg.SMS, logger.Named("sms")),
	}
	var commands actions.CommandPublisher
	if rmq != nil {
		commands = rabbitmq.NewCommandPublisher(rmq, cfg.Dispatcher.CommandExchange)
	}
	executor := actions.NewExecutor(st, messenger, commands, delivery, logger.Named("actions"))

	return &Service{
		Config:     cfg,
		DB:         db,
		Logger:     logger,
		RMQ:        rmq,
		Store:      st,
		Delivery:   delivery,
		Executor:   executor,
		Dispatcher: dispatcher.NewDispatcher(cfg.Dispatcher, st, executor, delivery, logger.Named("dispatcher")),
		Scheduler:  scheduler.New(cfg.Scheduler, st, delivery, executor, logger.Named("scheduler")),
	}
}

// Handlers builds the HTTP handlers over the service's components
func (s *Service) Handlers() routes.Handlers {
	var broker handlers.BrokerHealth
	if s.RMQ != nil {
		broker = s.RMQ
	}
	return routes.Handlers{
		Health:   handlers.NewHealthHandler(s.DB, broker),
		Events:   handlers.NewEventsHandler(s.Dispatcher, s.Logger.Named("events")),
		Rules:    handlers.NewRulesHandler(s.Store, s.Logger.Named("rules")),
		Webhooks: handlers.NewWebhooksHandler(s.Store, s.Delivery, s.Logger.Named("webhooks")),
	}
}

// EventConsumer builds the queue consumer feeding the dispatcher. It needs a
// broker connection.
func (s *Service) EventConsumer() *dispatcher.EventConsumer {
	return dispatcher.NewEventConsumer(s.Config.Dispatcher, s.RMQ, s.Dispatcher, s.Logger.Named("consumer"))
}
