package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/marminbh/automation-svc/internal/config"
	"github.com/marminbh/automation-svc/internal/database"
	"github.com/marminbh/automation-svc/internal/logger"
	"github.com/marminbh/automation-svc/internal/rabbitmq"
	"github.com/marminbh/automation-svc/internal/service"
)

// openService connects to the database, and to the broker when withBroker is
// set, and wires the service. The returned func releases both.
func openService(withBroker bool) (*service.Service, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.L()

	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(db, log); err != nil {
			log.Warn(err.Error())
		}
	}

	var rmq *rabbitmq.Connection
	if withBroker {
		rmq = rabbitmq.NewConnection(&cfg.RabbitMQ, "automationctl", log)
		if err := rmq.Connect(); err != nil {
			closeDB()
			return nil, nil, err
		}
	}

	cleanup := func() {
		if rmq != nil {
			rmq.Close()
		}
		closeDB()
	}
	return service.NewService(cfg, db, log, rmq), cleanup, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
