package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Email      EmailConfig      `mapstructure:"email"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           string `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"name"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
}

// DispatcherConfig controls event ingestion and the webhook fan-out queues.
type DispatcherConfig struct {
	SourceQueue     string        `mapstructure:"source_queue"`
	CommandExchange string        `mapstructure:"command_exchange"`
	PrefetchCount   int           `mapstructure:"prefetch_count"`
	IngestWorkers   int           `mapstructure:"ingest_workers"`
	FanoutWorkers   int           `mapstructure:"fanout_workers"`
	DeliveryWorkers int           `mapstructure:"delivery_workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchPause      time.Duration `mapstructure:"batch_pause"`
}

type DeliveryConfig struct {
	Product             string `mapstructure:"product"`
	MaxResponseBodySize int    `mapstructure:"max_response_body_size"`
}

type SchedulerConfig struct {
	RetrySpec    string        `mapstructure:"retry_spec"`
	ResumeSpec   string        `mapstructure:"resume_spec"`
	ReapSpec     string        `mapstructure:"reap_spec"`
	BatchLimit   int           `mapstructure:"batch_limit"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	LogRetention time.Duration `mapstructure:"log_retention"`
	SweepTimeout time.Duration `mapstructure:"sweep_timeout"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type binding struct {
	key      string
	env      string
	def      any
	required bool
}

// bindings maps config keys onto the environment variable names used by deployments.
var bindings = []binding{
	{key: "server.port", env: "SERVER_PORT", required: true},
	{key: "server.host", env: "SERVER_HOST", required: true},

	{key: "database.host", env: "DB_HOST", required: true},
	{key: "database.port", env: "DB_PORT", required: true},
	{key: "database.user", env: "DB_USER", required: true},
	{key: "database.password", env: "DB_PASSWORD", required: true},
	{key: "database.name", env: "DB_NAME", required: true},
	{key: "database.sslmode", env: "DB_SSLMODE", def: "disable"},
	{key: "database.migrations_path", env: "DB_MIGRATIONS_PATH", def: "file://db/migrations"},
	{key: "database.auto_migrate", env: "DB_AUTO_MIGRATE", def: false},

	{key: "rabbitmq.url", env: "RABBITMQ_URL"},
	{key: "rabbitmq.host", env: "RABBITMQ_HOST", def: "localhost"},
	{key: "rabbitmq.port", env: "RABBITMQ_PORT", def: "5672"},
	{key: "rabbitmq.user", env: "RABBITMQ_USER", def: "guest"},
	{key: "rabbitmq.password", env: "RABBITMQ_PASSWORD", def: "guest"},
	{key: "rabbitmq.vhost", env: "RABBITMQ_VHOST", def: "/"},

	{key: "dispatcher.source_queue", env: "DISPATCHER_SOURCE_QUEUE", def: "crm.domain-events"},
	{key: "dispatcher.command_exchange", env: "DISPATCHER_COMMAND_EXCHANGE", def: "crm.commands"},
	{key: "dispatcher.prefetch_count", env: "DISPATCHER_PREFETCH_COUNT", def: 10},
	{key: "dispatcher.ingest_workers", env: "DISPATCHER_INGEST_WORKERS", def: 8},
	{key: "dispatcher.fanout_workers", env: "DISPATCHER_FANOUT_WORKERS", def: 4},
	{key: "dispatcher.delivery_workers", env: "DISPATCHER_DELIVERY_WORKERS", def: 16},
	{key: "dispatcher.queue_size", env: "DISPATCHER_QUEUE_SIZE", def: 1000},
	{key: "dispatcher.batch_size", env: "DISPATCHER_BATCH_SIZE", def: 50},
	{key: "dispatcher.batch_pause", env: "DISPATCHER_BATCH_PAUSE", def: "500ms"},

	{key: "delivery.product", env: "DELIVERY_PRODUCT", def: "Pulse"},
	{key: "delivery.max_response_body_size", env: "DELIVERY_MAX_RESPONSE_BODY_SIZE", def: 10000},

	{key: "scheduler.retry_spec", env: "SCHEDULER_RETRY_SPEC", def: "@every 1m"},
	{key: "scheduler.resume_spec", env: "SCHEDULER_RESUME_SPEC", def: "@every 1m"},
	{key: "scheduler.reap_spec", env: "SCHEDULER_REAP_SPEC", def: "@hourly"},
	{key: "scheduler.batch_limit", env: "SCHEDULER_BATCH_LIMIT", def: 100},
	{key: "scheduler.stale_after", env: "SCHEDULER_STALE_AFTER", def: "5m"},
	{key: "scheduler.log_retention", env: "SCHEDULER_LOG_RETENTION", def: "720h"},
	{key: "scheduler.sweep_timeout", env: "SCHEDULER_SWEEP_TIMEOUT", def: "50s"},

	{key: "email.host", env: "SMTP_HOST"},
	{key: "email.port", env: "SMTP_PORT", def: 587},
	{key: "email.username", env: "SMTP_USERNAME"},
	{key: "email.password", env: "SMTP_PASSWORD"},
	{key: "email.from", env: "SMTP_FROM"},

	{key: "sms.gateway_url", env: "SMS_GATEWAY_URL"},
	{key: "sms.username", env: "SMS_USERNAME"},
	{key: "sms.password", env: "SMS_PASSWORD"},

	{key: "log.level", env: "LOG_LEVEL", def: "info"},
	{key: "log.format", env: "LOG_FORMAT"},
}

// Load reads configuration from the environment, optionally layered over the
// file named by CONFIG_FILE.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b.env, err)
		}
		if b.def != nil {
			v.SetDefault(b.key, b.def)
		}
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var missing []string
	for _, b := range bindings {
		if b.required && v.GetString(b.key) == "" {
			missing = append(missing, b.env)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns the postgres URL form used by golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	vhost := c.VHost
	if vhost == "/" {
		vhost = ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/%s",
		c.User, c.Password, c.Host, c.Port, strings.TrimPrefix(vhost, "/"))
}
