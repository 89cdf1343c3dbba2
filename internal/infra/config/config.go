package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Store struct {
		Driver     string        `envconfig:"STORE_DRIVER" default:"memory"`
		PGDSN      string        `envconfig:"PG_DSN"`
		PGMaxConns int32         `envconfig:"PG_MAX_CONNS" default:"5"`
		SQLitePath string        `envconfig:"SQLITE_PATH" default:"broadcasts.db"`
		Timeout    time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Events struct {
		AMQPURL  string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"EVENTS_EXCHANGE" default:"broadcast.events"`
		QueueKey string `envconfig:"EVENTS_QUEUE_KEY" default:"broadcast_events"`
	} `envconfig:""`

	Auth struct {
		JWTSecret string `envconfig:"JWT_SECRET" default:"dev-secret-key"`
	} `envconfig:""`

	Scheduler struct {
		Interval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"5s"`
		Embedded bool          `envconfig:"SCHEDULER_EMBEDDED" default:"true"`
	} `envconfig:""`

	Feed struct {
		DefaultPageSize int     `envconfig:"FEED_DEFAULT_PAGE_SIZE" default:"10"`
		MaxPageSize     int     `envconfig:"FEED_MAX_PAGE_SIZE" default:"100"`
		UserRPS         float64 `envconfig:"USER_RPS" default:"20"`
	} `envconfig:""`

	Server struct {
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
		IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Metrics struct {
		Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
		Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и возвращает ошибку вместо завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
