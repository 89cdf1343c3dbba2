package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"broadcast-hub/internal/adapters/repo"
	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/cache"
	"broadcast-hub/internal/infra/config"
	"broadcast-hub/internal/infra/db"
	"broadcast-hub/internal/infra/queue"
)

const eventQueueMaxLen = 10000

// Infra хранит подключения, общие для бинарников сервиса.
type Infra struct {
	Store  domain.Store
	Events domain.EventPublisher
	// Lease равен nil, если Redis не настроен.
	Lease  *cache.RedisCache
	Health func(ctx context.Context) error

	closers []func() error
}

// Open подключает хранилище, публикатор событий и Redis согласно конфигу.
// При ошибке уже открытые подключения закрываются.
func Open(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Infra, error) {
	infra := &Infra{Events: domain.NopPublisher{}}
	if err := infra.openStore(ctx, cfg, logger); err != nil {
		infra.Close()
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		infra.closers = append(infra.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("подключение к redis: %w", err)
		}
		infra.Lease = cache.NewRedis(redisClient)
	}

	switch {
	case cfg.Events.AMQPURL != "":
		publisher, err := queue.NewRabbitEventPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("подключение к rabbitmq: %w", err)
		}
		infra.closers = append(infra.closers, publisher.Close)
		infra.Events = publisher
		logger.Info().Str("exchange", cfg.Events.Exchange).Msg("app: events go to rabbitmq")
	case redisClient != nil:
		infra.Events = queue.NewRedisEventQueue(redisClient, cfg.Events.QueueKey, eventQueueMaxLen)
		logger.Info().Str("key", cfg.Events.QueueKey).Msg("app: events go to redis stream")
	default:
		logger.Info().Msg("app: event publishing disabled")
	}
	return infra, nil
}

func (i *Infra) openStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch driver {
	case "", "memory":
		i.Store = repo.NewMemory()
	case "sqlite":
		store, err := repo.OpenSQLite(ctx, cfg.Store.SQLitePath, cfg.Store.Timeout)
		if err != nil {
			return fmt.Errorf("открытие sqlite: %w", err)
		}
		i.closers = append(i.closers, store.Close)
		i.Store = store
		i.Health = store.Ping
	case "postgres":
		pool, err := db.Connect(ctx, cfg.Store.PGDSN, cfg.Store.PGMaxConns)
		if err != nil {
			return fmt.Errorf("подключение к postgres: %w", err)
		}
		i.closers = append(i.closers, func() error { pool.Close(); return nil })
		store := repo.NewPostgres(pool, cfg.Store.Timeout)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("применение схемы: %w", err)
		}
		i.Store = store
		i.Health = pool.Ping
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	logger.Info().Str("driver", driver).Msg("app: store ready")
	return nil
}

// Close закрывает подключения в обратном порядке.
func (i *Infra) Close() error {
	var errs []error
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		if err := i.closers[idx](); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
