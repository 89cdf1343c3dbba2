package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"broadcast-hub/internal/app"
	"broadcast-hub/internal/infra/config"
	applog "broadcast-hub/internal/infra/log"
	"broadcast-hub/internal/infra/metrics"
	"broadcast-hub/internal/usecase/lifecycle"
	"broadcast-hub/internal/usecase/scheduler"
)

func main() {
	cfg := config.Load()
	logger := applog.Setup(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Store.Driver == "" || cfg.Store.Driver == "memory" {
		logger.Warn().Msg("scheduler: хранилище в памяти не разделяется с api, запускайте встроенный планировщик")
	}
	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подключить инфраструктуру")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка закрытия подключений")
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.Metrics.Addr)
	}

	clock := clockwork.NewRealClock()
	engine := lifecycle.NewService(infra.Store, infra.Store, clock,
		lifecycle.WithEvents(infra.Events),
		lifecycle.WithLogger(applog.Component(logger, "lifecycle")),
	)
	opts := []scheduler.Option{scheduler.WithLogger(applog.Component(logger, "scheduler"))}
	if infra.Lease != nil {
		opts = append(opts, scheduler.WithLease(infra.Lease, ""))
	} else {
		logger.Warn().Msg("scheduler: REDIS_ADDR не задан, проходы нескольких экземпляров не координируются")
	}
	if err := scheduler.NewService(engine, clock, cfg.Scheduler.Interval, opts...).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler: остановлен с ошибкой")
	}
}
