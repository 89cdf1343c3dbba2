package main

import (
	"context"
	"errors"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"broadcast-hub/internal/adapters/httpapi"
	"broadcast-hub/internal/app"
	"broadcast-hub/internal/infra/config"
	httpinfra "broadcast-hub/internal/infra/http"
	applog "broadcast-hub/internal/infra/log"
	"broadcast-hub/internal/infra/metrics"
	"broadcast-hub/internal/usecase/feed"
	"broadcast-hub/internal/usecase/gateway"
	"broadcast-hub/internal/usecase/lifecycle"
	"broadcast-hub/internal/usecase/scheduler"
)

func main() {
	cfg := config.Load()
	logger := applog.Setup(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось подключить инфраструктуру")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error().Err(err).Msg("api: ошибка закрытия подключений")
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
	feedService := feed.NewService(infra.Store, clock,
		feed.WithPageSizes(cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize),
		feed.WithLogger(applog.Component(logger, "feed")),
	)

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	var limiter *httpapi.Limiter
	if cfg.Feed.UserRPS > 0 {
		limiter = httpapi.NewLimiter(cfg.Feed.UserRPS, 0)
	}
	httpapi.Mount(server.Router, httpapi.Config{
		Admin:     gateway.NewAdmin(engine),
		User:      gateway.NewUser(feedService),
		JWTSecret: cfg.Auth.JWTSecret,
		Limiter:   limiter,
		Health:    infra.Health,
		Logger:    applog.Component(logger, "httpapi"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(":"+strconv.Itoa(cfg.Port), httpinfra.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		})
	})
	if cfg.Scheduler.Embedded {
		opts := []scheduler.Option{scheduler.WithLogger(applog.Component(logger, "scheduler"))}
		if infra.Lease != nil {
			opts = append(opts, scheduler.WithLease(infra.Lease, ""))
		}
		sched := scheduler.NewService(engine, clock, cfg.Scheduler.Interval, opts...)
		g.Go(func() error { return sched.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("api: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("api: остановлен")
}
