package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	BroadcastTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_transitions_total",
		Help: "Зафиксированные переходы статусов объявлений",
	}, []string{"to", "source"})

	SchedulerTickSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "broadcast_scheduler_tick_seconds",
		Help:    "Длительность одного прохода планировщика",
		Buckets: prometheus.DefBuckets,
	})
	SchedulerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_scheduler_errors_total",
		Help: "Ошибки планировщика",
	}, []string{"stage"})
	SchedulerSkippedTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_scheduler_skipped_ticks_total",
		Help: "Проходы, пропущенные из-за аренды другого экземпляра",
	})

	FeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "broadcast_feed_requests_total",
		Help: "Запросы пользовательской ленты",
	}, []string{"priority"})
	ReceiptsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_read_receipts_created_total",
		Help: "Созданные отметки о прочтении",
	})
	EventPublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_event_publish_errors_total",
		Help: "Ошибки публикации событий жизненного цикла",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BroadcastTransitions,
		SchedulerTickSeconds,
		SchedulerErrors,
		SchedulerSkippedTicks,
		FeedRequests,
		ReceiptsCreated,
		EventPublishErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncTransition увеличивает счётчик переходов в статус to.
func IncTransition(to, source string) {
	if source == "" {
		source = "unknown"
	}
	BroadcastTransitions.WithLabelValues(to, source).Inc()
}

// IncFeedRequest учитывает запрос ленты с фильтром приоритета.
func IncFeedRequest(priority string) {
	if priority == "" {
		priority = "ALL"
	}
	FeedRequests.WithLabelValues(priority).Inc()
}
