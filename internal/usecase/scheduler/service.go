package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"broadcast-hub/internal/infra/metrics"
	"broadcast-hub/internal/usecase/lifecycle"
)

const defaultLeaseKey = "broadcast:scheduler:tick"

// Evaluator переводит объявления, у которых наступил срок.
type Evaluator interface {
	EvaluateDue(ctx context.Context, now time.Time) (lifecycle.EvaluateResult, error)
}

// Lease выполняет fn не более одного раза на ключ среди всех экземпляров.
// Возвращает false без ошибки, если ключ уже занят.
type Lease interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
}

// TickResult описывает итог одного прохода.
type TickResult struct {
	lifecycle.EvaluateResult
	Skipped bool
}

// Service периодически вызывает EvaluateDue. Ошибка прохода не останавливает цикл.
type Service struct {
	evaluator Evaluator
	clock     clockwork.Clock
	interval  time.Duration
	lease     Lease
	leaseKey  string
	logger    zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithLease включает распределённую аренду прохода, чтобы несколько экземпляров
// не выполняли одну и ту же работу. Корректность обеспечивает compare-and-set хранилища.
func WithLease(lease Lease, key string) Option {
	return func(s *Service) {
		s.lease = lease
		if key != "" {
			s.leaseKey = key
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService создаёт планировщик.
func NewService(evaluator Evaluator, clock clockwork.Clock, interval time.Duration, opts ...Option) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Service{
		evaluator: evaluator,
		clock:     clock,
		interval:  interval,
		leaseKey:  defaultLeaseKey,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run выполняет проходы до отмены ctx. Первый проход выполняется сразу.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler: started")
	s.runTick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler: stopped")
			return nil
		case <-ticker.Chan():
			s.runTick(ctx)
		}
	}
}

func (s *Service) runTick(ctx context.Context) {
	res, err := s.Tick(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("failed", res.Failed).Msg("scheduler: tick finished with errors")
		return
	}
	if res.Published > 0 || res.Expired > 0 {
		s.logger.Info().Int("published", res.Published).Int("expired", res.Expired).Msg("scheduler: tick applied transitions")
	}
}

// Tick выполняет один проход. Если аренда занята другим экземпляром, проход пропускается.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	defer func() { metrics.SchedulerTickSeconds.Observe(time.Since(start).Seconds()) }()

	now := s.clock.Now()
	var result TickResult
	evaluate := func() error {
		res, err := s.evaluator.EvaluateDue(ctx, now)
		result.EvaluateResult = res
		return err
	}

	if s.lease == nil {
		return result, s.observe(evaluate())
	}

	key := fmt.Sprintf("%s:%d", s.leaseKey, now.Truncate(s.interval).Unix())
	ran, err := s.lease.Once(ctx, key, 2*s.interval, evaluate)
	switch {
	case ran:
		return result, s.observe(err)
	case err != nil:
		// Аренда недоступна: выполняем проход без неё.
		metrics.SchedulerErrors.WithLabelValues("lease").Inc()
		s.logger.Warn().Err(err).Msg("scheduler: lease unavailable, evaluating without it")
		return result, s.observe(evaluate())
	default:
		metrics.SchedulerSkippedTicks.Inc()
		s.logger.Debug().Str("key", key).Msg("scheduler: tick held by another instance")
		result.Skipped = true
		return result, nil
	}
}

func (s *Service) observe(err error) error {
	if err != nil {
		metrics.SchedulerErrors.WithLabelValues("evaluate").Inc()
	}
	return err
}
