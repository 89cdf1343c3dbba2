package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

const (
	maxTitleLen = 200
	maxBodyLen  = 10000

	// sourceScheduler помечает переходы, выполненные планировщиком.
	sourceScheduler = "scheduler"
	sourceAdmin     = "admin"
)

// CreateParams описывает новое объявление.
type CreateParams struct {
	Title       string
	Body        string
	Priority    string
	IsPinned    bool
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
	// Draft создаёт черновик, который не публикуется до явной команды.
	Draft bool
}

// AdminBroadcast дополняет объявление числом отметок о прочтении.
type AdminBroadcast struct {
	domain.Broadcast
	ReadCount int
}

// EvaluateResult подводит итог одного прохода по наступившим срокам.
type EvaluateResult struct {
	Due       int
	Published int
	Expired   int
	Failed    int
}

// Service управляет жизненным циклом объявлений. Все переходы проходят через
// compare-and-set хранилища, поэтому конкурирующие вызовы не портят состояние.
type Service struct {
	repo     domain.BroadcastRepo
	receipts domain.ReceiptRepo
	events   domain.EventPublisher
	clock    clockwork.Clock
	logger   zerolog.Logger
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithEvents задаёт получателя событий жизненного цикла.
func WithEvents(events domain.EventPublisher) Option {
	return func(s *Service) {
		if events != nil {
			s.events = events
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService создаёт сервис жизненного цикла.
func NewService(repo domain.BroadcastRepo, receipts domain.ReceiptRepo, clock clockwork.Clock, opts ...Option) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		repo:     repo,
		receipts: receipts,
		events:   domain.NopPublisher{},
		clock:    clock,
		logger:   zerolog.Nop(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now возвращает текущее время с точностью до микросекунды, как его хранит Postgres.
func (s *Service) now() time.Time {
	return normalize(s.clock.Now())
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := normalize(*t)
	return &v
}

// Create проверяет параметры и сохраняет объявление.
// Без scheduledAt объявление публикуется сразу, с ним попадает в SCHEDULED.
func (s *Service) Create(ctx context.Context, actor domain.Actor, p CreateParams) (domain.Broadcast, error) {
	title := strings.TrimSpace(p.Title)
	body := strings.TrimSpace(p.Body)
	switch {
	case title == "":
		return domain.Broadcast{}, domain.Validationf("title is required")
	case body == "":
		return domain.Broadcast{}, domain.Validationf("body is required")
	case len([]rune(title)) > maxTitleLen:
		return domain.Broadcast{}, domain.Validationf("title is longer than %d characters", maxTitleLen)
	case len([]rune(body)) > maxBodyLen:
		return domain.Broadcast{}, domain.Validationf("body is longer than %d characters", maxBodyLen)
	}
	priority, err := domain.ParsePriority(p.Priority)
	if err != nil {
		return domain.Broadcast{}, err
	}

	now := s.now()
	scheduledAt := normalizePtr(p.ScheduledAt)
	expiresAt := normalizePtr(p.ExpiresAt)

	b := domain.Broadcast{
		ID:        s.newID(),
		Title:     title,
		Body:      body,
		Priority:  priority,
		IsPinned:  p.IsPinned,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		CreatedBy: actor.ID,
	}

	effective := now
	switch {
	case p.Draft && scheduledAt != nil:
		return domain.Broadcast{}, domain.Validationf("draft cannot carry scheduled_at, schedule it explicitly")
	case p.Draft:
		b.Status = domain.StatusDraft
	case scheduledAt != nil:
		if !scheduledAt.After(now) {
			return domain.Broadcast{}, fmt.Errorf("%w: scheduled_at %s is not in the future", domain.ErrInvalidSchedule, scheduledAt.Format(time.RFC3339))
		}
		b.Status = domain.StatusScheduled
		b.ScheduledAt = scheduledAt
		effective = *scheduledAt
	default:
		b.Status = domain.StatusPublished
		b.PublishedAt = &now
	}
	if expiresAt != nil && !expiresAt.After(effective) {
		return domain.Broadcast{}, domain.Validationf("expires_at must be after publish time")
	}

	if actor.ID != "" {
		ctx = domain.WithActor(ctx, actor)
	}
	if err := s.repo.CreateBroadcast(ctx, b); err != nil {
		return domain.Broadcast{}, fmt.Errorf("сохранение объявления: %w", err)
	}
	metrics.IncTransition(string(b.Status), sourceAdmin)
	s.logger.Info().Str("broadcast_id", b.ID).Str("status", string(b.Status)).Str("actor", actor.ID).Msg("lifecycle: broadcast created")
	s.emit(ctx, domain.EventCreated, b)
	switch b.Status {
	case domain.StatusPublished:
		s.emit(ctx, domain.EventPublished, b)
	case domain.StatusScheduled:
		s.emit(ctx, domain.EventScheduled, b)
	}
	return b, nil
}

// Get возвращает объявление по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (domain.Broadcast, error) {
	return s.repo.GetBroadcast(ctx, id)
}

// PublishNow публикует черновик или запланированное объявление немедленно.
// Повторная публикация уже опубликованного объявления ничего не меняет.
func (s *Service) PublishNow(ctx context.Context, id string) (domain.Broadcast, error) {
	current, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, err
	}
	switch current.Status {
	case domain.StatusPublished:
		return current, nil
	case domain.StatusExpired:
		return domain.Broadcast{}, fmt.Errorf("%w: cannot publish expired broadcast", domain.ErrIllegalTransition)
	}
	now := s.now()
	b, _, err := s.transition(ctx, domain.StatusChange{
		ID:          id,
		From:        []domain.BroadcastStatus{domain.StatusDraft, domain.StatusScheduled},
		To:          domain.StatusPublished,
		PublishedAt: &now,
	}, domain.EventPublished, sourceAdmin)
	return b, err
}

// Schedule назначает или переносит время публикации.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (domain.Broadcast, error) {
	at = normalize(at)
	now := s.now()
	if !at.After(now) {
		return domain.Broadcast{}, fmt.Errorf("%w: scheduled_at %s is not in the future", domain.ErrInvalidSchedule, at.Format(time.RFC3339))
	}
	current, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, err
	}
	if !domain.StatusIn(current.Status, domain.StatusDraft, domain.StatusScheduled) {
		return domain.Broadcast{}, fmt.Errorf("%w: cannot schedule %s broadcast", domain.ErrIllegalTransition, strings.ToLower(string(current.Status)))
	}
	if current.ExpiresAt != nil && !current.ExpiresAt.After(at) {
		return domain.Broadcast{}, domain.Validationf("scheduled_at must be before expires_at")
	}
	b, _, err := s.transition(ctx, domain.StatusChange{
		ID:          id,
		From:        []domain.BroadcastStatus{domain.StatusDraft, domain.StatusScheduled},
		To:          domain.StatusScheduled,
		ScheduledAt: &at,
	}, domain.EventScheduled, sourceAdmin)
	return b, err
}

// Pin закрепляет объявление.
func (s *Service) Pin(ctx context.Context, id string) (domain.Broadcast, error) {
	return s.setPinned(ctx, id, true)
}

// Unpin снимает закрепление.
func (s *Service) Unpin(ctx context.Context, id string) (domain.Broadcast, error) {
	return s.setPinned(ctx, id, false)
}

func (s *Service) setPinned(ctx context.Context, id string, pinned bool) (domain.Broadcast, error) {
	current, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, err
	}
	if current.Status == domain.StatusExpired {
		return domain.Broadcast{}, fmt.Errorf("%w: expired broadcast cannot be pinned or unpinned", domain.ErrIllegalTransition)
	}
	if current.IsPinned == pinned {
		return current, nil
	}
	b, applied, err := s.repo.SetPinned(ctx, id, pinned, []domain.BroadcastStatus{domain.StatusDraft, domain.StatusScheduled, domain.StatusPublished})
	if err != nil {
		return domain.Broadcast{}, err
	}
	if !applied {
		return domain.Broadcast{}, fmt.Errorf("%w: broadcast expired concurrently", domain.ErrIllegalTransition)
	}
	eventType := domain.EventUnpinned
	if pinned {
		eventType = domain.EventPinned
	}
	s.emit(ctx, eventType, b)
	return b, nil
}

// Delete удаляет объявление в любом статусе вместе с отметками о прочтении.
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.repo.GetBroadcast(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBroadcast(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("broadcast_id", id).Msg("lifecycle: broadcast deleted")
	s.emit(ctx, domain.EventDeleted, current)
	return nil
}

// ListAll возвращает объявления во всех статусах с числом прочтений.
func (s *Service) ListAll(ctx context.Context, filter domain.BroadcastFilter) ([]AdminBroadcast, error) {
	items, err := s.repo.ListBroadcasts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("список объявлений: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, b := range items {
		ids = append(ids, b.ID)
	}
	counts := map[string]int{}
	if s.receipts != nil && len(ids) > 0 {
		counts, err = s.receipts.ReceiptCounts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("подсчёт прочтений: %w", err)
		}
	}
	out := make([]AdminBroadcast, 0, len(items))
	for _, b := range items {
		out = append(out, AdminBroadcast{Broadcast: b, ReadCount: counts[b.ID]})
	}
	return out, nil
}

// Stats возвращает количество объявлений по статусам.
func (s *Service) Stats(ctx context.Context) (domain.BroadcastStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return domain.BroadcastStats{}, fmt.Errorf("статистика объявлений: %w", err)
	}
	stats := domain.BroadcastStats{ByStatus: make(map[domain.BroadcastStatus]int, 4)}
	for _, status := range []domain.BroadcastStatus{domain.StatusDraft, domain.StatusScheduled, domain.StatusPublished, domain.StatusExpired} {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	stats.Published = counts[domain.StatusPublished]
	stats.Scheduled = counts[domain.StatusScheduled]
	return stats, nil
}

// EvaluateDue публикует объявления, чьё время наступило, и истекает просроченные.
// Ошибка отдельного объявления не прерывает проход; все ошибки возвращаются вместе.
// Повторный вызов с тем же now ничего не меняет.
func (s *Service) EvaluateDue(ctx context.Context, now time.Time) (EvaluateResult, error) {
	now = normalize(now)
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return EvaluateResult{}, fmt.Errorf("выборка объявлений к обработке: %w", err)
	}
	result := EvaluateResult{Due: len(due)}
	var errs []error
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.evaluateOne(ctx, b, now, &result); err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("объявление %s: %w", b.ID, err))
		}
	}
	return result, errors.Join(errs...)
}

func (s *Service) evaluateOne(ctx context.Context, b domain.Broadcast, now time.Time, result *EvaluateResult) error {
	if b.DueForPublish(now) {
		published, applied, err := s.transition(ctx, domain.StatusChange{
			ID:           b.ID,
			From:         []domain.BroadcastStatus{domain.StatusScheduled},
			To:           domain.StatusPublished,
			PublishedAt:  &now,
			KeepSchedule: true,
			DueBy:        &now,
		}, domain.EventPublished, sourceScheduler)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Debug().Str("broadcast_id", b.ID).Msg("lifecycle: due broadcast deleted before publish")
			return nil
		}
		if err != nil {
			return err
		}
		if applied {
			result.Published++
		}
		b = published
	}
	if !b.DueForExpiry(now) {
		return nil
	}
	_, applied, err := s.transition(ctx, domain.StatusChange{
		ID:           b.ID,
		From:         []domain.BroadcastStatus{domain.StatusPublished},
		To:           domain.StatusExpired,
		KeepSchedule: true,
	}, domain.EventExpired, sourceScheduler)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Debug().Str("broadcast_id", b.ID).Msg("lifecycle: due broadcast deleted before expiry")
		return nil
	}
	if err != nil {
		return err
	}
	if applied {
		result.Expired++
	}
	return nil
}

// transition применяет переход и публикует событие, только если переход зафиксирован.
// Проигравший гонку получает актуальное состояние без ошибки.
func (s *Service) transition(ctx context.Context, change domain.StatusChange, eventType domain.BroadcastEventType, source string) (domain.Broadcast, bool, error) {
	b, applied, err := s.repo.CompareAndSetStatus(ctx, change)
	if err != nil {
		return domain.Broadcast{}, false, err
	}
	if !applied {
		s.logger.Debug().Str("broadcast_id", change.ID).Str("status", string(b.Status)).Str("to", string(change.To)).Msg("lifecycle: transition skipped, state changed concurrently")
		return b, false, nil
	}
	metrics.IncTransition(string(change.To), source)
	s.logger.Info().Str("broadcast_id", b.ID).Str("to", string(change.To)).Str("source", source).Msg("lifecycle: transition applied")
	s.emit(ctx, eventType, b)
	return b, true, nil
}

// emit отправляет событие. Сбой доставки не отменяет зафиксированный переход.
func (s *Service) emit(ctx context.Context, eventType domain.BroadcastEventType, b domain.Broadcast) {
	actorID := sourceScheduler
	if actor, ok := domain.ActorFromContext(ctx); ok {
		actorID = actor.ID
	}
	event := domain.BroadcastEvent{
		ID:          s.newID(),
		Type:        eventType,
		BroadcastID: b.ID,
		Status:      b.Status,
		Priority:    b.Priority,
		Title:       b.Title,
		ActorID:     actorID,
		OccurredAt:  s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		metrics.EventPublishErrors.Inc()
		s.logger.Warn().Err(err).Str("broadcast_id", b.ID).Str("event", string(eventType)).Msg("lifecycle: event publish failed")
	}
}
