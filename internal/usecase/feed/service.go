package feed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

const (
	// DefaultPageSize размер страницы, если клиент его не указал.
	DefaultPageSize = 10
	// MaxPageSize верхняя граница размера страницы; большие значения урезаются до неё.
	MaxPageSize = 100
)

// Store описывает данные, которые нужны ленте.
type Store interface {
	domain.FeedRepo
	domain.ReceiptRepo
	GetBroadcast(ctx context.Context, id string) (domain.Broadcast, error)
}

// Query описывает запрос страницы ленты. Page нумеруется с нуля.
type Query struct {
	Priority string
	Page     int
	PageSize int
}

// Item объявление в ленте с состоянием прочтения для конкретного пользователя.
type Item struct {
	domain.Broadcast
	Preview string
	Read    bool
	ReadAt  *time.Time
}

// Page страница ленты.
type Page struct {
	Items    []Item
	Page     int
	PageSize int
	HasMore  bool
	Priority string
}

// Service строит пользовательскую ленту и ведёт отметки о прочтении.
type Service struct {
	store           Store
	clock           clockwork.Clock
	defaultPageSize int
	maxPageSize     int
	logger          zerolog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithPageSizes задаёт размер страницы по умолчанию и максимальный.
func WithPageSizes(def, maxSize int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultPageSize = def
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
		if s.defaultPageSize > s.maxPageSize {
			s.defaultPageSize = s.maxPageSize
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService создаёт сервис ленты.
func NewService(store Store, clock clockwork.Clock, opts ...Option) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Service{
		store:           store,
		clock:           clock,
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetFeed возвращает страницу опубликованных и не истёкших объявлений.
// Закреплённые идут первыми, затем более новые. Набор фиксируется на момент запроса.
func (s *Service) GetFeed(ctx context.Context, userID string, q Query) (Page, error) {
	if strings.TrimSpace(userID) == "" {
		return Page{}, domain.Validationf("user id is required")
	}
	priority, err := domain.ParsePriorityFilter(q.Priority)
	if err != nil {
		return Page{}, err
	}
	if q.Page < 0 {
		return Page{}, domain.Validationf("page must not be negative")
	}
	size := q.PageSize
	switch {
	case size < 0:
		return Page{}, domain.Validationf("page size must not be negative")
	case size == 0:
		size = s.defaultPageSize
	case size > s.maxPageSize:
		size = s.maxPageSize
	}
	// Смещение и лимит (size+1) должны помещаться в int.
	if q.Page > (math.MaxInt-1)/size-1 {
		return Page{}, domain.Validationf("page %d is out of range", q.Page)
	}

	filter := "ALL"
	if priority != nil {
		filter = string(*priority)
	}
	metrics.IncFeedRequest(filter)

	items, err := s.store.ListFeed(ctx, domain.FeedQuery{
		Now:      s.clock.Now().UTC(),
		Priority: priority,
		Offset:   q.Page * size,
		Limit:    size + 1,
	})
	if err != nil {
		return Page{}, fmt.Errorf("выборка ленты: %w", err)
	}
	page := Page{Page: q.Page, PageSize: size, Priority: filter}
	if len(items) > size {
		page.HasMore = true
		items = items[:size]
	}

	ids := make([]string, 0, len(items))
	for _, b := range items {
		ids = append(ids, b.ID)
	}
	read := map[string]domain.ReadReceipt{}
	if len(ids) > 0 {
		read, err = s.store.ReadSet(ctx, userID, ids)
		if err != nil {
			return Page{}, fmt.Errorf("отметки о прочтении: %w", err)
		}
	}
	page.Items = make([]Item, 0, len(items))
	for _, b := range items {
		item := Item{Broadcast: b, Preview: Preview(b.Body)}
		if r, ok := read[b.ID]; ok && r.Read {
			at := r.ReadAt
			item.Read = true
			item.ReadAt = &at
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// MarkRead отмечает объявление прочитанным. Повторные вызовы не меняют readAt.
// Черновики и запланированные объявления пользователю не видны, поэтому для них
// возвращается ErrNotFound: ответ не раскрывает, что такое объявление существует.
func (s *Service) MarkRead(ctx context.Context, userID, broadcastID string) (domain.ReadReceipt, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.ReadReceipt{}, domain.Validationf("user id is required")
	}
	b, err := s.store.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return domain.ReadReceipt{}, err
	}
	if !domain.StatusIn(b.Status, domain.StatusPublished, domain.StatusExpired) {
		return domain.ReadReceipt{}, domain.ErrNotFound
	}
	receipt, created, err := s.store.MarkRead(ctx, userID, broadcastID, s.clock.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		return domain.ReadReceipt{}, err
	}
	if created {
		metrics.ReceiptsCreated.Inc()
		s.logger.Debug().Str("user_id", userID).Str("broadcast_id", broadcastID).Msg("feed: read receipt created")
	}
	return receipt, nil
}
