package domain

import (
	"strings"
	"time"
)

// BroadcastStatus описывает стадию жизненного цикла объявления.
type BroadcastStatus string

const (
	StatusDraft     BroadcastStatus = "DRAFT"
	StatusScheduled BroadcastStatus = "SCHEDULED"
	StatusPublished BroadcastStatus = "PUBLISHED"
	StatusExpired   BroadcastStatus = "EXPIRED"
)

// Valid сообщает, входит ли статус в множество допустимых.
func (s BroadcastStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublished, StatusExpired:
		return true
	}
	return false
}

// ParseStatus разбирает статус без учёта регистра.
func ParseStatus(raw string) (BroadcastStatus, error) {
	status := BroadcastStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", validationf("unknown status %q", raw)
	}
	return status, nil
}

// Priority описывает важность объявления.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid сообщает, известен ли приоритет.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority разбирает приоритет. Пустая строка даёт MEDIUM.
func ParsePriority(raw string) (Priority, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return PriorityMedium, nil
	}
	p := Priority(trimmed)
	if !p.Valid() {
		return "", validationf("unknown priority %q", raw)
	}
	return p, nil
}

// ParsePriorityFilter разбирает фильтр ленты: пусто или ALL означает «все приоритеты» (nil).
func ParsePriorityFilter(raw string) (*Priority, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == "ALL" {
		return nil, nil
	}
	p := Priority(trimmed)
	if !p.Valid() {
		return nil, validationf("unknown priority filter %q", raw)
	}
	return &p, nil
}

// Broadcast описывает объявление администратора для всех пользователей.
type Broadcast struct {
	ID          string
	Title       string
	Body        string
	Priority    Priority
	Status      BroadcastStatus
	IsPinned    bool
	ScheduledAt *time.Time
	ExpiresAt   *time.Time
	PublishedAt *time.Time
	CreatedAt   time.Time
	CreatedBy   string
}

// VisibleAt сообщает, должно ли объявление попадать в пользовательскую ленту в момент now.
// Срок истечения, не превышающий фактическое время публикации, считается уже наступившим.
func (b Broadcast) VisibleAt(now time.Time) bool {
	if b.Status != StatusPublished {
		return false
	}
	if b.ExpiresAt == nil {
		return true
	}
	if b.PublishedAt != nil && !b.ExpiresAt.After(*b.PublishedAt) {
		return false
	}
	return b.ExpiresAt.After(now)
}

// DueForPublish сообщает, наступило ли время публикации запланированного объявления.
func (b Broadcast) DueForPublish(now time.Time) bool {
	return b.Status == StatusScheduled && b.ScheduledAt != nil && !b.ScheduledAt.After(now)
}

// DueForExpiry сообщает, должно ли опубликованное объявление истечь к моменту now.
func (b Broadcast) DueForExpiry(now time.Time) bool {
	if b.Status != StatusPublished || b.ExpiresAt == nil {
		return false
	}
	return !b.ExpiresAt.After(now) || (b.PublishedAt != nil && !b.ExpiresAt.After(*b.PublishedAt))
}

// ReadReceipt фиксирует, что пользователь прочитал объявление.
// Отсутствие записи означает «не прочитано».
type ReadReceipt struct {
	UserID      string
	BroadcastID string
	Read        bool
	ReadAt      time.Time
}

// StatusChange описывает атомарный переход статуса по принципу compare-and-set.
// Переход применяется, только если текущий статус входит в From.
type StatusChange struct {
	ID   string
	From []BroadcastStatus
	To   BroadcastStatus
	// PublishedAt задаётся при переходе в PUBLISHED.
	PublishedAt *time.Time
	// ScheduledAt заменяет сохранённое значение; nil очищает поле.
	ScheduledAt *time.Time
	// KeepSchedule оставляет scheduled_at без изменений, ScheduledAt игнорируется.
	KeepSchedule bool
	// DueBy, если задан, дополнительно требует scheduled_at <= DueBy.
	// Защищает от публикации объявления, перенесённого после выборки планировщиком.
	DueBy *time.Time
}

// Allows сообщает, разрешён ли переход из статуса current.
func (c StatusChange) Allows(current BroadcastStatus) bool {
	return statusIn(current, c.From)
}

// Matches сообщает, применим ли переход к текущему состоянию b.
func (c StatusChange) Matches(b Broadcast) bool {
	if !c.Allows(b.Status) {
		return false
	}
	if c.DueBy != nil && (b.ScheduledAt == nil || b.ScheduledAt.After(*c.DueBy)) {
		return false
	}
	return true
}

// Apply возвращает b после перехода. Проверку Matches выполняет вызывающий.
func (c StatusChange) Apply(b Broadcast) Broadcast {
	b.Status = c.To
	if !c.KeepSchedule {
		b.ScheduledAt = c.ScheduledAt
	}
	if c.PublishedAt != nil {
		b.PublishedAt = c.PublishedAt
	}
	return b
}

func statusIn(s BroadcastStatus, set []BroadcastStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}

// StatusIn сообщает, входит ли статус в набор.
func StatusIn(s BroadcastStatus, set ...BroadcastStatus) bool {
	return statusIn(s, set)
}

// BroadcastFilter ограничивает административную выборку.
type BroadcastFilter struct {
	Status *BroadcastStatus
}

// FeedQuery описывает запрос страницы пользовательской ленты к хранилищу.
type FeedQuery struct {
	Now      time.Time
	Priority *Priority
	Offset   int
	Limit    int
}

// BroadcastStats содержит количество объявлений по статусам.
type BroadcastStats struct {
	Total     int                     `json:"total"`
	ByStatus  map[BroadcastStatus]int `json:"by_status"`
	Published int                     `json:"published"`
	Scheduled int                     `json:"scheduled"`
}
