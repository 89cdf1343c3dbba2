package domain

import (
	"context"
	"time"
)

// BroadcastRepo хранит объявления. Политику переходов не проверяет,
// но гарантирует атомарность каждого изменения отдельного объявления.
type BroadcastRepo interface {
	CreateBroadcast(ctx context.Context, b Broadcast) error
	GetBroadcast(ctx context.Context, id string) (Broadcast, error)
	ListBroadcasts(ctx context.Context, filter BroadcastFilter) ([]Broadcast, error)
	// ListDue возвращает SCHEDULED с scheduled_at <= now и PUBLISHED с expires_at <= now.
	ListDue(ctx context.Context, now time.Time) ([]Broadcast, error)
	// CompareAndSetStatus применяет переход, если текущий статус разрешён.
	// Возвращает актуальное состояние и признак применения; ErrNotFound, если записи нет.
	CompareAndSetStatus(ctx context.Context, change StatusChange) (Broadcast, bool, error)
	// SetPinned меняет закрепление, если текущий статус входит в allowed.
	SetPinned(ctx context.Context, id string, pinned bool, allowed []BroadcastStatus) (Broadcast, bool, error)
	// DeleteBroadcast удаляет объявление вместе со всеми отметками о прочтении.
	DeleteBroadcast(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[BroadcastStatus]int, error)
}

// FeedRepo выбирает страницы пользовательской ленты.
type FeedRepo interface {
	// ListFeed возвращает видимые в момент q.Now объявления: закреплённые первыми, затем по created_at убыв.
	ListFeed(ctx context.Context, q FeedQuery) ([]Broadcast, error)
}

// ReceiptRepo хранит отметки о прочтении.
type ReceiptRepo interface {
	// MarkRead создаёт отметку при первом вызове и возвращает существующую при повторных.
	// Возвращает ErrNotFound, если объявления нет.
	MarkRead(ctx context.Context, userID, broadcastID string, at time.Time) (ReadReceipt, bool, error)
	ReadSet(ctx context.Context, userID string, broadcastIDs []string) (map[string]ReadReceipt, error)
	// ReceiptCounts возвращает число отметок по каждому объявлению; отсутствующие ключи означают ноль.
	ReceiptCounts(ctx context.Context, broadcastIDs []string) (map[string]int, error)
}

// Store объединяет все возможности хранилища.
type Store interface {
	BroadcastRepo
	FeedRepo
	ReceiptRepo
}
