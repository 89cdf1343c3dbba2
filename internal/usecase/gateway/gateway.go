package gateway

import (
	"context"
	"time"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/usecase/feed"
	"broadcast-hub/internal/usecase/lifecycle"
)

// Lifecycle описывает административные операции над объявлениями.
type Lifecycle interface {
	Create(ctx context.Context, actor domain.Actor, p lifecycle.CreateParams) (domain.Broadcast, error)
	Get(ctx context.Context, id string) (domain.Broadcast, error)
	ListAll(ctx context.Context, filter domain.BroadcastFilter) ([]lifecycle.AdminBroadcast, error)
	Stats(ctx context.Context) (domain.BroadcastStats, error)
	PublishNow(ctx context.Context, id string) (domain.Broadcast, error)
	Schedule(ctx context.Context, id string, at time.Time) (domain.Broadcast, error)
	Pin(ctx context.Context, id string) (domain.Broadcast, error)
	Unpin(ctx context.Context, id string) (domain.Broadcast, error)
	Delete(ctx context.Context, id string) error
}

// Feed описывает пользовательские операции.
type Feed interface {
	GetFeed(ctx context.Context, userID string, q feed.Query) (feed.Page, error)
	MarkRead(ctx context.Context, userID, broadcastID string) (domain.ReadReceipt, error)
}

var (
	_ Lifecycle = (*lifecycle.Service)(nil)
	_ Feed      = (*feed.Service)(nil)
)

func actorFrom(ctx context.Context) (domain.Actor, error) {
	actor, ok := domain.ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, domain.ErrUnauthenticated
	}
	return actor, nil
}

// Admin пропускает к операциям жизненного цикла только администраторов.
type Admin struct {
	lifecycle Lifecycle
}

// NewAdmin создаёт административный шлюз.
func NewAdmin(l Lifecycle) *Admin {
	return &Admin{lifecycle: l}
}

func (a *Admin) authorize(ctx context.Context) (domain.Actor, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, domain.ErrForbidden
	}
	return actor, nil
}

// Create создаёт объявление от имени администратора из контекста.
func (a *Admin) Create(ctx context.Context, p lifecycle.CreateParams) (domain.Broadcast, error) {
	actor, err := a.authorize(ctx)
	if err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.Create(ctx, actor, p)
}

// Get возвращает объявление в любом статусе.
func (a *Admin) Get(ctx context.Context, id string) (domain.Broadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.Get(ctx, id)
}

// List возвращает все объявления с числом прочтений.
func (a *Admin) List(ctx context.Context, filter domain.BroadcastFilter) ([]lifecycle.AdminBroadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return nil, err
	}
	return a.lifecycle.ListAll(ctx, filter)
}

// Stats возвращает количество объявлений по статусам.
func (a *Admin) Stats(ctx context.Context) (domain.BroadcastStats, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.BroadcastStats{}, err
	}
	return a.lifecycle.Stats(ctx)
}

// PublishNow публикует объявление немедленно.
func (a *Admin) PublishNow(ctx context.Context, id string) (domain.Broadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.PublishNow(ctx, id)
}

// Schedule назначает время публикации.
func (a *Admin) Schedule(ctx context.Context, id string, at time.Time) (domain.Broadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.Schedule(ctx, id, at)
}

// Pin закрепляет объявление.
func (a *Admin) Pin(ctx context.Context, id string) (domain.Broadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.Pin(ctx, id)
}

// Unpin снимает закрепление.
func (a *Admin) Unpin(ctx context.Context, id string) (domain.Broadcast, error) {
	if _, err := a.authorize(ctx); err != nil {
		return domain.Broadcast{}, err
	}
	return a.lifecycle.Unpin(ctx, id)
}

// Delete удаляет объявление.
func (a *Admin) Delete(ctx context.Context, id string) error {
	if _, err := a.authorize(ctx); err != nil {
		return err
	}
	return a.lifecycle.Delete(ctx, id)
}

// User обслуживает ленту для любого аутентифицированного участника.
type User struct {
	feed Feed
}

// NewUser создаёт пользовательский шлюз.
func NewUser(f Feed) *User {
	return &User{feed: f}
}

// GetFeed возвращает страницу ленты текущего участника.
func (u *User) GetFeed(ctx context.Context, q feed.Query) (feed.Page, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return feed.Page{}, err
	}
	return u.feed.GetFeed(ctx, actor.ID, q)
}

// MarkRead отмечает объявление прочитанным текущим участником.
func (u *User) MarkRead(ctx context.Context, broadcastID string) (domain.ReadReceipt, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return domain.ReadReceipt{}, err
	}
	return u.feed.MarkRead(ctx, actor.ID, broadcastID)
}
