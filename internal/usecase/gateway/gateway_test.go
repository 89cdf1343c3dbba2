package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"broadcast-hub/internal/adapters/repo"
	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/usecase/feed"
	"broadcast-hub/internal/usecase/lifecycle"
)

func newGateways() (*Admin, *User) {
	store := repo.NewMemory()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewAdmin(lifecycle.NewService(store, store, clock)), NewUser(feed.NewService(store, clock))
}

func TestAdminRequiresAdminRole(t *testing.T) {
	admin, _ := newGateways()
	params := lifecycle.CreateParams{Title: "a", Body: "b"}

	if _, err := admin.Create(context.Background(), params); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("ожидали ErrUnauthenticated, получили %v", err)
	}
	userCtx := domain.WithActor(context.Background(), domain.Actor{ID: "u-1", Role: domain.RoleUser})
	if _, err := admin.Create(userCtx, params); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden, получили %v", err)
	}
	if err := admin.Delete(userCtx, "any"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ожидали ErrForbidden для удаления, получили %v", err)
	}

	adminCtx := domain.WithActor(context.Background(), domain.Actor{ID: "admin-1", Role: domain.RoleAdmin})
	b, err := admin.Create(adminCtx, params)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if b.CreatedBy != "admin-1" {
		t.Fatalf("автор должен браться из контекста, получили %s", b.CreatedBy)
	}
}

func TestUserGatewayUsesActorFromContext(t *testing.T) {
	admin, user := newGateways()
	adminCtx := domain.WithActor(context.Background(), domain.Actor{ID: "admin-1", Role: domain.RoleAdmin})
	b, err := admin.Create(adminCtx, lifecycle.CreateParams{Title: "a", Body: "b"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if _, err := user.GetFeed(context.Background(), feed.Query{}); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("ожидали ErrUnauthenticated, получили %v", err)
	}
	userCtx := domain.WithActor(context.Background(), domain.Actor{ID: "u-1", Role: domain.RoleUser})
	if _, err := user.MarkRead(userCtx, b.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	page, err := user.GetFeed(userCtx, feed.Query{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(page.Items) != 1 || !page.Items[0].Read {
		t.Fatalf("ожидали прочитанное объявление, получили %+v", page.Items)
	}
	// Администратор тоже может читать ленту.
	page, err = user.GetFeed(adminCtx, feed.Query{})
	if err != nil || len(page.Items) != 1 || page.Items[0].Read {
		t.Fatalf("лента администратора не должна видеть чужие отметки: %+v, %v", page.Items, err)
	}
}
