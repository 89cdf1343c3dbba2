package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"broadcast-hub/internal/adapters/repo"
	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/usecase/lifecycle"
)

type fixture struct {
	store  *repo.Memory
	clock  *clockwork.FakeClock
	engine *lifecycle.Service
	feed   *Service
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	store := repo.NewMemory()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return fixture{
		store:  store,
		clock:  clock,
		engine: lifecycle.NewService(store, store, clock),
		feed:   NewService(store, clock, opts...),
	}
}

func (f fixture) create(t *testing.T, p lifecycle.CreateParams) domain.Broadcast {
	t.Helper()
	if p.Title == "" {
		p.Title = "title"
	}
	if p.Body == "" {
		p.Body = "body"
	}
	b, err := f.engine.Create(context.Background(), domain.Actor{ID: "admin", Role: domain.RoleAdmin}, p)
	if err != nil {
		t.Fatalf("не удалось создать объявление: %v", err)
	}
	f.clock.Advance(time.Second)
	return b
}

func itemIDs(page Page) []string {
	out := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, item.ID)
	}
	return out
}

func TestGetFeedOrdersPinnedThenNewest(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, lifecycle.CreateParams{Title: "first"})
	pinned := f.create(t, lifecycle.CreateParams{Title: "pinned", IsPinned: true})
	last := f.create(t, lifecycle.CreateParams{Title: "last"})

	page, err := f.feed.GetFeed(context.Background(), "u-1", Query{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{pinned.ID, last.ID, first.ID}
	got := itemIDs(page)
	if len(got) != len(want) {
		t.Fatalf("ожидали %d элементов, получили %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("позиция %d: ожидали %s, получили %s", i, want[i], got[i])
		}
	}
	if page.PageSize != DefaultPageSize || page.HasMore {
		t.Fatalf("неожиданные параметры страницы: %+v", page)
	}
}

func TestGetFeedHidesUnpublishedAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	visible := f.create(t, lifecycle.CreateParams{})
	f.create(t, lifecycle.CreateParams{Draft: true})
	scheduledAt := f.clock.Now().Add(time.Hour)
	f.create(t, lifecycle.CreateParams{ScheduledAt: &scheduledAt})
	expiresAt := f.clock.Now().Add(time.Minute)
	expiring := f.create(t, lifecycle.CreateParams{ExpiresAt: &expiresAt})

	page, _ := f.feed.GetFeed(ctx, "u-1", Query{})
	if len(page.Items) != 2 {
		t.Fatalf("ожидали 2 видимых объявления, получили %v", itemIDs(page))
	}

	// Просроченное скрывается сразу, даже если планировщик ещё не перевёл его в EXPIRED.
	f.clock.Advance(2 * time.Minute)
	page, _ = f.feed.GetFeed(ctx, "u-1", Query{})
	if len(page.Items) != 1 || page.Items[0].ID != visible.ID {
		t.Fatalf("ожидали только %s, получили %v", visible.ID, itemIDs(page))
	}
	stored, _ := f.store.GetBroadcast(ctx, expiring.ID)
	if stored.Status != domain.StatusPublished {
		t.Fatalf("статус в хранилище меняет только планировщик")
	}
}

func TestGetFeedPriorityFilter(t *testing.T) {
	f := newFixture(t)
	f.create(t, lifecycle.CreateParams{Priority: "LOW"})
	high := f.create(t, lifecycle.CreateParams{Priority: "HIGH"})
	f.create(t, lifecycle.CreateParams{Priority: "MEDIUM"})

	page, err := f.feed.GetFeed(context.Background(), "u-1", Query{Priority: "high"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != high.ID || page.Priority != "HIGH" {
		t.Fatalf("ожидали только HIGH, получили %v", itemIDs(page))
	}
	page, _ = f.feed.GetFeed(context.Background(), "u-1", Query{Priority: "ALL"})
	if len(page.Items) != 3 {
		t.Fatalf("ALL должен возвращать все приоритеты, получили %d", len(page.Items))
	}
	if _, err := f.feed.GetFeed(context.Background(), "u-1", Query{Priority: "URGENT"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestGetFeedPaging(t *testing.T) {
	f := newFixture(t, WithPageSizes(2, 3))
	var created []domain.Broadcast
	for i := 0; i < 5; i++ {
		created = append(created, f.create(t, lifecycle.CreateParams{Title: fmt.Sprintf("n%d", i)}))
	}
	ctx := context.Background()

	seen := map[string]bool{}
	for pageIndex := 0; pageIndex < 3; pageIndex++ {
		page, err := f.feed.GetFeed(ctx, "u-1", Query{Page: pageIndex})
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		for _, item := range page.Items {
			if seen[item.ID] {
				t.Fatalf("элемент %s встретился дважды", item.ID)
			}
			seen[item.ID] = true
		}
		if wantMore := pageIndex < 2; page.HasMore != wantMore {
			t.Fatalf("страница %d: ожидали hasMore=%v", pageIndex, wantMore)
		}
	}
	if len(seen) != len(created) {
		t.Fatalf("ожидали обойти все %d объявлений, получили %d", len(created), len(seen))
	}

	page, _ := f.feed.GetFeed(ctx, "u-1", Query{PageSize: 50})
	if page.PageSize != 3 || len(page.Items) != 3 {
		t.Fatalf("размер страницы должен ограничиваться максимумом: %+v", page)
	}
	if _, err := f.feed.GetFeed(ctx, "u-1", Query{Page: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation для отрицательной страницы, получили %v", err)
	}
}

func TestGetFeedRejectsPageOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.create(t, lifecycle.CreateParams{Title: "a"})
	ctx := context.Background()

	for _, page := range []int{math.MaxInt/10 + 1, math.MaxInt} {
		if _, err := f.feed.GetFeed(ctx, "u-1", Query{Page: page, PageSize: 10}); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("страница %d: ожидали ErrValidation, получили %v", page, err)
		}
	}

	got, err := f.feed.GetFeed(ctx, "u-1", Query{Page: 1_000_000, PageSize: 10})
	if err != nil {
		t.Fatalf("не ожидали ошибку для далёкой страницы: %v", err)
	}
	if len(got.Items) != 0 || got.HasMore {
		t.Fatalf("за последней страницей ожидали пустой ответ, получили %+v", got)
	}
}

func TestMarkReadHidesUnpublishedBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.create(t, lifecycle.CreateParams{Title: "draft", Draft: true})
	later := f.clock.Now().Add(time.Hour)
	scheduled := f.create(t, lifecycle.CreateParams{Title: "later", ScheduledAt: &later})

	for _, b := range []domain.Broadcast{draft, scheduled} {
		if _, err := f.feed.MarkRead(ctx, "u-1", b.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("%s: пользователь не должен видеть неопубликованное объявление, получили %v", b.Status, err)
		}
	}
}

func TestMarkReadIsIdempotentAndPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, lifecycle.CreateParams{})

	first, err := f.feed.MarkRead(ctx, "u-1", b.ID)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.feed.MarkRead(ctx, "u-1", b.ID)
	if err != nil {
		t.Fatalf("повторная отметка не должна падать: %v", err)
	}
	if !second.ReadAt.Equal(first.ReadAt) {
		t.Fatalf("read_at изменился: %s -> %s", first.ReadAt, second.ReadAt)
	}

	page, _ := f.feed.GetFeed(ctx, "u-1", Query{})
	if !page.Items[0].Read || page.Items[0].ReadAt == nil {
		t.Fatalf("ожидали прочитанное объявление для u-1")
	}
	page, _ = f.feed.GetFeed(ctx, "u-2", Query{})
	if page.Items[0].Read {
		t.Fatalf("отметка одного пользователя не должна влиять на другого")
	}
	counts, _ := f.store.ReceiptCounts(ctx, []string{b.ID})
	if counts[b.ID] != 1 {
		t.Fatalf("ожидали ровно одну отметку, получили %d", counts[b.ID])
	}
}

func TestMarkReadErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.feed.MarkRead(ctx, "u-1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	draft := f.create(t, lifecycle.CreateParams{Draft: true})
	if _, err := f.feed.MarkRead(ctx, "u-1", draft.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("черновик не должен отмечаться прочитанным, получили %v", err)
	}
	if _, err := f.feed.MarkRead(ctx, " ", draft.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation для пустого пользователя, получили %v", err)
	}
}

func TestMarkReadAllowedAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expiresAt := f.clock.Now().Add(time.Minute)
	b := f.create(t, lifecycle.CreateParams{ExpiresAt: &expiresAt})
	f.clock.Advance(time.Hour)
	if _, err := f.engine.EvaluateDue(ctx, f.clock.Now()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := f.feed.MarkRead(ctx, "u-1", b.ID); err != nil {
		t.Fatalf("истёкшее объявление можно отметить прочитанным: %v", err)
	}
}

func TestDeletedBroadcastLeavesFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.create(t, lifecycle.CreateParams{})
	if _, err := f.feed.MarkRead(ctx, "u-1", b.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := f.engine.Delete(ctx, b.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	page, _ := f.feed.GetFeed(ctx, "u-1", Query{})
	if len(page.Items) != 0 {
		t.Fatalf("удалённое объявление не должно быть в ленте")
	}
	set, _ := f.store.ReadSet(ctx, "u-1", []string{b.ID})
	if len(set) != 0 {
		t.Fatalf("отметки удалённого объявления не должны оставаться")
	}
}

func TestGetFeedOnSQLite(t *testing.T) {
	store, err := repo.OpenSQLite(context.Background(), ":memory:", time.Second)
	if err != nil {
		t.Fatalf("не удалось открыть sqlite: %v", err)
	}
	defer store.Close()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	engine := lifecycle.NewService(store, store, clock)
	feed := NewService(store, clock)
	ctx := context.Background()
	admin := domain.Actor{ID: "admin", Role: domain.RoleAdmin}

	older, err := engine.Create(ctx, admin, lifecycle.CreateParams{Title: "a", Body: "b"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	clock.Advance(time.Second)
	newer, _ := engine.Create(ctx, admin, lifecycle.CreateParams{Title: "c", Body: "d"})
	if _, err := feed.MarkRead(ctx, "u-1", older.ID); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	page, err := feed.GetFeed(ctx, "u-1", Query{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != newer.ID || page.Items[0].Read || !page.Items[1].Read {
		t.Fatalf("неожиданная лента: %+v", page.Items)
	}
}
