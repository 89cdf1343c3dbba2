package domain

import (
	"errors"
	"testing"
	"time"
)

func TestVisibleAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	beforePublish := past.Add(-time.Minute)

	tests := []struct {
		name string
		b    Broadcast
		want bool
	}{
		{name: "published without expiry", b: Broadcast{Status: StatusPublished, PublishedAt: &past}, want: true},
		{name: "published expiring later", b: Broadcast{Status: StatusPublished, PublishedAt: &past, ExpiresAt: &future}, want: true},
		{name: "published already expired", b: Broadcast{Status: StatusPublished, PublishedAt: &past, ExpiresAt: &past}, want: false},
		{name: "expiry before publish", b: Broadcast{Status: StatusPublished, PublishedAt: &past, ExpiresAt: &beforePublish}, want: false},
		{name: "scheduled", b: Broadcast{Status: StatusScheduled, ScheduledAt: &future}, want: false},
		{name: "draft", b: Broadcast{Status: StatusDraft}, want: false},
		{name: "expired", b: Broadcast{Status: StatusExpired, PublishedAt: &past}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.VisibleAt(now); got != tt.want {
				t.Fatalf("VisibleAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueChecks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if !(Broadcast{Status: StatusScheduled, ScheduledAt: &now}).DueForPublish(now) {
		t.Fatalf("scheduled_at == now должен считаться наступившим")
	}
	if (Broadcast{Status: StatusScheduled, ScheduledAt: &future}).DueForPublish(now) {
		t.Fatalf("будущее время не должно считаться наступившим")
	}
	if (Broadcast{Status: StatusDraft, ScheduledAt: &past}).DueForPublish(now) {
		t.Fatalf("черновик не публикуется планировщиком")
	}
	if !(Broadcast{Status: StatusPublished, PublishedAt: &past, ExpiresAt: &now}).DueForExpiry(now) {
		t.Fatalf("expires_at == now должен истекать")
	}
	if (Broadcast{Status: StatusPublished, PublishedAt: &past}).DueForExpiry(now) {
		t.Fatalf("объявление без срока не истекает")
	}
	if (Broadcast{Status: StatusExpired, ExpiresAt: &past}).DueForExpiry(now) {
		t.Fatalf("истёкшее объявление не истекает повторно")
	}
}

func TestParsePriorityFilter(t *testing.T) {
	for _, raw := range []string{"", "all", "ALL"} {
		p, err := ParsePriorityFilter(raw)
		if err != nil || p != nil {
			t.Fatalf("ParsePriorityFilter(%q) = %v, %v; ожидали nil, nil", raw, p, err)
		}
	}
	p, err := ParsePriorityFilter("high")
	if err != nil || p == nil || *p != PriorityHigh {
		t.Fatalf("ожидали HIGH, получили %v, %v", p, err)
	}
	if _, err := ParsePriorityFilter("urgent"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestParsePriorityDefaultsToMedium(t *testing.T) {
	p, err := ParsePriority("")
	if err != nil || p != PriorityMedium {
		t.Fatalf("ожидали MEDIUM, получили %v, %v", p, err)
	}
	if _, err := ParsePriority("critical"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("scheduled")
	if err != nil || s != StatusScheduled {
		t.Fatalf("ожидали SCHEDULED, получили %v, %v", s, err)
	}
	if _, err := ParseStatus("archived"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}
