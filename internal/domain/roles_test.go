package domain

import (
	"context"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ActorRole
	}{
		{name: "admin", raw: "admin", want: RoleAdmin},
		{name: "admin upper", raw: " ADMIN ", want: RoleAdmin},
		{name: "user", raw: "user", want: RoleUser},
		{name: "unknown downgraded", raw: "root", want: RoleUser},
		{name: "empty", raw: "", want: RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseRole(tt.raw); got != tt.want {
				t.Fatalf("ParseRole(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestActorContext(t *testing.T) {
	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("не ожидали участника в пустом контексте")
	}
	ctx := WithActor(context.Background(), Actor{ID: "42", Role: RoleAdmin})
	actor, ok := ActorFromContext(ctx)
	if !ok {
		t.Fatalf("ожидали участника в контексте")
	}
	if actor.ID != "42" || !actor.IsAdmin() {
		t.Fatalf("неожиданный участник: %+v", actor)
	}
	if _, ok := ActorFromContext(WithActor(context.Background(), Actor{})); ok {
		t.Fatalf("участник без идентификатора не должен считаться аутентифицированным")
	}
}
