package domain

import (
	"context"
	"strings"
)

// ActorRole описывает роль участника запроса.
type ActorRole string

const (
	RoleUser  ActorRole = "user"
	RoleAdmin ActorRole = "admin"
)

// ParseRole возвращает роль без учёта регистра; неизвестные значения понижаются до user.
func ParseRole(raw string) ActorRole {
	if ActorRole(strings.ToLower(strings.TrimSpace(raw))) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Actor описывает аутентифицированного участника, от имени которого выполняется запрос.
type Actor struct {
	ID   string
	Role ActorRole
}

// IsAdmin сообщает, может ли участник управлять объявлениями.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorCtxKey struct{}

// WithActor кладёт участника в контекст запроса.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext достаёт участника из контекста запроса.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}
