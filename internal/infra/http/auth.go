package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"broadcast-hub/internal/domain"
)

const tokenIssuer = "broadcast-hub"

// Claims описывает полезную нагрузку токена: subject идентифицирует участника, role задаёт права.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueToken подписывает токен для участника. Используется тестами и служебными утилитами.
func IssueToken(secret string, actor domain.Actor, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("подпись токена: %w", err)
	}
	return signed, nil
}

// ParseToken проверяет подпись и срок действия и возвращает участника.
func ParseToken(secret, raw string) (domain.Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthenticated)
	}
	return domain.Actor{ID: claims.Subject, Role: domain.ParseRole(claims.Role)}, nil
}

// AuthMiddleware проверяет Bearer-токен и кладёт участника в контекст запроса.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				WriteError(w, fmt.Errorf("%w: authorization header is required", domain.ErrUnauthenticated))
				return
			}
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				WriteError(w, fmt.Errorf("%w: bearer token expected", domain.ErrUnauthenticated))
				return
			}
			actor, err := ParseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(domain.WithActor(r.Context(), actor)))
		})
	}
}
