package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"broadcast-hub/internal/domain"
)

const testSecret = "test-secret"

func TestAuthMiddleware(t *testing.T) {
	var seen domain.Actor
	handler := AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = domain.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, err := IssueToken(testSecret, domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	foreign, _ := IssueToken("other-secret", domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}, time.Hour, time.Now())
	expired, _ := IssueToken(testSecret, domain.Actor{ID: "u-1", Role: domain.RoleUser}, time.Minute, time.Now().Add(-time.Hour))
	anonymous, _ := IssueToken(testSecret, domain.Actor{Role: domain.RoleAdmin}, time.Hour, time.Now())

	cases := map[string]struct {
		header string
		status int
	}{
		"валидный токен":      {header: "Bearer " + valid, status: http.StatusNoContent},
		"без заголовка":       {header: "", status: http.StatusUnauthorized},
		"не bearer":           {header: "Basic abc", status: http.StatusUnauthorized},
		"чужая подпись":       {header: "Bearer " + foreign, status: http.StatusUnauthorized},
		"истёкший токен":      {header: "Bearer " + expired, status: http.StatusUnauthorized},
		"без subject":         {header: "Bearer " + anonymous, status: http.StatusUnauthorized},
		"мусор вместо токена": {header: "Bearer not-a-token", status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Fatalf("%s: ожидали %d, получили %d", name, tc.status, rec.Code)
		}
	}
	if seen.ID != "admin-1" || !seen.IsAdmin() {
		t.Fatalf("ожидали администратора в контексте, получили %+v", seen)
	}
}

func TestParseTokenDowngradesUnknownRole(t *testing.T) {
	raw, err := IssueToken(testSecret, domain.Actor{ID: "u-1", Role: "superuser"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	actor, err := ParseToken(testSecret, raw)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if actor.Role != domain.RoleUser {
		t.Fatalf("неизвестная роль должна понижаться до user, получили %s", actor.Role)
	}
}
