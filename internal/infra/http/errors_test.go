package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"broadcast-hub/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validationf("title is required"), http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("%w: past", domain.ErrInvalidSchedule), http.StatusBadRequest, "invalid_schedule"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: expired", domain.ErrIllegalTransition), http.StatusConflict, "illegal_transition"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{domain.Transient("pg", errors.New("timeout")), http.StatusServiceUnavailable, "transient_store"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := StatusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: ожидали %d/%s, получили %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if body.Error != "internal error" || body.Code != "internal" {
		t.Fatalf("неожиданное тело: %+v", body)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("ожидали JSON")
	}
}
