package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"broadcast-hub/internal/domain"
	httpinfra "broadcast-hub/internal/infra/http"
	"broadcast-hub/internal/usecase/feed"
	"broadcast-hub/internal/usecase/gateway"
)

const maxBodyBytes = 1 << 20

// Config описывает зависимости HTTP API.
type Config struct {
	Admin     *gateway.Admin
	User      *gateway.User
	JWTSecret string
	// Limiter ограничивает частоту запросов участника; nil отключает ограничение.
	Limiter *Limiter
	// Health проверяет доступность хранилища для /healthz; nil означает «всегда готов».
	Health func(ctx context.Context) error
	Logger zerolog.Logger
}

type handler struct {
	admin  *gateway.Admin
	user   *gateway.User
	health func(ctx context.Context) error
	log    zerolog.Logger
}

// Mount регистрирует маршруты API в роутере.
func Mount(r chi.Router, cfg Config) {
	h := &handler{admin: cfg.Admin, user: cfg.User, health: cfg.Health, log: cfg.Logger}

	r.Get("/healthz", h.healthz)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpinfra.AuthMiddleware(cfg.JWTSecret))
		if cfg.Limiter != nil {
			api.Use(cfg.Limiter.Middleware)
		}

		api.Route("/admin/broadcasts", func(admin chi.Router) {
			admin.Post("/", h.createBroadcast)
			admin.Get("/", h.listBroadcasts)
			admin.Get("/stats", h.stats)
			admin.Get("/{id}", h.getBroadcast)
			admin.Delete("/{id}", h.deleteBroadcast)
			admin.Post("/{id}/publish", h.publishBroadcast)
			admin.Post("/{id}/schedule", h.scheduleBroadcast)
			admin.Post("/{id}/pin", h.pinBroadcast)
			admin.Delete("/{id}/pin", h.unpinBroadcast)
		})

		api.Get("/feed", h.getFeed)
		api.Post("/feed/{id}/read", h.markRead)
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("httpapi: health check failed")
			httpinfra.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpinfra.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return domain.Validationf("invalid request body: %v", err)
	}
	return nil
}

func (h *handler) createBroadcast(w http.ResponseWriter, r *http.Request) {
	var req createBroadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	b, err := h.admin.Create(r.Context(), req.params())
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toBroadcastResponse(b))
}

func (h *handler) listBroadcasts(w http.ResponseWriter, r *http.Request) {
	var filter domain.BroadcastFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" && !strings.EqualFold(raw, "ALL") {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			httpinfra.WriteError(w, err)
			return
		}
		filter.Status = &status
	}
	items, err := h.admin.List(r.Context(), filter)
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toListResponse(items))
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, stats)
}

func (h *handler) getBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toBroadcastResponse(b))
}

func (h *handler) deleteBroadcast(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) publishBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.PublishNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toBroadcastResponse(b))
}

func (h *handler) scheduleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	if req.At == nil {
		httpinfra.WriteError(w, domain.Validationf("at is required"))
		return
	}
	b, err := h.admin.Schedule(r.Context(), chi.URLParam(r, "id"), *req.At)
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toBroadcastResponse(b))
}

func (h *handler) pinBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.Pin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toBroadcastResponse(b))
}

func (h *handler) unpinBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.Unpin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toBroadcastResponse(b))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validationf("%s must be an integer", key)
	}
	return v, nil
}

func (h *handler) getFeed(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	result, err := h.user.GetFeed(r.Context(), feed.Query{
		Priority: r.URL.Query().Get("priority"),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		httpinfra.WriteError(w, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toFeedResponse(result))
}

func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.user.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpinfra.WriteError(w, fmt.Errorf("отметка о прочтении: %w", err))
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, receiptResponse{
		BroadcastID: receipt.BroadcastID,
		Read:        receipt.Read,
		ReadAt:      receipt.ReadAt,
	})
}
