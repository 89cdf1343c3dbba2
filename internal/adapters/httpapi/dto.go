package httpapi

import (
	"time"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/usecase/feed"
	"broadcast-hub/internal/usecase/lifecycle"
)

type createBroadcastRequest struct {
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Priority    string     `json:"priority"`
	IsPinned    bool       `json:"is_pinned"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Draft       bool       `json:"draft"`
}

func (r createBroadcastRequest) params() lifecycle.CreateParams {
	return lifecycle.CreateParams{
		Title:       r.Title,
		Body:        r.Body,
		Priority:    r.Priority,
		IsPinned:    r.IsPinned,
		ScheduledAt: r.ScheduledAt,
		ExpiresAt:   r.ExpiresAt,
		Draft:       r.Draft,
	}
}

type scheduleRequest struct {
	At *time.Time `json:"at"`
}

type broadcastResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	IsPinned    bool       `json:"is_pinned"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   string     `json:"created_by"`
	ReadCount   *int       `json:"read_count,omitempty"`
}

func toBroadcastResponse(b domain.Broadcast) broadcastResponse {
	return broadcastResponse{
		ID:          b.ID,
		Title:       b.Title,
		Body:        b.Body,
		Priority:    string(b.Priority),
		Status:      string(b.Status),
		IsPinned:    b.IsPinned,
		ScheduledAt: b.ScheduledAt,
		ExpiresAt:   b.ExpiresAt,
		PublishedAt: b.PublishedAt,
		CreatedAt:   b.CreatedAt,
		CreatedBy:   b.CreatedBy,
	}
}

type listResponse struct {
	Items []broadcastResponse `json:"items"`
}

func toListResponse(items []lifecycle.AdminBroadcast) listResponse {
	out := listResponse{Items: make([]broadcastResponse, 0, len(items))}
	for _, item := range items {
		resp := toBroadcastResponse(item.Broadcast)
		count := item.ReadCount
		resp.ReadCount = &count
		out.Items = append(out.Items, resp)
	}
	return out
}

type feedItemResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Preview     string     `json:"preview"`
	Priority    string     `json:"priority"`
	IsPinned    bool       `json:"is_pinned"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type feedResponse struct {
	Items    []feedItemResponse `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	HasMore  bool               `json:"has_more"`
	Priority string             `json:"priority"`
}

func toFeedResponse(page feed.Page) feedResponse {
	out := feedResponse{
		Items:    make([]feedItemResponse, 0, len(page.Items)),
		Page:     page.Page,
		PageSize: page.PageSize,
		HasMore:  page.HasMore,
		Priority: page.Priority,
	}
	for _, item := range page.Items {
		out.Items = append(out.Items, feedItemResponse{
			ID:          item.ID,
			Title:       item.Title,
			Body:        item.Body,
			Preview:     item.Preview,
			Priority:    string(item.Priority),
			IsPinned:    item.IsPinned,
			PublishedAt: item.PublishedAt,
			ExpiresAt:   item.ExpiresAt,
			CreatedAt:   item.CreatedAt,
			Read:        item.Read,
			ReadAt:      item.ReadAt,
		})
	}
	return out
}

type receiptResponse struct {
	BroadcastID string    `json:"broadcast_id"`
	Read        bool      `json:"read"`
	ReadAt      time.Time `json:"read_at"`
}
