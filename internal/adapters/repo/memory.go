package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"broadcast-hub/internal/domain"
)

// Memory реализует domain.Store в памяти процесса.
type Memory struct {
	mu         sync.RWMutex
	broadcasts map[string]domain.Broadcast
	receipts   map[string]map[string]domain.ReadReceipt // broadcastID -> userID -> receipt
}

var _ domain.Store = (*Memory)(nil)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		broadcasts: make(map[string]domain.Broadcast),
		receipts:   make(map[string]map[string]domain.ReadReceipt),
	}
}

// CreateBroadcast реализует domain.BroadcastRepo.
func (m *Memory) CreateBroadcast(ctx context.Context, b domain.Broadcast) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient("memory: create broadcast", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.broadcasts[b.ID]; exists {
		return domain.Validationf("broadcast %s already exists", b.ID)
	}
	m.broadcasts[b.ID] = cloneBroadcast(b)
	return nil
}

// GetBroadcast реализует domain.BroadcastRepo.
func (m *Memory) GetBroadcast(ctx context.Context, id string) (domain.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return domain.Broadcast{}, domain.Transient("memory: get broadcast", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.broadcasts[id]
	if !ok {
		return domain.Broadcast{}, domain.ErrNotFound
	}
	return cloneBroadcast(b), nil
}

// ListBroadcasts реализует domain.BroadcastRepo.
func (m *Memory) ListBroadcasts(ctx context.Context, filter domain.BroadcastFilter) ([]domain.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: list broadcasts", err)
	}
	m.mu.RLock()
	out := make([]domain.Broadcast, 0, len(m.broadcasts))
	for _, b := range m.broadcasts {
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		out = append(out, cloneBroadcast(b))
	}
	m.mu.RUnlock()
	sortForDisplay(out)
	return out, nil
}

// ListDue реализует domain.BroadcastRepo.
func (m *Memory) ListDue(ctx context.Context, now time.Time) ([]domain.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: list due", err)
	}
	m.mu.RLock()
	var out []domain.Broadcast
	for _, b := range m.broadcasts {
		if b.DueForPublish(now) || b.DueForExpiry(now) {
			out = append(out, cloneBroadcast(b))
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CompareAndSetStatus реализует domain.BroadcastRepo.
func (m *Memory) CompareAndSetStatus(ctx context.Context, change domain.StatusChange) (domain.Broadcast, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Broadcast{}, false, domain.Transient("memory: set status", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasts[change.ID]
	if !ok {
		return domain.Broadcast{}, false, domain.ErrNotFound
	}
	if !change.Matches(b) {
		return cloneBroadcast(b), false, nil
	}
	b = cloneBroadcast(change.Apply(b))
	m.broadcasts[b.ID] = b
	return cloneBroadcast(b), true, nil
}

// SetPinned реализует domain.BroadcastRepo.
func (m *Memory) SetPinned(ctx context.Context, id string, pinned bool, allowed []domain.BroadcastStatus) (domain.Broadcast, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Broadcast{}, false, domain.Transient("memory: set pinned", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasts[id]
	if !ok {
		return domain.Broadcast{}, false, domain.ErrNotFound
	}
	if !domain.StatusIn(b.Status, allowed...) {
		return cloneBroadcast(b), false, nil
	}
	b.IsPinned = pinned
	m.broadcasts[id] = b
	return cloneBroadcast(b), true, nil
}

// DeleteBroadcast реализует domain.BroadcastRepo.
func (m *Memory) DeleteBroadcast(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient("memory: delete broadcast", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.broadcasts[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.broadcasts, id)
	delete(m.receipts, id)
	return nil
}

// CountByStatus реализует domain.BroadcastRepo.
func (m *Memory) CountByStatus(ctx context.Context) (map[domain.BroadcastStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: count by status", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.BroadcastStatus]int)
	for _, b := range m.broadcasts {
		counts[b.Status]++
	}
	return counts, nil
}

// ListFeed реализует domain.FeedRepo.
func (m *Memory) ListFeed(ctx context.Context, q domain.FeedQuery) ([]domain.Broadcast, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: list feed", err)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, domain.Validationf("memory: negative offset or limit")
	}
	m.mu.RLock()
	var visible []domain.Broadcast
	for _, b := range m.broadcasts {
		if !b.VisibleAt(q.Now) {
			continue
		}
		if q.Priority != nil && b.Priority != *q.Priority {
			continue
		}
		visible = append(visible, cloneBroadcast(b))
	}
	m.mu.RUnlock()
	sortForDisplay(visible)
	if q.Offset >= len(visible) {
		return []domain.Broadcast{}, nil
	}
	end := len(visible)
	if q.Limit > 0 && q.Limit < end-q.Offset {
		end = q.Offset + q.Limit
	}
	return visible[q.Offset:end], nil
}

// MarkRead реализует domain.ReceiptRepo.
func (m *Memory) MarkRead(ctx context.Context, userID, broadcastID string, at time.Time) (domain.ReadReceipt, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ReadReceipt{}, false, domain.Transient("memory: mark read", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.broadcasts[broadcastID]; !ok {
		return domain.ReadReceipt{}, false, domain.ErrNotFound
	}
	byUser := m.receipts[broadcastID]
	if byUser == nil {
		byUser = make(map[string]domain.ReadReceipt)
		m.receipts[broadcastID] = byUser
	}
	if existing, ok := byUser[userID]; ok {
		return existing, false, nil
	}
	receipt := domain.ReadReceipt{UserID: userID, BroadcastID: broadcastID, Read: true, ReadAt: at}
	byUser[userID] = receipt
	return receipt, true, nil
}

// ReadSet реализует domain.ReceiptRepo.
func (m *Memory) ReadSet(ctx context.Context, userID string, broadcastIDs []string) (map[string]domain.ReadReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: read set", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.ReadReceipt, len(broadcastIDs))
	for _, id := range broadcastIDs {
		if r, ok := m.receipts[id][userID]; ok {
			out[id] = r
		}
	}
	return out, nil
}

// ReceiptCounts реализует domain.ReceiptRepo.
func (m *Memory) ReceiptCounts(ctx context.Context, broadcastIDs []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient("memory: receipt counts", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(broadcastIDs))
	for _, id := range broadcastIDs {
		if n := len(m.receipts[id]); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

// sortForDisplay упорядочивает: закреплённые первыми, затем новые выше; id разрешает равенство.
func sortForDisplay(items []domain.Broadcast) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneBroadcast(b domain.Broadcast) domain.Broadcast {
	b.ScheduledAt = cloneTime(b.ScheduledAt)
	b.ExpiresAt = cloneTime(b.ExpiresAt)
	b.PublishedAt = cloneTime(b.PublishedAt)
	return b
}
