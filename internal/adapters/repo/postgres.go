package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS broadcasts (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL CHECK (title <> ''),
    body         TEXT NOT NULL CHECK (body <> ''),
    priority     TEXT NOT NULL CHECK (priority IN ('LOW','MEDIUM','HIGH')),
    status       TEXT NOT NULL CHECK (status IN ('DRAFT','SCHEDULED','PUBLISHED','EXPIRED')),
    is_pinned    BOOLEAN NOT NULL DEFAULT false,
    scheduled_at TIMESTAMPTZ,
    expires_at   TIMESTAMPTZ,
    published_at TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL,
    created_by   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS broadcasts_feed_idx
    ON broadcasts (status, is_pinned DESC, created_at DESC, id DESC);

CREATE INDEX IF NOT EXISTS broadcasts_due_idx
    ON broadcasts (status, scheduled_at, expires_at);

CREATE TABLE IF NOT EXISTS read_receipts (
    user_id      TEXT NOT NULL,
    broadcast_id TEXT NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
    read         BOOLEAN NOT NULL DEFAULT true,
    read_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, broadcast_id)
);

CREATE INDEX IF NOT EXISTS read_receipts_broadcast_idx ON read_receipts (broadcast_id);
`

const broadcastColumns = `id, title, body, priority, status, is_pinned, scheduled_at, expires_at, published_at, created_at, created_by`

// Postgres реализует domain.Store на основе pgxpool.
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ domain.Store = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Postgres{pool: pool, timeout: timeout}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), p.timeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, postgresSchema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "broadcasts", start, err)
	return classifyPG("postgres: ensure schema", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroadcast(row rowScanner) (domain.Broadcast, error) {
	var (
		b        domain.Broadcast
		priority string
		status   string
	)
	err := row.Scan(&b.ID, &b.Title, &b.Body, &priority, &status, &b.IsPinned, &b.ScheduledAt, &b.ExpiresAt, &b.PublishedAt, &b.CreatedAt, &b.CreatedBy)
	if err != nil {
		return domain.Broadcast{}, err
	}
	b.Priority = domain.Priority(priority)
	b.Status = domain.BroadcastStatus(status)
	return b, nil
}

func collectBroadcasts(rows pgx.Rows) ([]domain.Broadcast, error) {
	defer rows.Close()
	out := make([]domain.Broadcast, 0)
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// classifyPG переводит ошибки драйвера в доменные.
func classifyPG(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23503":
			return domain.ErrNotFound
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "23":
			return domain.Validationf("%s: %s", op, pgErr.Message)
		}
	}
	return domain.Transient(op, err)
}

func statusStrings(statuses []domain.BroadcastStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// CreateBroadcast реализует domain.BroadcastRepo.
func (p *Postgres) CreateBroadcast(ctx context.Context, b domain.Broadcast) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO broadcasts (`+broadcastColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`, b.ID, b.Title, b.Body, string(b.Priority), string(b.Status), b.IsPinned, b.ScheduledAt, b.ExpiresAt, b.PublishedAt, b.CreatedAt, b.CreatedBy)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_insert", "broadcasts", start, err)
	return classifyPG("postgres: create broadcast", err)
}

// GetBroadcast реализует domain.BroadcastRepo.
func (p *Postgres) GetBroadcast(ctx context.Context, id string) (domain.Broadcast, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	b, err := scanBroadcast(p.pool.QueryRow(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id=$1`, id))
	metrics.ObserveNetworkRequest("postgres", "broadcasts_get", "broadcasts", start, err)
	if err != nil {
		return domain.Broadcast{}, classifyPG("postgres: get broadcast", err)
	}
	return b, nil
}

// ListBroadcasts реализует domain.BroadcastRepo.
func (p *Postgres) ListBroadcasts(ctx context.Context, filter domain.BroadcastFilter) ([]domain.Broadcast, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE ($1::text IS NULL OR status = $1)
ORDER BY is_pinned DESC, created_at DESC, id DESC
`, status)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_list", "broadcasts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: list broadcasts", err)
	}
	out, err := collectBroadcasts(rows)
	if err != nil {
		return nil, classifyPG("postgres: list broadcasts", err)
	}
	return out, nil
}

// ListDue реализует domain.BroadcastRepo.
func (p *Postgres) ListDue(ctx context.Context, now time.Time) ([]domain.Broadcast, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE (status = 'SCHEDULED' AND scheduled_at <= $1)
   OR (status = 'PUBLISHED' AND expires_at IS NOT NULL AND (expires_at <= $1 OR expires_at <= published_at))
ORDER BY created_at, id
`, now)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_list_due", "broadcasts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: list due", err)
	}
	out, err := collectBroadcasts(rows)
	if err != nil {
		return nil, classifyPG("postgres: list due", err)
	}
	return out, nil
}

// CompareAndSetStatus реализует domain.BroadcastRepo.
func (p *Postgres) CompareAndSetStatus(ctx context.Context, change domain.StatusChange) (domain.Broadcast, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	b, err := scanBroadcast(p.pool.QueryRow(ctx, `
UPDATE broadcasts
SET status = $3,
    scheduled_at = CASE WHEN $6 THEN scheduled_at ELSE $4::timestamptz END,
    published_at = COALESCE($5::timestamptz, published_at)
WHERE id = $1 AND status = ANY($2)
  AND ($7::timestamptz IS NULL OR (scheduled_at IS NOT NULL AND scheduled_at <= $7))
RETURNING `+broadcastColumns, change.ID, statusStrings(change.From), string(change.To), change.ScheduledAt, change.PublishedAt, change.KeepSchedule, change.DueBy))
	metrics.ObserveNetworkRequest("postgres", "broadcasts_cas_status", "broadcasts", start, err)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Broadcast{}, false, classifyPG("postgres: set status", err)
	}
	current, err := p.GetBroadcast(ctx, change.ID)
	if err != nil {
		return domain.Broadcast{}, false, err
	}
	return current, false, nil
}

// SetPinned реализует domain.BroadcastRepo.
func (p *Postgres) SetPinned(ctx context.Context, id string, pinned bool, allowed []domain.BroadcastStatus) (domain.Broadcast, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	b, err := scanBroadcast(p.pool.QueryRow(ctx, `
UPDATE broadcasts SET is_pinned = $2
WHERE id = $1 AND status = ANY($3)
RETURNING `+broadcastColumns, id, pinned, statusStrings(allowed)))
	metrics.ObserveNetworkRequest("postgres", "broadcasts_set_pinned", "broadcasts", start, err)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Broadcast{}, false, classifyPG("postgres: set pinned", err)
	}
	current, err := p.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, false, err
	}
	return current, false, nil
}

// DeleteBroadcast реализует domain.BroadcastRepo.
func (p *Postgres) DeleteBroadcast(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "broadcasts", start, err)
	if err != nil {
		return classifyPG("postgres: delete broadcast", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM read_receipts WHERE broadcast_id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "read_receipts_delete", "read_receipts", start, err)
	if err != nil {
		return classifyPG("postgres: delete receipts", err)
	}
	start = time.Now()
	tag, err := tx.Exec(ctx, `DELETE FROM broadcasts WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_delete", "broadcasts", start, err)
	if err != nil {
		return classifyPG("postgres: delete broadcast", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "broadcasts", start, err)
	return classifyPG("postgres: delete broadcast", err)
}

// CountByStatus реализует domain.BroadcastRepo.
func (p *Postgres) CountByStatus(ctx context.Context) (map[domain.BroadcastStatus]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT status, count(*) FROM broadcasts GROUP BY status`)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_count", "broadcasts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: count by status", err)
	}
	defer rows.Close()
	counts := make(map[domain.BroadcastStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classifyPG("postgres: count by status", err)
		}
		counts[domain.BroadcastStatus(status)] = n
	}
	return counts, classifyPG("postgres: count by status", rows.Err())
}

// ListFeed реализует domain.FeedRepo.
func (p *Postgres) ListFeed(ctx context.Context, q domain.FeedQuery) ([]domain.Broadcast, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var priority *string
	if q.Priority != nil {
		s := string(*q.Priority)
		priority = &s
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE status = 'PUBLISHED'
  AND (expires_at IS NULL OR (expires_at > $1 AND (published_at IS NULL OR expires_at > published_at)))
  AND ($2::text IS NULL OR priority = $2)
ORDER BY is_pinned DESC, created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, q.Now, priority, limit, q.Offset)
	metrics.ObserveNetworkRequest("postgres", "broadcasts_feed", "broadcasts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: list feed", err)
	}
	out, err := collectBroadcasts(rows)
	if err != nil {
		return nil, classifyPG("postgres: list feed", err)
	}
	return out, nil
}

// MarkRead реализует domain.ReceiptRepo.
func (p *Postgres) MarkRead(ctx context.Context, userID, broadcastID string, at time.Time) (domain.ReadReceipt, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	receipt := domain.ReadReceipt{UserID: userID, BroadcastID: broadcastID, Read: true}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO read_receipts (user_id, broadcast_id, read, read_at)
SELECT $1, $2, true, $3
WHERE EXISTS (SELECT 1 FROM broadcasts WHERE id = $2)
ON CONFLICT (user_id, broadcast_id) DO NOTHING
RETURNING read_at
`, userID, broadcastID, at).Scan(&receipt.ReadAt)
	metrics.ObserveNetworkRequest("postgres", "read_receipts_insert", "read_receipts", start, err)
	if err == nil {
		return receipt, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ReadReceipt{}, false, classifyPG("postgres: mark read", err)
	}
	start = time.Now()
	err = p.pool.QueryRow(ctx, `
SELECT read, read_at FROM read_receipts WHERE user_id = $1 AND broadcast_id = $2
`, userID, broadcastID).Scan(&receipt.Read, &receipt.ReadAt)
	metrics.ObserveNetworkRequest("postgres", "read_receipts_get", "read_receipts", start, err)
	if err != nil {
		return domain.ReadReceipt{}, false, classifyPG("postgres: mark read", err)
	}
	return receipt, false, nil
}

// ReadSet реализует domain.ReceiptRepo.
func (p *Postgres) ReadSet(ctx context.Context, userID string, broadcastIDs []string) (map[string]domain.ReadReceipt, error) {
	out := make(map[string]domain.ReadReceipt, len(broadcastIDs))
	if len(broadcastIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT broadcast_id, read, read_at FROM read_receipts
WHERE user_id = $1 AND broadcast_id = ANY($2)
`, userID, broadcastIDs)
	metrics.ObserveNetworkRequest("postgres", "read_receipts_read_set", "read_receipts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: read set", err)
	}
	defer rows.Close()
	for rows.Next() {
		r := domain.ReadReceipt{UserID: userID}
		if err := rows.Scan(&r.BroadcastID, &r.Read, &r.ReadAt); err != nil {
			return nil, classifyPG("postgres: read set", err)
		}
		out[r.BroadcastID] = r
	}
	return out, classifyPG("postgres: read set", rows.Err())
}

// ReceiptCounts реализует domain.ReceiptRepo.
func (p *Postgres) ReceiptCounts(ctx context.Context, broadcastIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(broadcastIDs))
	if len(broadcastIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT broadcast_id, count(*) FROM read_receipts
WHERE broadcast_id = ANY($1)
GROUP BY broadcast_id
`, broadcastIDs)
	metrics.ObserveNetworkRequest("postgres", "read_receipts_count", "read_receipts", start, err)
	if err != nil {
		return nil, classifyPG("postgres: receipt counts", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, classifyPG("postgres: receipt counts", err)
		}
		out[id] = n
	}
	return out, classifyPG("postgres: receipt counts", rows.Err())
}
