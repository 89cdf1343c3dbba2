package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

// Время хранится как UNIX-наносекунды в UTC, чтобы сравнения в SQL были числовыми.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS broadcasts (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL CHECK (title <> ''),
    body         TEXT NOT NULL CHECK (body <> ''),
    priority     TEXT NOT NULL CHECK (priority IN ('LOW','MEDIUM','HIGH')),
    status       TEXT NOT NULL CHECK (status IN ('DRAFT','SCHEDULED','PUBLISHED','EXPIRED')),
    is_pinned    INTEGER NOT NULL DEFAULT 0,
    scheduled_at INTEGER,
    expires_at   INTEGER,
    published_at INTEGER,
    created_at   INTEGER NOT NULL,
    created_by   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_broadcasts_feed
    ON broadcasts (status, is_pinned DESC, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS read_receipts (
    user_id      TEXT NOT NULL,
    broadcast_id TEXT NOT NULL REFERENCES broadcasts(id) ON DELETE CASCADE,
    read         INTEGER NOT NULL DEFAULT 1,
    read_at      INTEGER NOT NULL,
    PRIMARY KEY (user_id, broadcast_id)
);

CREATE INDEX IF NOT EXISTS idx_read_receipts_broadcast ON read_receipts (broadcast_id);
`

// SQLite реализует domain.Store поверх встроенной базы modernc.org/sqlite.
type SQLite struct {
	db      *sql.DB
	timeout time.Duration
}

var _ domain.Store = (*SQLite)(nil)

// OpenSQLite открывает базу по пути и применяет схему. ":memory:" создаёт временную базу.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Одно соединение: SQLite сериализует записи, а in-memory база живёт ровно в нём.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %q: %w", pragma, err)
		}
	}

	s := NewSQLite(db, timeout)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite оборачивает готовое соединение.
func NewSQLite(db *sql.DB, timeout time.Duration) *SQLite {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SQLite{db: db, timeout: timeout}
}

// Close закрывает соединение.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping проверяет доступность базы.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureSchema создаёт таблицы, если их ещё нет.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	metrics.ObserveNetworkRequest("sqlite", "ensure_schema", "broadcasts", start, err)
	return classifySQL("sqlite: ensure schema", err)
}

func classifySQL(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return domain.ErrNotFound
	case strings.Contains(msg, "constraint failed"):
		return domain.Validationf("%s: %s", op, msg)
	}
	return domain.Transient(op, err)
}

func toNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func scanSQLiteBroadcast(row rowScanner) (domain.Broadcast, error) {
	var (
		b                                 domain.Broadcast
		priority, status                  string
		pinned                            int
		scheduledAt, expiresAt, published sql.NullInt64
		createdAt                         int64
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Body, &priority, &status, &pinned, &scheduledAt, &expiresAt, &published, &createdAt, &b.CreatedBy); err != nil {
		return domain.Broadcast{}, err
	}
	b.Priority = domain.Priority(priority)
	b.Status = domain.BroadcastStatus(status)
	b.IsPinned = pinned != 0
	b.ScheduledAt = fromNanos(scheduledAt)
	b.ExpiresAt = fromNanos(expiresAt)
	b.PublishedAt = fromNanos(published)
	b.CreatedAt = time.Unix(0, createdAt).UTC()
	return b, nil
}

func collectSQLiteBroadcasts(rows *sql.Rows) ([]domain.Broadcast, error) {
	defer func() { _ = rows.Close() }()
	out := make([]domain.Broadcast, 0)
	for rows.Next() {
		b, err := scanSQLiteBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// inClause возвращает "?,?,?" и аргументы для списка значений.
func inClause[T ~string](values []T) (string, []any) {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, string(v))
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// CreateBroadcast реализует domain.BroadcastRepo.
func (s *SQLite) CreateBroadcast(ctx context.Context, b domain.Broadcast) error {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	created := b.CreatedAt
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO broadcasts (`+broadcastColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, b.ID, b.Title, b.Body, string(b.Priority), string(b.Status), boolInt(b.IsPinned),
		toNanos(b.ScheduledAt), toNanos(b.ExpiresAt), toNanos(b.PublishedAt), toNanos(&created).Int64, b.CreatedBy)
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_insert", "broadcasts", start, err)
	return classifySQL("sqlite: create broadcast", err)
}

// GetBroadcast реализует domain.BroadcastRepo.
func (s *SQLite) GetBroadcast(ctx context.Context, id string) (domain.Broadcast, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	start := time.Now()
	b, err := scanSQLiteBroadcast(s.db.QueryRowContext(ctx, `SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id))
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_get", "broadcasts", start, err)
	if err != nil {
		return domain.Broadcast{}, classifySQL("sqlite: get broadcast", err)
	}
	return b, nil
}

// ListBroadcasts реализует domain.BroadcastRepo.
func (s *SQLite) ListBroadcasts(ctx context.Context, filter domain.BroadcastFilter) ([]domain.Broadcast, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	var status sql.NullString
	if filter.Status != nil {
		status = sql.NullString{String: string(*filter.Status), Valid: true}
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE (?1 IS NULL OR status = ?1)
ORDER BY is_pinned DESC, created_at DESC, id DESC
`, status)
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_list", "broadcasts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: list broadcasts", err)
	}
	out, err := collectSQLiteBroadcasts(rows)
	if err != nil {
		return nil, classifySQL("sqlite: list broadcasts", err)
	}
	return out, nil
}

// ListDue реализует domain.BroadcastRepo.
func (s *SQLite) ListDue(ctx context.Context, now time.Time) ([]domain.Broadcast, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE (status = 'SCHEDULED' AND scheduled_at <= ?1)
   OR (status = 'PUBLISHED' AND expires_at IS NOT NULL AND (expires_at <= ?1 OR expires_at <= published_at))
ORDER BY created_at, id
`, now.UTC().UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_list_due", "broadcasts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: list due", err)
	}
	out, err := collectSQLiteBroadcasts(rows)
	if err != nil {
		return nil, classifySQL("sqlite: list due", err)
	}
	return out, nil
}

// CompareAndSetStatus реализует domain.BroadcastRepo.
func (s *SQLite) CompareAndSetStatus(ctx context.Context, change domain.StatusChange) (domain.Broadcast, bool, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	placeholders, fromArgs := inClause(change.From)
	if placeholders == "" {
		current, err := s.GetBroadcast(ctx, change.ID)
		return current, false, err
	}
	dueBy := toNanos(change.DueBy)
	args := []any{string(change.To), boolInt(change.KeepSchedule), toNanos(change.ScheduledAt), toNanos(change.PublishedAt), change.ID, dueBy, dueBy}
	args = append(args, fromArgs...)
	start := time.Now()
	b, err := scanSQLiteBroadcast(s.db.QueryRowContext(ctx, `
UPDATE broadcasts
SET status = ?,
    scheduled_at = CASE WHEN ? THEN scheduled_at ELSE ? END,
    published_at = COALESCE(?, published_at)
WHERE id = ?
  AND (? IS NULL OR (scheduled_at IS NOT NULL AND scheduled_at <= ?))
  AND status IN (`+placeholders+`)
RETURNING `+broadcastColumns, args...))
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_cas_status", "broadcasts", start, err)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Broadcast{}, false, classifySQL("sqlite: set status", err)
	}
	current, err := s.GetBroadcast(ctx, change.ID)
	if err != nil {
		return domain.Broadcast{}, false, err
	}
	return current, false, nil
}

// SetPinned реализует domain.BroadcastRepo.
func (s *SQLite) SetPinned(ctx context.Context, id string, pinned bool, allowed []domain.BroadcastStatus) (domain.Broadcast, bool, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	placeholders, allowedArgs := inClause(allowed)
	if placeholders == "" {
		current, err := s.GetBroadcast(ctx, id)
		return current, false, err
	}
	args := append([]any{boolInt(pinned), id}, allowedArgs...)
	start := time.Now()
	b, err := scanSQLiteBroadcast(s.db.QueryRowContext(ctx, `
UPDATE broadcasts SET is_pinned = ?
WHERE id = ? AND status IN (`+placeholders+`)
RETURNING `+broadcastColumns, args...))
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_set_pinned", "broadcasts", start, err)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Broadcast{}, false, classifySQL("sqlite: set pinned", err)
	}
	current, err := s.GetBroadcast(ctx, id)
	if err != nil {
		return domain.Broadcast{}, false, err
	}
	return current, false, nil
}

// DeleteBroadcast реализует domain.BroadcastRepo.
func (s *SQLite) DeleteBroadcast(ctx context.Context, id string) error {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifySQL("sqlite: delete broadcast", err)
	}
	defer func() { _ = tx.Rollback() }()

	start := time.Now()
	_, err = tx.ExecContext(ctx, `DELETE FROM read_receipts WHERE broadcast_id = ?`, id)
	metrics.ObserveNetworkRequest("sqlite", "read_receipts_delete", "read_receipts", start, err)
	if err != nil {
		return classifySQL("sqlite: delete receipts", err)
	}
	start = time.Now()
	res, err := tx.ExecContext(ctx, `DELETE FROM broadcasts WHERE id = ?`, id)
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_delete", "broadcasts", start, err)
	if err != nil {
		return classifySQL("sqlite: delete broadcast", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return classifySQL("sqlite: delete broadcast", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return classifySQL("sqlite: delete broadcast", tx.Commit())
}

// CountByStatus реализует domain.BroadcastRepo.
func (s *SQLite) CountByStatus(ctx context.Context) (map[domain.BroadcastStatus]int, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM broadcasts GROUP BY status`)
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_count", "broadcasts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: count by status", err)
	}
	defer func() { _ = rows.Close() }()
	counts := make(map[domain.BroadcastStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, classifySQL("sqlite: count by status", err)
		}
		counts[domain.BroadcastStatus(status)] = n
	}
	return counts, classifySQL("sqlite: count by status", rows.Err())
}

// ListFeed реализует domain.FeedRepo.
func (s *SQLite) ListFeed(ctx context.Context, q domain.FeedQuery) ([]domain.Broadcast, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	var priority sql.NullString
	if q.Priority != nil {
		priority = sql.NullString{String: string(*q.Priority), Valid: true}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT `+broadcastColumns+` FROM broadcasts
WHERE status = 'PUBLISHED'
  AND (expires_at IS NULL OR (expires_at > ?1 AND (published_at IS NULL OR expires_at > published_at)))
  AND (?2 IS NULL OR priority = ?2)
ORDER BY is_pinned DESC, created_at DESC, id DESC
LIMIT ?3 OFFSET ?4
`, q.Now.UTC().UnixNano(), priority, limit, q.Offset)
	metrics.ObserveNetworkRequest("sqlite", "broadcasts_feed", "broadcasts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: list feed", err)
	}
	out, err := collectSQLiteBroadcasts(rows)
	if err != nil {
		return nil, classifySQL("sqlite: list feed", err)
	}
	return out, nil
}

// MarkRead реализует domain.ReceiptRepo.
func (s *SQLite) MarkRead(ctx context.Context, userID, broadcastID string, at time.Time) (domain.ReadReceipt, bool, error) {
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO read_receipts (user_id, broadcast_id, read, read_at)
SELECT ?1, ?2, 1, ?3
WHERE EXISTS (SELECT 1 FROM broadcasts WHERE id = ?2)
ON CONFLICT (user_id, broadcast_id) DO NOTHING
`, userID, broadcastID, at.UTC().UnixNano())
	metrics.ObserveNetworkRequest("sqlite", "read_receipts_insert", "read_receipts", start, err)
	if err != nil {
		return domain.ReadReceipt{}, false, classifySQL("sqlite: mark read", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.ReadReceipt{}, false, classifySQL("sqlite: mark read", err)
	}
	var (
		read   int
		readAt int64
	)
	start = time.Now()
	err = s.db.QueryRowContext(ctx, `
SELECT read, read_at FROM read_receipts WHERE user_id = ? AND broadcast_id = ?
`, userID, broadcastID).Scan(&read, &readAt)
	metrics.ObserveNetworkRequest("sqlite", "read_receipts_get", "read_receipts", start, err)
	if err != nil {
		return domain.ReadReceipt{}, false, classifySQL("sqlite: mark read", err)
	}
	return domain.ReadReceipt{
		UserID:      userID,
		BroadcastID: broadcastID,
		Read:        read != 0,
		ReadAt:      time.Unix(0, readAt).UTC(),
	}, inserted > 0, nil
}

// ReadSet реализует domain.ReceiptRepo.
func (s *SQLite) ReadSet(ctx context.Context, userID string, broadcastIDs []string) (map[string]domain.ReadReceipt, error) {
	out := make(map[string]domain.ReadReceipt, len(broadcastIDs))
	if len(broadcastIDs) == 0 {
		return out, nil
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	placeholders, idArgs := inClause(broadcastIDs)
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT broadcast_id, read, read_at FROM read_receipts
WHERE user_id = ? AND broadcast_id IN (`+placeholders+`)
`, append([]any{userID}, idArgs...)...)
	metrics.ObserveNetworkRequest("sqlite", "read_receipts_read_set", "read_receipts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: read set", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			r      = domain.ReadReceipt{UserID: userID}
			read   int
			readAt int64
		)
		if err := rows.Scan(&r.BroadcastID, &read, &readAt); err != nil {
			return nil, classifySQL("sqlite: read set", err)
		}
		r.Read = read != 0
		r.ReadAt = time.Unix(0, readAt).UTC()
		out[r.BroadcastID] = r
	}
	return out, classifySQL("sqlite: read set", rows.Err())
}

// ReceiptCounts реализует domain.ReceiptRepo.
func (s *SQLite) ReceiptCounts(ctx context.Context, broadcastIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(broadcastIDs))
	if len(broadcastIDs) == 0 {
		return out, nil
	}
	ctx, cancel := s.connCtx(ctx)
	defer cancel()
	placeholders, idArgs := inClause(broadcastIDs)
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `
SELECT broadcast_id, count(*) FROM read_receipts
WHERE broadcast_id IN (`+placeholders+`)
GROUP BY broadcast_id
`, idArgs...)
	metrics.ObserveNetworkRequest("sqlite", "read_receipts_count", "read_receipts", start, err)
	if err != nil {
		return nil, classifySQL("sqlite: receipt counts", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, classifySQL("sqlite: receipt counts", err)
		}
		out[id] = n
	}
	return out, classifySQL("sqlite: receipt counts", rows.Err())
}
