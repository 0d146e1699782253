package outbox

import (
	"context"
	"fmt"
	"time"

	"eduadmin/internal/adapters/storage"
	domain "eduadmin/internal/domain/outbox"
)

const dateLayout = time.RFC3339Nano

const entryColumns = `id, kind, payload, status, attempts, max_attempts, last_attempted_at, created_at, last_error`

// SQLiteStore keeps the outbox in the console's SQLite file.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore returns a store over a migrated database.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save upserts e by id.
// PRE: e.Validate() == nil
// POST: a row with e's fields exists
func (s *SQLiteStore) Save(ctx context.Context, e domain.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	last := ""
	if !e.LastAttemptedAt.IsZero() {
		last = e.LastAttemptedAt.UTC().Format(dateLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, last_error=excluded.last_error`,
		e.ID, e.Kind, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		last, e.CreatedAt.UTC().Format(dateLayout), e.LastError)
	if err != nil {
		return fmt.Errorf("save outbox entry %s: %w", e.ID, err)
	}
	return nil
}

// ListPending returns pending entries ordered by creation.
// PRE: limit > 0
func (s *SQLiteStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM outbox WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		domain.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeTerminal removes finished entries older than cutoff.
func (s *SQLiteStore) PurgeTerminal(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE status IN (?, ?) AND created_at < ?`,
		domain.StatusDelivered, domain.StatusFailed, cutoff.UTC().Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.Entry, error) {
	var (
		e             domain.Entry
		created, last string
	)
	if err := row.Scan(&e.ID, &e.Kind, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts, &last, &created, &e.LastError); err != nil {
		return domain.Entry{}, fmt.Errorf("scan outbox entry: %w", err)
	}
	e.CreatedAt, _ = time.Parse(dateLayout, created)
	if last != "" {
		e.LastAttemptedAt, _ = time.Parse(dateLayout, last)
	}
	return e, nil
}
