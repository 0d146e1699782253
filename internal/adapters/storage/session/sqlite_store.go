package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"eduadmin/internal/adapters/storage"
	"eduadmin/internal/domain/account"
)

// timeLayout is fixed width so stored times compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on the session table. Credentials are sealed
// before they reach the database.
type SQLiteStore struct {
	db     storage.SQLDB
	sealer Sealer
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store over a migrated database.
func NewSQLiteStore(db storage.SQLDB, sealer Sealer) *SQLiteStore {
	return &SQLiteStore{db: db, sealer: sealer, now: time.Now}
}

// Create persists sess under a fresh token.
// PRE: sess carries a role and an access credential
// POST: one session row exists for the returned token
func (s *SQLiteStore) Create(ctx context.Context, sess account.Session) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	access, err := s.sealer.Seal(sess.AccessToken)
	if err != nil {
		return "", fmt.Errorf("seal access credential: %w", err)
	}
	refresh, err := s.sealer.Seal(sess.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("seal refresh credential: %w", err)
	}
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session (token, user_id, email, role, access_sealed, refresh_sealed, created_at, expires_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token, sess.UserID, sess.Email, sess.Role, access, refresh,
		sess.CreatedAt.UTC().Format(timeLayout), formatOptional(sess.ExpiresAt), now.UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return token, nil
}

// Get loads and unseals a live session, refreshing its last-seen time.
// PRE: none
// POST: ErrNotFound for unknown or over-age tokens; over-age rows are removed
func (s *SQLiteStore) Get(ctx context.Context, token string) (account.Session, error) {
	if token == "" {
		return account.Session{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, email, role, access_sealed, refresh_sealed, created_at, expires_at FROM session WHERE token = ?`, token)

	var (
		sess            account.Session
		access, refresh []byte
		created         string
		expires         sql.NullString
	)
	err := row.Scan(&sess.UserID, &sess.Email, &sess.Role, &access, &refresh, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Session{}, ErrNotFound
	}
	if err != nil {
		return account.Session{}, fmt.Errorf("get session: %w", err)
	}
	if sess.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return account.Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	if expires.Valid && expires.String != "" {
		if sess.ExpiresAt, err = time.Parse(timeLayout, expires.String); err != nil {
			return account.Session{}, fmt.Errorf("parse expires_at: %w", err)
		}
	}

	now := s.now()
	if now.Sub(sess.CreatedAt) > MaxAge {
		_ = s.Delete(ctx, token)
		return account.Session{}, ErrNotFound
	}
	if sess.AccessToken, err = s.sealer.Open(access); err != nil {
		zap.S().Warnw("session_unseal_failed", "user_id", sess.UserID)
		_ = s.Delete(ctx, token)
		return account.Session{}, ErrNotFound
	}
	if sess.RefreshToken, err = s.sealer.Open(refresh); err != nil {
		sess.RefreshToken = ""
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE session SET last_seen_at = ? WHERE token = ?`, now.UTC().Format(timeLayout), token); err != nil {
		zap.S().Debugw("session_touch_failed", "error", err)
	}
	return sess, nil
}

// Delete removes a session row.
func (s *SQLiteStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Purge removes sessions that are over age or whose credential expired before now.
func (s *SQLiteStore) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session WHERE created_at < ? OR (expires_at IS NOT NULL AND expires_at <= ?)`,
		now.Add(-MaxAge).UTC().Format(timeLayout), now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func formatOptional(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeLayout)
}
