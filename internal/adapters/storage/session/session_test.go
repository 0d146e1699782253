package session

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"eduadmin/internal/adapters/storage"
	"eduadmin/internal/domain/account"
)

var testKey = [32]byte{1, 2, 3, 4, 5, 6, 7, 8}

func openStore(t *testing.T, path string) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteStore(db, NewSealer(testKey)), db
}

func adminSession(now time.Time) account.Session {
	return account.Session{
		Identity:     account.Identity{UserID: "7", Email: "admin@c.kz"},
		Role:         account.RoleAdmin,
		AccessToken:  "access-credential",
		RefreshToken: "refresh-credential",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

// TestSQLiteStore_SurvivesReopen verifies a session outlives the process holding it.
func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	now := time.Now().UTC().Truncate(time.Second)

	store, db := openStore(t, path)
	token, err := store.Create(context.Background(), adminSession(now))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	db.Close()

	store, db = openStore(t, path)
	defer db.Close()
	got, err := store.Get(context.Background(), token)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	want := adminSession(now)
	if got.Role != want.Role || got.UserID != want.UserID || got.Email != want.Email {
		t.Errorf("identity = %+v", got)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("credentials not restored: %q %q", got.AccessToken, got.RefreshToken)
	}
	if !got.ExpiresAt.Equal(want.ExpiresAt) || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("times = %v %v", got.CreatedAt, got.ExpiresAt)
	}
}

// TestSQLiteStore_CredentialSealedAtRest verifies the raw column never holds the credential.
func TestSQLiteStore_CredentialSealedAtRest(t *testing.T) {
	store, db := openStore(t, ":memory:")
	defer db.Close()
	token, err := store.Create(context.Background(), adminSession(time.Now()))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var raw []byte
	if err := db.QueryRow(`SELECT access_sealed FROM session WHERE token = ?`, token).Scan(&raw); err != nil {
		t.Fatalf("select: %v", err)
	}
	if bytes.Contains(raw, []byte("access-credential")) {
		t.Error("access credential stored in plaintext")
	}
}

// TestSQLiteStore_WrongKey verifies a row sealed under another key is dropped.
func TestSQLiteStore_WrongKey(t *testing.T) {
	store, db := openStore(t, ":memory:")
	defer db.Close()
	token, _ := store.Create(context.Background(), adminSession(time.Now()))

	other := NewSQLiteStore(db, NewSealer([32]byte{9}))
	if _, err := other.Get(context.Background(), token); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(context.Background(), token); !errors.Is(err, ErrNotFound) {
		t.Error("row should have been removed")
	}
}

// TestSQLiteStore_DeleteAndPurge verifies logout removal and expiry purge.
func TestSQLiteStore_DeleteAndPurge(t *testing.T) {
	store, db := openStore(t, ":memory:")
	defer db.Close()
	ctx := context.Background()
	now := time.Now()

	live, _ := store.Create(ctx, adminSession(now))
	gone, _ := store.Create(ctx, adminSession(now))
	stale := adminSession(now.Add(-2 * time.Hour))
	staleToken, _ := store.Create(ctx, stale)

	if err := store.Delete(ctx, gone); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, gone); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted session still served: %v", err)
	}

	n, err := store.Purge(ctx, now)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := store.Get(ctx, staleToken); !errors.Is(err, ErrNotFound) {
		t.Error("expired session survived purge")
	}
	if _, err := store.Get(ctx, live); err != nil {
		t.Errorf("live session purged: %v", err)
	}
}

// TestSQLiteStore_MaxAge verifies over-age sessions are not served.
func TestSQLiteStore_MaxAge(t *testing.T) {
	store, db := openStore(t, ":memory:")
	defer db.Close()
	sess := adminSession(time.Now().Add(-MaxAge - time.Minute))
	sess.ExpiresAt = time.Time{}
	token, _ := store.Create(context.Background(), sess)
	if _, err := store.Get(context.Background(), token); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestMemoryStore verifies the in-memory store follows the same contract.
func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	token, err := store.Create(ctx, adminSession(now))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, err := store.Get(ctx, token); err != nil || got.AccessToken != "access-credential" {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if n, _ := store.Purge(ctx, now.Add(2*time.Hour)); n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := store.Get(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

// TestSealer verifies round trip and tamper detection.
func TestSealer(t *testing.T) {
	s := NewSealer(testKey)
	sealed, err := s.Seal("secret")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if got, err := s.Open(sealed); err != nil || got != "secret" {
		t.Errorf("Open = %q, %v", got, err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := s.Open(sealed); !errors.Is(err, ErrUnseal) {
		t.Errorf("tampered: err = %v", err)
	}
	if empty, _ := s.Seal(""); empty != nil {
		t.Error("empty plaintext should seal to nil")
	}
}
