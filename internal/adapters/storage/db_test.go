package storage

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// getTableSQL returns CREATE statements from sqlite_master ordered by name.
func getTableSQL(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT sql FROM sqlite_master WHERE name NOT LIKE 'sqlite_%' AND sql IS NOT NULL ORDER BY name")
	if err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, s)
	}
	return out
}

// TestMigrateDB_Fresh verifies all migrations apply cleanly to an empty database.
func TestMigrateDB_Fresh(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateDB(db); err != nil {
		t.Fatalf("MigrateDB failed on fresh db: %v", err)
	}
	version, err := SchemaVersion(db)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != LatestSchemaVersion() {
		t.Errorf("version = %d, want %d", version, LatestSchemaVersion())
	}
	if _, err := db.Exec(`INSERT INTO session (token, role, access_sealed, created_at, last_seen_at) VALUES ('t', 'ADMIN', x'00', '2026-01-01', '2026-01-01')`); err != nil {
		t.Errorf("session table incomplete: %v", err)
	}
}

// TestMigrateDB_Idempotent verifies a second run keeps the version and schema.
func TestMigrateDB_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateDB(db); err != nil {
		t.Fatalf("first MigrateDB failed: %v", err)
	}
	before := getTableSQL(t, db)
	if err := MigrateDB(db); err != nil {
		t.Fatalf("second MigrateDB failed: %v", err)
	}
	after := getTableSQL(t, db)
	if len(before) != len(after) {
		t.Fatalf("schema changed: %v → %v", before, after)
	}
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("schema[%d] changed: %q → %q", i, before[i], after[i])
		}
	}
}

// TestMigrateDB_FromVersionOne verifies an old database upgrades in place.
func TestMigrateDB_FromVersionOne(t *testing.T) {
	db := openTestDB(t)
	if _, err := SchemaVersion(db); err != nil {
		t.Fatal(err)
	}
	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := migrations[0](tx); err != nil {
		t.Fatal(err)
	}
	tx.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := MigrateDB(db); err != nil {
		t.Fatalf("MigrateDB: %v", err)
	}
	if v, _ := SchemaVersion(db); v != LatestSchemaVersion() {
		t.Errorf("version = %d", v)
	}
}
