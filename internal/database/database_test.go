package database

import (
	"context"
	"testing"
)

func TestRebindPostgres(t *testing.T) {
	db := &DB{Dialect: DialectPostgres}
	got := db.Rebind("UPDATE t SET a = ?, b = ? WHERE id = ?")
	want := "UPDATE t SET a = $1, b = $2 WHERE id = $3"
	if got != want {
		t.Fatalf("Rebind = %q, want %q", got, want)
	}
}

func TestRebindSQLiteUnchanged(t *testing.T) {
	db := &DB{Dialect: DialectSQLite}
	q := "SELECT * FROM t WHERE id = ?"
	if got := db.Rebind(q); got != q {
		t.Fatalf("Rebind = %q", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := OpenTest(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM processing_jobs`).Scan(&n); err != nil {
		t.Fatalf("failed to query processing_jobs: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty table, got %d rows", n)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", "dsn"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
