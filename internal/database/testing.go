package database

import (
	"context"
	"path/filepath"
	"testing"
)

// OpenTest は一時ディレクトリ上のSQLiteを開き、スキーマを適用します。
// テスト専用です。
func OpenTest(t testing.TB) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), "sqlite", path)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}
