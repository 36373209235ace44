// Package database はリレーショナルストアへの接続とスキーマ作成を提供します。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect は接続先データベースの方言を表します。
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB は *sql.DB と方言をまとめたものです。
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open はドライバー名とDSNから接続を開き、疎通を確認します。
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		dialect    Dialect
		driverName string
	)
	switch driver {
	case "sqlite":
		dialect, driverName = DialectSQLite, "sqlite"
	case "postgres":
		dialect, driverName = DialectPostgres, "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite はファイル単位のロックのため書き込みを直列化する
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Rebind は ? プレースホルダーを方言に合わせて書き換えます。
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username VARCHAR(50) NOT NULL UNIQUE,
		email VARCHAR(100) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pdf_documents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		filename VARCHAR(255) NOT NULL,
		file_path VARCHAR(500) NOT NULL,
		file_size BIGINT NOT NULL,
		mime_type VARCHAR(100) NOT NULL DEFAULT 'application/pdf',
		pages_count INTEGER NOT NULL DEFAULT 0,
		processing_status VARCHAR(50) NOT NULL DEFAULT 'uploaded',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pdf_documents_user ON pdf_documents(user_id)`,
	`CREATE TABLE IF NOT EXISTS processing_jobs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		job_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		input_files TEXT NOT NULL,
		output_files TEXT NOT NULL,
		parameters TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		processing_time DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processing_jobs_user ON processing_jobs(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS ocr_results (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES pdf_documents(id),
		user_id TEXT NOT NULL,
		extracted_text TEXT NOT NULL,
		confidence_score DOUBLE PRECISION NOT NULL,
		language VARCHAR(64) NOT NULL DEFAULT 'eng',
		page_count INTEGER NOT NULL,
		processing_time DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate はテーブルが存在しない場合に作成します（何度実行しても安全）。
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
