package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/pdf-genie/internal/database"
)

// SQLStore は pdf_documents テーブルを読み書きします。
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

// NewSQLStore は SQLStore を作成します。
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const documentColumns = `id, user_id, filename, file_path, file_size, mime_type, pages_count,
	processing_status, created_at, updated_at`

// Create はドキュメントを保存します。
func (s *SQLStore) Create(ctx context.Context, doc *Document) error {
	now := s.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = StatusUploaded
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO pdf_documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.OwnerID, doc.Filename, doc.StoragePath, doc.SizeBytes, doc.MimeType,
		doc.PagesCount, string(doc.Status), doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// Find は所有者が一致するドキュメントを返します。見つからない場合は nil, nil です。
func (s *SQLStore) Find(ctx context.Context, id, ownerID string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+documentColumns+`
		FROM pdf_documents WHERE id = ? AND user_id = ?`), id, ownerID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

// ListByOwner は所有者のドキュメントを新しい順に返します。
func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT `+documentColumns+`
		FROM pdf_documents WHERE user_id = ? ORDER BY created_at DESC, id DESC`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetStatus は所有者のドキュメントの処理状態をまとめて更新します。
// 他のユーザーのドキュメントIDが含まれていても更新しません。
func (s *SQLStore) SetStatus(ctx context.Context, ownerID string, ids []string, status Status) error {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	args := []any{string(status), s.now(), ownerID}
	var marks []string
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		args = append(args, id)
		marks = append(marks, "?")
	}
	query := `UPDATE pdf_documents SET processing_status = ?, updated_at = ?
		WHERE user_id = ? AND id IN (` + strings.Join(marks, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc    Document
		status string
	)
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Filename, &doc.StoragePath, &doc.SizeBytes,
		&doc.MimeType, &doc.PagesCount, &status, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Status = Status(status)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}
