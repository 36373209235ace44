package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/pdf-genie/internal/database"
)

// OCRResult はテキスト抽出1回分の記録です。
type OCRResult struct {
	ID              string    `json:"id"`
	DocumentID      string    `json:"document_id"`
	OwnerID         string    `json:"-"`
	ExtractedText   string    `json:"extracted_text"`
	ConfidenceScore float64   `json:"confidence_score"`
	Language        string    `json:"language"`
	PageCount       int       `json:"page_count"`
	ProcessingTime  float64   `json:"processing_time"`
	CreatedAt       time.Time `json:"created_at"`
}

// OCRResultStore は ocr_results テーブルに抽出結果を保存します。
type OCRResultStore struct {
	db *database.DB
}

// NewOCRResultStore は OCRResultStore を作成します。
func NewOCRResultStore(db *database.DB) *OCRResultStore {
	return &OCRResultStore{db: db}
}

// Save は抽出結果を保存します。ID と CreatedAt が空なら補完します。
func (s *OCRResultStore) Save(ctx context.Context, r *OCRResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO ocr_results
		(id, document_id, user_id, extracted_text, confidence_score, language, page_count, processing_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.DocumentID, r.OwnerID, r.ExtractedText, r.ConfidenceScore, r.Language,
		r.PageCount, r.ProcessingTime, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ocr result: %w", err)
	}
	return nil
}

// ListByDocument は所有者のドキュメントに対する抽出結果を新しい順に返します。
func (s *OCRResultStore) ListByDocument(ctx context.Context, documentID, ownerID string) ([]*OCRResult, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(`SELECT id, document_id, user_id, extracted_text,
		confidence_score, language, page_count, processing_time, created_at
		FROM ocr_results WHERE document_id = ? AND user_id = ? ORDER BY created_at DESC`), documentID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ocr results: %w", err)
	}
	defer rows.Close()

	var results []*OCRResult
	for rows.Next() {
		r := &OCRResult{}
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.OwnerID, &r.ExtractedText, &r.ConfidenceScore,
			&r.Language, &r.PageCount, &r.ProcessingTime, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ocr result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
