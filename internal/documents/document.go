// Package documents はアップロードされたPDFの記録と保存を扱います。
package documents

import "time"

// Status はドキュメントの処理状態です。
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document はアップロード済みPDFの記録です。
type Document struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"-"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"-"`
	SizeBytes   int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	PagesCount  int       `json:"pages_count"`
	Status      Status    `json:"processing_status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
