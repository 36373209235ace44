package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/storage"
)

const sniffLen = 3072

// Store はドキュメント記録の永続化ポートです。
type Store interface {
	Create(ctx context.Context, doc *Document) error
	Find(ctx context.Context, id, ownerID string) (*Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Document, error)
	SetStatus(ctx context.Context, ownerID string, ids []string, status Status) error
}

// Service はアップロードの検証・保存・記録を行います。
type Service struct {
	store       Store
	files       *storage.Local
	maxFileSize int64
	logger      logrus.FieldLogger
}

// NewService は Service を作成します。
func NewService(store Store, files *storage.Local, maxFileSize int64, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{store: store, files: files, maxFileSize: maxFileSize, logger: logger}
}

// Upload はPDFを検証して保存し、ドキュメントを記録します。
func (s *Service) Upload(ctx context.Context, ownerID string, file *multipart.FileHeader) (*Document, error) {
	if file == nil {
		return nil, apperr.Validation("INVALID_INPUT", "PDFファイルを選択してください。")
	}
	filename := storage.SanitizeFilename(file.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, apperr.Validation("INVALID_INPUT", "PDFファイルのみアップロードできます。")
	}
	if file.Size > s.maxFileSize {
		return nil, s.tooLarge()
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	head = head[:n]
	mtype := mimetype.Detect(head)
	if !mtype.Is("application/pdf") {
		return nil, apperr.Validation("UNSUPPORTED_TYPE", fmt.Sprintf("PDF以外のファイルはアップロードできません (detected: %s)", mtype.String()))
	}

	id := uuid.NewString()
	path, size, err := s.files.SaveUpload(io.MultiReader(bytes.NewReader(head), src), id, filename, s.maxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, s.tooLarge()
		}
		return nil, err
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, apperr.New(apperr.KindValidation, "INVALID_PDF", "PDFを読み込めませんでした。ファイルが破損している可能性があります。", err)
	}

	doc := &Document{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		StoragePath: path,
		SizeBytes:   size,
		MimeType:    "application/pdf",
		PagesCount:  pages,
		Status:      StatusUploaded,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id": id,
		"owner":       ownerID,
		"pages":       pages,
		"size":        size,
	}).Info("document uploaded")
	return doc, nil
}

// List は所有者のドキュメント一覧を返します。
func (s *Service) List(ctx context.Context, ownerID string) ([]*Document, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

func (s *Service) tooLarge() error {
	return apperr.New(apperr.KindTooLarge, "LIMIT_EXCEEDED",
		fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", s.maxFileSize/(1024*1024)), nil)
}
