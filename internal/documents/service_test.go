package documents

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/database"
	"github.com/yourusername/pdf-genie/internal/storage"
	"github.com/yourusername/pdf-genie/internal/testutil"
)

func newTestService(t *testing.T, maxSize int64) (*Service, *SQLStore) {
	t.Helper()
	root := t.TempDir()
	files, err := storage.NewLocal(filepath.Join(root, "uploads"), filepath.Join(root, "processed"))
	if err != nil {
		t.Fatalf("NewLocal returned error: %v", err)
	}
	store := NewSQLStore(database.OpenTest(t))
	logger, _ := test.NewNullLogger()
	return NewService(store, files, maxSize, logger), store
}

// fileHeader は multipart フォームを組み立てて FileHeader を取り出します。
func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := req.ParseMultipartForm(32 << 20); err != nil {
		t.Fatalf("ParseMultipartForm: %v", err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestUploadStoresDocument(t *testing.T) {
	svc, store := newTestService(t, 10<<20)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "user-1", fileHeader(t, "report.pdf", testutil.PDF(200, 210, 220)))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if doc.PagesCount != 3 {
		t.Fatalf("pages = %d", doc.PagesCount)
	}
	if doc.Status != StatusUploaded {
		t.Fatalf("status = %s", doc.Status)
	}
	if !storage.Exists(doc.StoragePath) {
		t.Fatalf("stored file missing: %s", doc.StoragePath)
	}

	found, err := store.Find(ctx, doc.ID, "user-1")
	if err != nil || found == nil {
		t.Fatalf("Find returned %v, %v", found, err)
	}
	if found.Filename != "report.pdf" || found.SizeBytes != doc.SizeBytes {
		t.Fatalf("unexpected record: %+v", found)
	}

	other, err := store.Find(ctx, doc.ID, "user-2")
	if err != nil || other != nil {
		t.Fatalf("foreign Find returned %v, %v", other, err)
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	svc, _ := newTestService(t, 10<<20)

	_, err := svc.Upload(context.Background(), "user-1", fileHeader(t, "notes.txt", []byte("hello")))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = svc.Upload(context.Background(), "user-1", fileHeader(t, "fake.pdf", []byte("plain text pretending")))
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for sniffed type, got %v", err)
	}
}

func TestUploadRejectsOversize(t *testing.T) {
	svc, _ := newTestService(t, 64)

	_, err := svc.Upload(context.Background(), "user-1", fileHeader(t, "big.pdf", testutil.PDF(200)))
	if apperr.KindOf(err) != apperr.KindTooLarge {
		t.Fatalf("expected too-large error, got %v", err)
	}
}

func TestSetStatusAndList(t *testing.T) {
	svc, store := newTestService(t, 10<<20)
	ctx := context.Background()

	a, err := svc.Upload(ctx, "user-1", fileHeader(t, "a.pdf", testutil.PDF(200)))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	b, err := svc.Upload(ctx, "user-2", fileHeader(t, "b.pdf", testutil.PDF(200)))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if err := store.SetStatus(ctx, "user-1", []string{a.ID, a.ID, b.ID}, StatusCompleted); err != nil {
		t.Fatalf("SetStatus returned error: %v", err)
	}
	other, _ := store.Find(ctx, b.ID, "user-2")
	if other.Status != StatusUploaded {
		t.Fatalf("foreign document status changed to %s", other.Status)
	}

	docs, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != a.ID || docs[0].Status != StatusCompleted {
		t.Fatalf("unexpected list: %+v", docs)
	}
}
