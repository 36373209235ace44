package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/auth"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

type stubOperations struct {
	outcome *Outcome
	err     error

	ownerID string
	ids     []string
	quality int
	format  string
}

func (s *stubOperations) Merge(_ context.Context, ownerID string, ids []string) (*Outcome, error) {
	s.ownerID, s.ids = ownerID, ids
	return s.outcome, s.err
}

func (s *stubOperations) Split(_ context.Context, ownerID, documentID string, _ []int) (*Outcome, error) {
	s.ownerID, s.ids = ownerID, []string{documentID}
	return s.outcome, s.err
}

func (s *stubOperations) Compress(_ context.Context, ownerID, documentID string, quality int) (*Outcome, error) {
	s.ownerID, s.ids, s.quality = ownerID, []string{documentID}, quality
	return s.outcome, s.err
}

func (s *stubOperations) Convert(_ context.Context, ownerID, documentID, format string) (*Outcome, error) {
	s.ownerID, s.ids, s.format = ownerID, []string{documentID}, format
	return s.outcome, s.err
}

func (s *stubOperations) ExtractText(_ context.Context, ownerID, documentID, _ string) (*Outcome, error) {
	s.ownerID, s.ids = ownerID, []string{documentID}
	return s.outcome, s.err
}

func (s *stubOperations) SearchablePDF(_ context.Context, ownerID, documentID, _ string) (*Outcome, error) {
	s.ownerID, s.ids = ownerID, []string{documentID}
	return s.outcome, s.err
}

type stubLanguages struct {
	langs []string
	err   error
}

func (s stubLanguages) Languages(context.Context) ([]string, error) {
	return s.langs, s.err
}

// serve はログイン済みユーザーを設定したうえでハンドラーを実行します。
func serve(t *testing.T, handler gin.HandlerFunc, body string, user *auth.User) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	ctx.Request.Header.Set("Content-Type", "application/json")
	if user != nil {
		auth.SetUser(ctx, user)
	}
	handler(ctx)
	return recorder
}

func completedOutcome(t *testing.T, name, content, mediaType string) *Outcome {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return &Outcome{
		Job:         &jobs.Job{ID: "job-123", Status: jobs.StatusCompleted},
		Result:      &ExecutionResult{Outputs: []OutputFile{{Path: path, Name: name}}},
		Deliverable: &Deliverable{Path: path, Filename: name, MediaType: mediaType, Size: int64(len(content))},
	}
}

var testUser = &auth.User{ID: "user-1", Username: "alice"}

func TestMergeHandlerStreamsDeliverable(t *testing.T) {
	ops := &stubOperations{outcome: completedOutcome(t, "merged_20240501_120000.pdf", "%PDF-1.4 merged", "application/pdf")}

	rec := serve(t, MergeHandler(ops), `{"file_ids":["a","b"]}`, testUser)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "%PDF-1.4 merged" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type = %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "merged_20240501_120000.pdf") {
		t.Fatalf("content disposition = %s", cd)
	}
	if rec.Header().Get("X-Job-Id") != "job-123" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}
	if ops.ownerID != "user-1" || strings.Join(ops.ids, ",") != "a,b" {
		t.Fatalf("unexpected call: %s %v", ops.ownerID, ops.ids)
	}
}

func TestHandlerRequiresUser(t *testing.T) {
	ops := &stubOperations{}
	rec := serve(t, SplitHandler(ops), `{"file_id":"a","pages":[1]}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if ops.ownerID != "" {
		t.Fatal("operation should not be called without a user")
	}
}

func TestHandlerRejectsMalformedJSON(t *testing.T) {
	rec := serve(t, SplitHandler(&stubOperations{}), `{"file_id":`, testUser)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandlerReportsFailedJob(t *testing.T) {
	ops := &stubOperations{
		outcome: &Outcome{Job: &jobs.Job{ID: "job-9", Status: jobs.StatusFailed}},
		err:     apperr.Validation("INVALID_PAGES", "無効なページ番号です: [5]。PDFのページ数は3です。"),
	}

	rec := serve(t, SplitHandler(ops), `{"file_id":"a","pages":[1,5]}`, testUser)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Job-Id") != "job-9" {
		t.Fatalf("X-Job-Id = %q", rec.Header().Get("X-Job-Id"))
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["code"] != "INVALID_PAGES" || !strings.Contains(body["message"], "[5]") {
		t.Fatalf("body = %v", body)
	}
}

func TestHandlerMapsNotFoundAndUpstream(t *testing.T) {
	ops := &stubOperations{err: apperr.NotFound("FILE_NOT_FOUND", "ファイルが見つかりません: x")}
	if rec := serve(t, ConvertHandler(ops), `{"file_id":"x"}`, testUser); rec.Code != http.StatusNotFound {
		t.Fatalf("not found status = %d", rec.Code)
	}

	ops = &stubOperations{err: apperr.Upstream("RENDER_FAILED", errors.New("Syntax Error"))}
	rec := serve(t, ConvertHandler(ops), `{"file_id":"x"}`, testUser)
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Syntax Error") {
		t.Fatalf("upstream status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestCompressHandlerDefaultsQuality(t *testing.T) {
	ops := &stubOperations{outcome: completedOutcome(t, "compressed_a.pdf", "%PDF", "application/pdf")}
	serve(t, CompressHandler(ops), `{"file_id":"a"}`, testUser)
	if ops.quality != DefaultQuality {
		t.Fatalf("quality = %d", ops.quality)
	}

	serve(t, CompressHandler(ops), `{"file_id":"a","quality":40}`, testUser)
	if ops.quality != 40 {
		t.Fatalf("quality = %d", ops.quality)
	}
}

func TestConvertHandlerDefaultsFormat(t *testing.T) {
	ops := &stubOperations{outcome: completedOutcome(t, "page_1_a.png", "png", "image/png")}
	serve(t, ConvertHandler(ops), `{"file_id":"a"}`, testUser)
	if ops.format != "png" {
		t.Fatalf("format = %s", ops.format)
	}
}

func TestExtractTextHandlerResponse(t *testing.T) {
	elapsed := 1.5
	ops := &stubOperations{outcome: &Outcome{
		Job: &jobs.Job{ID: "job-7", Status: jobs.StatusCompleted, ProcessingTime: &elapsed},
		Result: &ExecutionResult{Metrics: OCRMetrics{
			ExtractedText:     "--- Page 1 ---\nhello\n",
			WordCount:         5,
			AverageConfidence: 61.2,
			Language:          "eng",
		}},
	}}

	rec := serve(t, ExtractTextHandler(ops), `{"file_id":"a"}`, testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		ExtractedText  string  `json:"extracted_text"`
		Confidence     float64 `json:"confidence"`
		ProcessingTime float64 `json:"processing_time"`
		Language       string  `json:"language"`
		WordCount      int     `json:"word_count"`
		JobID          string  `json:"job_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body.Confidence != 95.0 || body.WordCount != 5 || body.JobID != "job-7" || body.ProcessingTime != 1.5 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestLanguagesHandler(t *testing.T) {
	rec := serve(t, LanguagesHandler(stubLanguages{langs: []string{"eng", "jpn"}}), "", testUser)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"jpn"`) {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, LanguagesHandler(stubLanguages{err: errors.New("tesseract missing")}), "", testUser)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAsciiFallback(t *testing.T) {
	if got := asciiFallback(`結合"a".pdf`); got != `___a_.pdf` {
		t.Fatalf("asciiFallback = %q", got)
	}
}
