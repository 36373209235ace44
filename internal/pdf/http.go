package pdf

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/auth"
)

// Operations はHTTPハンドラーから呼び出す処理です。*Service が実装します。
type Operations interface {
	Merge(ctx context.Context, ownerID string, ids []string) (*Outcome, error)
	Split(ctx context.Context, ownerID, documentID string, pages []int) (*Outcome, error)
	Compress(ctx context.Context, ownerID, documentID string, quality int) (*Outcome, error)
	Convert(ctx context.Context, ownerID, documentID, format string) (*Outcome, error)
	ExtractText(ctx context.Context, ownerID, documentID, language string) (*Outcome, error)
	SearchablePDF(ctx context.Context, ownerID, documentID, language string) (*Outcome, error)
}

// LanguageLister は利用可能なOCR言語を返します。
type LanguageLister interface {
	Languages(ctx context.Context) ([]string, error)
}

// MergeRequest は POST /api/pdf/merge のリクエストです。
type MergeRequest struct {
	FileIDs []string `json:"file_ids" binding:"required"`
}

// SplitRequest は POST /api/pdf/split のリクエストです。
type SplitRequest struct {
	FileID string `json:"file_id" binding:"required"`
	Pages  []int  `json:"pages" binding:"required"`
}

// CompressRequest は POST /api/pdf/compress のリクエストです。
type CompressRequest struct {
	FileID  string `json:"file_id" binding:"required"`
	Quality *int   `json:"quality"`
}

// ConvertRequest は POST /api/pdf/convert のリクエストです。
type ConvertRequest struct {
	FileID string `json:"file_id" binding:"required"`
	Format string `json:"format"`
}

// OCRRequest は /api/ocr/* のリクエストです。
type OCRRequest struct {
	FileID   string `json:"file_id" binding:"required"`
	Language string `json:"language"`
}

// placeholderConfidence はテキスト抽出レスポンスの confidence に返す固定値です。
const placeholderConfidence = 95.0

// MergeHandler は POST /api/pdf/merge のハンドラーを返します。
func MergeHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req MergeRequest
		if !bindJSON(c, &req) {
			return
		}
		outcome, err := ops.Merge(c.Request.Context(), user.ID, req.FileIDs)
		respondOutcome(c, outcome, err, "結合結果の読み込みに失敗しました")
	}
}

// SplitHandler は POST /api/pdf/split のハンドラーを返します。
func SplitHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req SplitRequest
		if !bindJSON(c, &req) {
			return
		}
		outcome, err := ops.Split(c.Request.Context(), user.ID, req.FileID, req.Pages)
		respondOutcome(c, outcome, err, "分割結果の読み込みに失敗しました")
	}
}

// CompressHandler は POST /api/pdf/compress のハンドラーを返します。
func CompressHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req CompressRequest
		if !bindJSON(c, &req) {
			return
		}
		quality := DefaultQuality
		if req.Quality != nil {
			quality = *req.Quality
		}
		outcome, err := ops.Compress(c.Request.Context(), user.ID, req.FileID, quality)
		respondOutcome(c, outcome, err, "圧縮結果の読み込みに失敗しました")
	}
}

// ConvertHandler は POST /api/pdf/convert のハンドラーを返します。
func ConvertHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req ConvertRequest
		if !bindJSON(c, &req) {
			return
		}
		format := req.Format
		if strings.TrimSpace(format) == "" {
			format = "png"
		}
		outcome, err := ops.Convert(c.Request.Context(), user.ID, req.FileID, format)
		respondOutcome(c, outcome, err, "変換結果の読み込みに失敗しました")
	}
}

// ExtractTextHandler は POST /api/ocr/extract-text のハンドラーを返します。
func ExtractTextHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req OCRRequest
		if !bindJSON(c, &req) {
			return
		}
		outcome, err := ops.ExtractText(c.Request.Context(), user.ID, req.FileID, req.Language)
		if err != nil {
			respondError(c, outcome, err)
			return
		}

		metrics, _ := outcome.Result.Metrics.(OCRMetrics)
		var elapsed float64
		if outcome.Job.ProcessingTime != nil {
			elapsed = *outcome.Job.ProcessingTime
		}
		c.Header("X-Job-Id", outcome.Job.ID)
		c.JSON(http.StatusOK, gin.H{
			"extracted_text":  metrics.ExtractedText,
			"confidence":      placeholderConfidence,
			"processing_time": elapsed,
			"language":        metrics.Language,
			"word_count":      metrics.WordCount,
			"job_id":          outcome.Job.ID,
		})
	}
}

// SearchablePDFHandler は POST /api/ocr/searchable-pdf のハンドラーを返します。
func SearchablePDFHandler(ops Operations) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := requireUser(c)
		if !ok {
			return
		}
		var req OCRRequest
		if !bindJSON(c, &req) {
			return
		}
		outcome, err := ops.SearchablePDF(c.Request.Context(), user.ID, req.FileID, req.Language)
		respondOutcome(c, outcome, err, "検索可能PDFの読み込みに失敗しました")
	}
}

// LanguagesHandler は GET /api/ocr/languages のハンドラーを返します。
func LanguagesHandler(lister LanguageLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		if lister == nil {
			c.JSON(http.StatusOK, gin.H{"languages": []string{DefaultLanguage}})
			return
		}
		langs, err := lister.Languages(c.Request.Context())
		if err != nil {
			apperr.Respond(c, apperr.Upstream("OCR_LANGUAGES_FAILED", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"languages": langs})
	}
}

func requireUser(c *gin.Context) (*auth.User, bool) {
	user := auth.CurrentUser(c)
	if user == nil {
		apperr.Respond(c, auth.ErrUnauthenticated)
		return nil, false
	}
	return user, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "リクエストの形式が正しくありません。",
		})
		return false
	}
	return true
}

func respondOutcome(c *gin.Context, outcome *Outcome, err error, readErrMsg string) {
	if err != nil {
		respondError(c, outcome, err)
		return
	}
	if err := StreamDeliverable(c, outcome.Job.ID, outcome.Deliverable, readErrMsg); err != nil {
		apperr.Respond(c, err)
	}
}

// respondError はジョブ作成後の失敗であれば X-Job-Id を付けてエラーを返します。
func respondError(c *gin.Context, outcome *Outcome, err error) {
	if outcome != nil && outcome.Job != nil {
		c.Header("X-Job-Id", outcome.Job.ID)
	}
	apperr.Respond(c, err)
}

// StreamDeliverable は成果物をダウンロードとして返します。
func StreamDeliverable(c *gin.Context, jobID string, d *Deliverable, readErrMsg string) error {
	if d == nil {
		return apperr.Internal(fmt.Errorf("%s: deliverable is nil", readErrMsg))
	}
	file, err := os.Open(d.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	encodedName := url.PathEscape(d.Filename)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", asciiFallback(d.Filename), encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", jobID)
	c.DataFromReader(http.StatusOK, d.Size, d.MediaType, file, nil)
	return nil
}

// asciiFallback は filename= に入れられない文字を _ に置き換えます。
func asciiFallback(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
}
