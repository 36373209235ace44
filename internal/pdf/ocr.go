package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

const (
	ocrDPI          = 300
	DefaultLanguage = "eng"
)

var languagePattern = regexp.MustCompile(`^[A-Za-z_]+(\+[A-Za-z_]+)*$`)

// ExtractText はPDFの全ページをOCRし、テキストファイルを生成します。
func (s *Service) ExtractText(ctx context.Context, ownerID, documentID, language string) (*Outcome, error) {
	language = normalizeLanguage(language)
	params := map[string]string{"language": language, "operation": "extract_text"}
	exec := func(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
		return s.executeExtractText(ctx, req, language)
	}
	outcome, err := s.run(ctx, ownerID, jobs.KindOCR, []string{documentID}, params, exec)
	if err != nil {
		return outcome, err
	}
	s.saveOCRResult(ctx, ownerID, documentID, outcome)
	return s.deliver(outcome, jobs.KindOCR)
}

// SearchablePDF は先頭ページからテキストレイヤー付きPDFを生成します。
func (s *Service) SearchablePDF(ctx context.Context, ownerID, documentID, language string) (*Outcome, error) {
	language = normalizeLanguage(language)
	params := map[string]string{"language": language, "operation": "searchable_pdf"}
	exec := func(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
		return s.executeSearchable(ctx, req, language)
	}
	outcome, err := s.run(ctx, ownerID, jobs.KindOCR, []string{documentID}, params, exec)
	if err != nil {
		return outcome, err
	}
	return s.deliver(outcome, jobs.KindOCR)
}

func (s *Service) executeExtractText(ctx context.Context, req ExecRequest, language string) (*ExecutionResult, error) {
	if err := validateLanguage(language); err != nil {
		return nil, err
	}
	if s.rasterizer == nil || s.recognizer == nil {
		return nil, apperr.Internal(errors.New("ocr engine is not configured"))
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	images, err := s.rasterizer.Render(ctx, doc.StoragePath, ocrDPI)
	if err != nil {
		return nil, upstream("RENDER_FAILED", err)
	}

	pages := make([]string, 0, len(images))
	var confidences []float64
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.recognizer.Recognize(ctx, img, language)
		if err != nil {
			return nil, upstream("OCR_FAILED", err)
		}
		pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s\n", i+1, rec.Text))
		confidences = append(confidences, rec.Confidences...)
	}
	text := strings.Join(pages, "\n")

	name := fmt.Sprintf("ocr_text_%s_%d.txt", doc.ID, s.now().Unix())
	outPath := filepath.Join(req.OutputDir, name)
	if err := os.WriteFile(outPath, []byte(text), 0o640); err != nil {
		return nil, fmt.Errorf("テキストファイルの保存に失敗しました: %w", err)
	}

	return &ExecutionResult{
		Outputs: []OutputFile{{Path: outPath, Name: name}},
		Metrics: OCRMetrics{
			ExtractedText:     text,
			WordCount:         len(strings.Fields(text)),
			AverageConfidence: averageConfidence(confidences),
			Language:          language,
			PageCount:         len(images),
		},
	}, nil
}

func (s *Service) executeSearchable(ctx context.Context, req ExecRequest, language string) (*ExecutionResult, error) {
	if err := validateLanguage(language); err != nil {
		return nil, err
	}
	if s.rasterizer == nil || s.searchable == nil {
		return nil, apperr.Internal(errors.New("ocr engine is not configured"))
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	images, err := s.rasterizer.Render(ctx, doc.StoragePath, ocrDPI)
	if err != nil {
		return nil, upstream("RENDER_FAILED", err)
	}
	if len(images) == 0 {
		return nil, apperr.Upstream("RENDER_FAILED", errors.New("no pages rendered"))
	}

	// 先頭ページのみ対象
	data, err := s.searchable.SearchablePDF(ctx, images[0], language)
	if err != nil {
		return nil, upstream("OCR_FAILED", err)
	}

	name := "searchable_" + doc.Filename
	outPath := filepath.Join(req.OutputDir, name)
	if err := os.WriteFile(outPath, data, 0o640); err != nil {
		return nil, fmt.Errorf("検索可能PDFの保存に失敗しました: %w", err)
	}

	return &ExecutionResult{
		Outputs: []OutputFile{{Path: outPath, Name: name}},
		Metrics: SearchableMetrics{
			Language:      language,
			PagesRendered: len(images),
			PagesIncluded: 1,
		},
	}, nil
}

func (s *Service) saveOCRResult(ctx context.Context, ownerID, documentID string, outcome *Outcome) {
	if s.ocrResults == nil {
		return
	}
	metrics, ok := outcome.Result.Metrics.(OCRMetrics)
	if !ok {
		return
	}
	var elapsed float64
	if outcome.Job.ProcessingTime != nil {
		elapsed = *outcome.Job.ProcessingTime
	}
	err := s.ocrResults.Save(ctx, &OCRResult{
		DocumentID:      documentID,
		OwnerID:         ownerID,
		ExtractedText:   metrics.ExtractedText,
		ConfidenceScore: metrics.AverageConfidence,
		Language:        metrics.Language,
		PageCount:       metrics.PageCount,
		ProcessingTime:  elapsed,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("job_id", outcome.Job.ID).Warn("failed to save ocr result")
	}
}

func normalizeLanguage(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return DefaultLanguage
	}
	return language
}

func validateLanguage(language string) error {
	if !languagePattern.MatchString(language) {
		return apperr.Validation("INVALID_LANGUAGE", fmt.Sprintf("言語の指定が正しくありません: %s", language))
	}
	return nil
}

// averageConfidence は 0 より大きい信頼度の平均を返します。
func averageConfidence(values []float64) float64 {
	var sum float64
	var n int
	for _, v := range values {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
