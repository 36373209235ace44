package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

// Split は指定ページを1ページずつ別ファイルとして抽出します。
// 出力は指定順で、重複指定はそれぞれ別ファイルになります。
func (s *Service) Split(ctx context.Context, ownerID, documentID string, pages []int) (*Outcome, error) {
	params := map[string]string{"pages": formatPages(pages)}
	exec := func(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
		return s.executeSplit(ctx, req, pages)
	}
	outcome, err := s.run(ctx, ownerID, jobs.KindSplit, []string{documentID}, params, exec)
	if err != nil {
		return outcome, err
	}
	return s.deliver(outcome, jobs.KindSplit)
}

func (s *Service) executeSplit(ctx context.Context, req ExecRequest, pages []int) (*ExecutionResult, error) {
	if len(pages) == 0 {
		return nil, apperr.Validation("INVALID_INPUT", "抽出するページを指定してください。")
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	total, err := pdfapi.PageCountFile(doc.StoragePath)
	if err != nil {
		return nil, upstream("SPLIT_FAILED", err)
	}
	// 抽出前に全ページを検証する
	if invalid := invalidPages(pages, total); len(invalid) > 0 {
		return nil, apperr.Validation("INVALID_PAGES",
			fmt.Sprintf("無効なページ番号です: %s。PDFのページ数は%dです。", formatPages(invalid), total))
	}

	base := baseName(doc.Filename)
	names := nameAllocator{}
	outputs := make([]OutputFile, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := names.next(fmt.Sprintf("split_%s_page_%d.pdf", base, page))
		outPath := filepath.Join(req.OutputDir, name)
		if err := pdfapi.CollectFile(doc.StoragePath, outPath, []string{strconv.Itoa(page)}, nil); err != nil {
			return nil, upstream("SPLIT_FAILED", err)
		}
		outputs = append(outputs, OutputFile{Path: outPath, Name: name})
	}

	return &ExecutionResult{
		Outputs: outputs,
		Metrics: SplitMetrics{
			TotalPages: total,
			Pages:      pages,
			Source:     SourceMeta{ID: doc.ID, Filename: doc.Filename, Pages: total},
		},
	}, nil
}

func invalidPages(pages []int, total int) []int {
	var invalid []int
	for _, p := range pages {
		if p < 1 || p > total {
			invalid = append(invalid, p)
		}
	}
	return invalid
}

// formatPages は [1,3,5] 形式の文字列を返します。
func formatPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
