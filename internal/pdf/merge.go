package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

const timestampLayout = "20060102_150405"

// Merge は複数のPDFを指定順に結合します。同じIDの重複指定も許可します。
func (s *Service) Merge(ctx context.Context, ownerID string, ids []string) (*Outcome, error) {
	params := map[string]string{"file_count": strconv.Itoa(len(ids))}
	outcome, err := s.run(ctx, ownerID, jobs.KindMerge, ids, params, s.executeMerge)
	if err != nil {
		return outcome, err
	}
	return s.deliver(outcome, jobs.KindMerge)
}

func (s *Service) executeMerge(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
	if len(req.DocumentIDs) < 2 {
		return nil, apperr.Validation("INVALID_INPUT", "結合には2つ以上のファイルが必要です。")
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}

	inputs := make([]string, len(docs))
	sources := make([]SourceMeta, len(docs))
	for i, doc := range docs {
		inputs[i] = doc.StoragePath
		sources[i] = SourceMeta{ID: doc.ID, Filename: doc.Filename, Pages: doc.PagesCount}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := fmt.Sprintf("merged_%s.pdf", s.now().Format(timestampLayout))
	outPath := filepath.Join(req.OutputDir, name)
	if err := pdfapi.MergeCreateFile(inputs, outPath, false, nil); err != nil {
		return nil, upstream("MERGE_FAILED", err)
	}

	pages, err := pdfapi.PageCountFile(outPath)
	if err != nil {
		return nil, upstream("MERGE_FAILED", err)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("結合結果の確認に失敗しました: %w", err)
	}

	return &ExecutionResult{
		Outputs: []OutputFile{{Path: outPath, Name: name}},
		Metrics: MergeMetrics{
			TotalPages: pages,
			FileSize:   info.Size(),
			Sources:    sources,
		},
	}, nil
}

// upstream は外部処理の失敗を Upstream として返します。分類済みのエラーはそのまま返します。
func upstream(code string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Upstream(code, err)
}
