package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

// DefaultQuality は quality 未指定時の既定値です。
const DefaultQuality = 80

const (
	engineGhostscript = "ghostscript"
	enginePdfcpu      = "pdfcpu"
)

// Compress はPDFを再書き出しして圧縮します。quality は 1〜100 です。
func (s *Service) Compress(ctx context.Context, ownerID, documentID string, quality int) (*Outcome, error) {
	params := map[string]string{"quality": strconv.Itoa(quality)}
	exec := func(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
		return s.executeCompress(ctx, req, quality)
	}
	outcome, err := s.run(ctx, ownerID, jobs.KindCompress, []string{documentID}, params, exec)
	if err != nil {
		return outcome, err
	}
	return s.deliver(outcome, jobs.KindCompress)
}

func (s *Service) executeCompress(ctx context.Context, req ExecRequest, quality int) (*ExecutionResult, error) {
	if quality < 1 || quality > 100 {
		return nil, apperr.Validation("INVALID_QUALITY", "quality は 1〜100 の範囲で指定してください。")
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	in, err := os.Stat(doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("入力ファイルの確認に失敗しました: %w", err)
	}

	level := compressionLevel(quality)
	name := "compressed_" + doc.Filename
	outPath := filepath.Join(req.OutputDir, name)

	engine := enginePdfcpu
	if s.compressor != nil {
		engine = engineGhostscript
		err = s.compressor.Compress(ctx, doc.StoragePath, outPath, ghostscriptPreset(level))
	} else {
		err = pdfapi.OptimizeFile(doc.StoragePath, outPath, optimizeConfig(level))
	}
	if err != nil {
		return nil, upstream("COMPRESS_FAILED", err)
	}

	out, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("圧縮結果の確認に失敗しました: %w", err)
	}

	original, compressed := in.Size(), out.Size()
	return &ExecutionResult{
		Outputs: []OutputFile{{Path: outPath, Name: name}},
		Metrics: CompressMetrics{
			OriginalSize:     original,
			CompressedSize:   compressed,
			SavedBytes:       max(original-compressed, 0),
			CompressionRatio: compressionRatio(original, compressed),
			CompressionLevel: level,
			Quality:          quality,
			Engine:           engine,
		},
	}, nil
}

// compressionLevel は quality を 0〜9 の圧縮レベルに変換します。quality が高いほど低くなります。
// 品質 100 は無圧縮（レベル 0）として扱います。
func compressionLevel(quality int) int {
	if quality >= 100 {
		return 0
	}
	return min(max(9-quality/12, 0), 9)
}

// compressionRatio は削減率（%）を返します。サイズが増えた場合は 0 です。
func compressionRatio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	return max(float64(original-compressed)/float64(original)*100, 0)
}

func optimizeConfig(level int) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = level > 0
	conf.WriteXRefStream = level > 0
	return conf
}

func ghostscriptPreset(level int) string {
	switch {
	case level <= 2:
		return "/prepress"
	case level <= 5:
		return "/printer"
	case level <= 7:
		return "/ebook"
	default:
		return "/screen"
	}
}
