package pdf

import (
	"github.com/yourusername/pdf-genie/internal/jobs"
)

// OutputFile は処理で生成されたファイル1つを表します。
type OutputFile struct {
	Path string `json:"-"`
	Name string `json:"filename"`
}

// ExecutionResult は各処理の成果物とメトリクスです。Outputs は生成順です。
type ExecutionResult struct {
	Outputs []OutputFile `json:"outputs"`
	Metrics any          `json:"metrics,omitempty"`
}

// Paths は成果物のパスを生成順に返します。
func (r *ExecutionResult) Paths() []string {
	if r == nil {
		return nil
	}
	paths := make([]string, len(r.Outputs))
	for i, o := range r.Outputs {
		paths[i] = o.Path
	}
	return paths
}

// Outcome は1回の処理要求の結果です。Begin 後に失敗した場合も Job は設定されます。
type Outcome struct {
	Job         *jobs.Job
	Result      *ExecutionResult
	Deliverable *Deliverable
}

// SourceMeta は入力ドキュメントの情報です。
type SourceMeta struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
}

// MergeMetrics は結合処理のメトリクスです。
type MergeMetrics struct {
	TotalPages int          `json:"total_pages"`
	FileSize   int64        `json:"file_size"`
	Sources    []SourceMeta `json:"sources"`
}

// SplitMetrics は分割処理のメトリクスです。
type SplitMetrics struct {
	TotalPages int        `json:"total_pages"`
	Pages      []int      `json:"pages"`
	Source     SourceMeta `json:"source"`
}

// CompressMetrics は圧縮処理のメトリクスです。
type CompressMetrics struct {
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	SavedBytes       int64   `json:"saved_bytes"`
	CompressionRatio float64 `json:"compression_ratio"`
	CompressionLevel int     `json:"compression_level"`
	Quality          int     `json:"quality"`
	Engine           string  `json:"engine"`
}

// ConvertMetrics は画像変換のメトリクスです。
type ConvertMetrics struct {
	Format     string `json:"format"`
	TotalPages int    `json:"total_pages"`
	TotalSize  int64  `json:"total_size"`
}

// OCRMetrics はテキスト抽出のメトリクスです。
type OCRMetrics struct {
	ExtractedText     string  `json:"extracted_text"`
	WordCount         int     `json:"word_count"`
	AverageConfidence float64 `json:"average_confidence"`
	Language          string  `json:"language"`
	PageCount         int     `json:"page_count"`
}

// SearchableMetrics は検索可能PDF生成のメトリクスです。
type SearchableMetrics struct {
	Language      string `json:"language"`
	PagesRendered int    `json:"pages_rendered"`
	PagesIncluded int    `json:"pages_included"`
}
