package pdf

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/documents"
	"github.com/yourusername/pdf-genie/internal/storage"
)

// ExecRequest は各処理に渡す共通の入力です。
type ExecRequest struct {
	JobID       string
	OwnerID     string
	DocumentIDs []string
	// OutputDir はジョブ専用の出力ディレクトリです。
	OutputDir string
}

// resolve は所有者のドキュメントを要求順に取得し、実ファイルの存在を確認します。
func (s *Service) resolve(ctx context.Context, ownerID string, ids []string) ([]*documents.Document, error) {
	docs := make([]*documents.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := s.docs.Find(ctx, id, ownerID)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, apperr.NotFound("FILE_NOT_FOUND", fmt.Sprintf("ファイルが見つかりません: %s", id))
		}
		if !storage.Exists(doc.StoragePath) {
			return nil, apperr.NotFound("FILE_NOT_FOUND", fmt.Sprintf("ファイルの実体が見つかりません: %s", doc.Filename))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// baseName は拡張子を除いたファイル名を返します。
func baseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// nameAllocator は同じジョブ内で重複しないファイル名を払い出します。
// 2回目以降は拡張子の前に _2, _3 ... を付けます。
type nameAllocator map[string]int

func (a nameAllocator) next(name string) string {
	a[name]++
	n := a[name]
	if n == 1 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}
