// Package storage はアップロードファイルと処理結果を保存するローカルストレージを提供します。
//
// 保存先:
//   - アップロード: <root>/uploads/<documentID>_<filename>
//   - 処理結果:     <root>/processed/<jobID>/
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge はアップロードが上限サイズを超えた場合に返されます。
var ErrTooLarge = errors.New("file exceeds size limit")

// Local はファイルシステム上のストレージです。
type Local struct {
	uploadsDir   string
	processedDir string
}

// NewLocal はディレクトリを作成して Local を返します。
func NewLocal(uploadsDir, processedDir string) (*Local, error) {
	for _, dir := range []string{uploadsDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
		}
	}
	return &Local{uploadsDir: uploadsDir, processedDir: processedDir}, nil
}

// UploadsDir はアップロード保存先を返します。
func (l *Local) UploadsDir() string { return l.uploadsDir }

// ProcessedDir は処理結果の保存先を返します。
func (l *Local) ProcessedDir() string { return l.processedDir }

// SaveUpload は r の内容を uploads/<id>_<filename> に書き込みます。
// maxSize を超えた場合は書きかけのファイルを削除して ErrTooLarge を返します。
func (l *Local) SaveUpload(r io.Reader, id, filename string, maxSize int64) (string, int64, error) {
	dst := filepath.Join(l.uploadsDir, id+"_"+SanitizeFilename(filename))
	out, err := os.Create(dst)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create upload file: %w", err)
	}

	// 上限+1バイトまで読むことで超過を検出する
	written, copyErr := io.Copy(out, io.LimitReader(r, maxSize+1))
	closeErr := out.Close()
	if copyErr == nil && written > maxSize {
		copyErr = ErrTooLarge
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dst)
		if errors.Is(copyErr, ErrTooLarge) {
			return "", 0, copyErr
		}
		return "", 0, fmt.Errorf("failed to write upload file: %w", copyErr)
	}
	return dst, written, nil
}

// JobDir はジョブ専用の出力ディレクトリを作成して返します。
func (l *Local) JobDir(jobID string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("invalid job id: %q", jobID)
	}
	dir := filepath.Join(l.processedDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create job dir: %w", err)
	}
	return dir, nil
}

// Exists は通常ファイルが存在するかを返します。
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SanitizeFilename はパス区切りや制御文字を取り除いたファイル名を返します。
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		switch r {
		case '/', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}
