package pdf

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

// Deliverable は利用者に返すファイルです。
type Deliverable struct {
	Path      string
	Filename  string
	MediaType string
	Size      int64
}

// Assemble は成果物を1つのファイルにまとめます。
// 1件ならそのまま、複数なら生成順のままzipに格納します。
func Assemble(kind jobs.Kind, outputs []OutputFile, now time.Time) (*Deliverable, error) {
	switch len(outputs) {
	case 0:
		return nil, apperr.Internal(fmt.Errorf("no output to deliver"))
	case 1:
		return single(outputs[0])
	}

	name := fmt.Sprintf("%s_%s.zip", archivePrefix(kind), now.Format(timestampLayout))
	path := filepath.Join(filepath.Dir(outputs[0].Path), name)
	if err := createZip(path, outputs); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("zipファイルの確認に失敗しました: %w", err)
	}
	return &Deliverable{Path: path, Filename: name, MediaType: "application/zip", Size: info.Size()}, nil
}

func single(out OutputFile) (*Deliverable, error) {
	info, err := os.Stat(out.Path)
	if err != nil {
		return nil, fmt.Errorf("成果物の確認に失敗しました: %w", err)
	}
	mediaType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(out.Path); err == nil {
		mediaType = mt.String()
	}
	return &Deliverable{Path: out.Path, Filename: out.Name, MediaType: mediaType, Size: info.Size()}, nil
}

func archivePrefix(kind jobs.Kind) string {
	switch kind {
	case jobs.KindSplit:
		return "split_pages"
	case jobs.KindConvert:
		return "converted_images"
	default:
		return string(kind)
	}
}

// outputsFromPaths はジョブ記録の出力パスから成果物一覧を復元します。
func outputsFromPaths(paths []string) ([]OutputFile, error) {
	outputs := make([]OutputFile, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, apperr.NotFound("JOB_RESULT_NOT_FOUND", "ジョブの成果物が見つかりませんでした。")
		}
		outputs = append(outputs, OutputFile{Path: p, Name: filepath.Base(p)})
	}
	return outputs, nil
}

func createZip(outputPath string, files []OutputFile) (err error) {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("zipファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if cerr := outFile.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("zipファイルのクローズに失敗しました: %w", cerr)
		}
	}()

	zipWriter := zip.NewWriter(outFile)
	defer func() {
		if cerr := zipWriter.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("zipの書き込みに失敗しました: %w", cerr)
		}
	}()

	for _, f := range files {
		if err := addZipEntry(zipWriter, f); err != nil {
			return err
		}
	}
	return nil
}

func addZipEntry(zw *zip.Writer, f OutputFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("zip入力ファイルのオープンに失敗しました: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("zip入力ファイルの情報取得に失敗しました: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zipヘッダーの生成に失敗しました: %w", err)
	}
	header.Name = f.Name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zipヘッダーの書き込みに失敗しました: %w", err)
	}
	if _, err := io.Copy(writer, file); err != nil {
		return fmt.Errorf("zipへの書き込みに失敗しました: %w", err)
	}
	return nil
}
