package native

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Recognition はページ1枚分のOCR結果です。
type Recognition struct {
	Text string
	// Confidences は単語ごとの信頼度（0〜100、認識できない場合は -1）です。
	Confidences []float64
}

// TesseractCLI は tesseract コマンドでOCRを行います。
type TesseractCLI struct {
	Path        string
	TessdataDir string
	Runner      Runner
	TempDir     string
}

// Recognize は画像からテキストと単語ごとの信頼度を取得します。
func (t *TesseractCLI) Recognize(ctx context.Context, img image.Image, lang string) (Recognition, error) {
	dir, input, err := t.writeInput(img)
	if err != nil {
		return Recognition{}, err
	}
	defer os.RemoveAll(dir)

	args := append([]string{input, "stdout"}, t.langArgs(lang)...)
	args = append(args, "tsv")
	stdout, err := run(ctx, t.Runner, t.bin(), args...)
	if err != nil {
		return Recognition{}, err
	}
	return ParseTSV(stdout), nil
}

// SearchablePDF は画像からテキストレイヤー付きの1ページPDFを生成します。
func (t *TesseractCLI) SearchablePDF(ctx context.Context, img image.Image, lang string) ([]byte, error) {
	dir, input, err := t.writeInput(img)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	outBase := filepath.Join(dir, "searchable")
	args := append([]string{input, outBase}, t.langArgs(lang)...)
	args = append(args, "pdf")
	if _, err := run(ctx, t.Runner, t.bin(), args...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(outBase + ".pdf")
	if err != nil {
		return nil, fmt.Errorf("tesseract produced no pdf: %w", err)
	}
	return data, nil
}

func (t *TesseractCLI) bin() string {
	if t.Path == "" {
		return "tesseract"
	}
	return t.Path
}

func (t *TesseractCLI) langArgs(lang string) []string {
	if lang == "" {
		lang = "eng"
	}
	args := []string{"-l", lang}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	return args
}

func (t *TesseractCLI) writeInput(img image.Image) (string, string, error) {
	dir, err := os.MkdirTemp(t.TempDir, "ocr-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create ocr dir: %w", err)
	}
	path := filepath.Join(dir, "page.png")
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.RemoveAll(dir)
		return "", "", fmt.Errorf("failed to encode page image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	return dir, path, nil
}

// ParseTSV は tesseract の TSV 出力からテキストと単語の信頼度を組み立てます。
// 列: level page_num block_num par_num line_num word_num left top width height conf text
func ParseTSV(data []byte) Recognition {
	var (
		rec               Recognition
		text              strings.Builder
		lastPar, lastLine string
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil {
			conf = -1
		}
		rec.Confidences = append(rec.Confidences, conf)

		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		par := strings.Join(cols[1:4], ".")
		line := par + "." + cols[4]
		switch {
		case text.Len() == 0:
		case par != lastPar:
			text.WriteString("\n\n")
		case line != lastLine:
			text.WriteByte('\n')
		default:
			text.WriteByte(' ')
		}
		text.WriteString(word)
		lastPar, lastLine = par, line
	}
	rec.Text = text.String()
	return rec
}

// Languages は tesseract --list-langs の結果から利用可能な言語を返します。
func (t *TesseractCLI) Languages(ctx context.Context) ([]string, error) {
	args := []string{"--list-langs"}
	if t.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.TessdataDir)
	}
	stdout, err := run(ctx, t.Runner, t.bin(), args...)
	if err != nil {
		return nil, err
	}
	return parseLanguages(stdout), nil
}

// parseLanguages は先頭の見出し行を除いた言語コードを返します。
func parseLanguages(data []byte) []string {
	var langs []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs
}
