//go:build gosseract

// Package tessengine は libtesseract の cgo バインディングによる認識エンジンです。
// ビルドには libtesseract と leptonica の開発ヘッダーが必要です。
package tessengine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/yourusername/pdf-genie/internal/native"
)

// Engine は gosseract クライアントで OCR を行います。
type Engine struct {
	TessdataDir   string
	clientFactory func() *gosseract.Client
}

// NewEngine は Engine を作成します。
func NewEngine(tessdataDir string) *Engine {
	return &Engine{TessdataDir: tessdataDir, clientFactory: gosseract.NewClient}
}

// Recognize は画像1枚を認識します。言語は "jpn+eng" のように + で連結します。
func (e *Engine) Recognize(ctx context.Context, img image.Image, lang string) (native.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return native.Recognition{}, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return native.Recognition{}, fmt.Errorf("encode page image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if e.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.TessdataDir); err != nil {
			return native.Recognition{}, fmt.Errorf("set tessdata: %w", err)
		}
	}
	if lang == "" {
		lang = "eng"
	}
	if err := c.SetLanguage(strings.Split(lang, "+")...); err != nil {
		return native.Recognition{}, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return native.Recognition{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return native.Recognition{}, err
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return native.Recognition{}, err
	}
	confidences := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		confidences = append(confidences, b.Confidence)
	}
	return native.Recognition{Text: strings.TrimSpace(text), Confidences: confidences}, nil
}
