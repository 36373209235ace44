//go:build !gosseract

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf-genie/internal/config"
	"github.com/yourusername/pdf-genie/internal/pdf"
)

// newRecognizer は tesseract コマンドを使います。
// OCR_ENGINE=gosseract は -tags gosseract でビルドした場合のみ有効です。
func newRecognizer(cfg *config.Config, cli pdf.Recognizer, logger logrus.FieldLogger) pdf.Recognizer {
	if cfg.OCREngine == "gosseract" {
		logger.Warn("OCR_ENGINE=gosseract requires building with -tags gosseract; falling back to tesseract CLI")
	}
	return cli
}
