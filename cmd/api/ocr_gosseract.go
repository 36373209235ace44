//go:build gosseract

package main

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/pdf-genie/internal/config"
	"github.com/yourusername/pdf-genie/internal/native/tessengine"
	"github.com/yourusername/pdf-genie/internal/pdf"
)

// newRecognizer は OCR_ENGINE=gosseract の場合に libtesseract を直接使います。
func newRecognizer(cfg *config.Config, cli pdf.Recognizer, _ logrus.FieldLogger) pdf.Recognizer {
	if cfg.OCREngine == "gosseract" {
		return tessengine.NewEngine(cfg.TessdataDir)
	}
	return cli
}
