package native

import (
	"context"
	"fmt"
)

// Ghostscript は gs コマンドでPDFを再書き出しします。
type Ghostscript struct {
	Path   string
	Runner Runner
}

// Compress は inputPath を圧縮して outputPath に書き出します。
// setting は /screen, /ebook, /printer, /prepress のいずれかです。
func (g *Ghostscript) Compress(ctx context.Context, inputPath, outputPath, setting string) error {
	_, err := run(ctx, g.Runner, g.Path, ghostscriptArgs(outputPath, inputPath, setting)...)
	return err
}

func ghostscriptArgs(outputPath, inputPath, setting string) []string {
	if setting == "" {
		setting = "/printer"
	}
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-dPDFSETTINGS=%s", setting),
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}
