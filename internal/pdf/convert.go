package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/yourusername/pdf-genie/internal/apperr"
	"github.com/yourusername/pdf-genie/internal/jobs"
)

const (
	convertDPI  = 200
	jpegQuality = 95
)

// SupportedFormats は画像変換で指定できる形式です。
var SupportedFormats = []string{"png", "jpg", "jpeg", "webp", "tiff", "bmp"}

// Convert はPDFの各ページを画像ファイルに変換します。
func (s *Service) Convert(ctx context.Context, ownerID, documentID, format string) (*Outcome, error) {
	params := map[string]string{"format": format}
	exec := func(ctx context.Context, req ExecRequest) (*ExecutionResult, error) {
		return s.executeConvert(ctx, req, format)
	}
	outcome, err := s.run(ctx, ownerID, jobs.KindConvert, []string{documentID}, params, exec)
	if err != nil {
		return outcome, err
	}
	return s.deliver(outcome, jobs.KindConvert)
}

func (s *Service) executeConvert(ctx context.Context, req ExecRequest, format string) (*ExecutionResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !isSupportedFormat(format) {
		return nil, apperr.Validation("UNSUPPORTED_FORMAT",
			fmt.Sprintf("サポートされていない形式です: %s（対応形式: %s）", format, strings.Join(SupportedFormats, ", ")))
	}
	if s.rasterizer == nil {
		return nil, apperr.Internal(errors.New("rasterizer is not configured"))
	}
	docs, err := s.resolve(ctx, req.OwnerID, req.DocumentIDs)
	if err != nil {
		return nil, err
	}
	doc := docs[0]

	images, err := s.rasterizer.Render(ctx, doc.StoragePath, convertDPI)
	if err != nil {
		return nil, upstream("RENDER_FAILED", err)
	}

	base := baseName(doc.Filename)
	outputs := make([]OutputFile, 0, len(images))
	var total int64
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("page_%d_%s.%s", i+1, base, format)
		outPath := filepath.Join(req.OutputDir, name)
		size, err := writeImage(outPath, img, format)
		if err != nil {
			return nil, err
		}
		total += size
		outputs = append(outputs, OutputFile{Path: outPath, Name: name})
	}

	return &ExecutionResult{
		Outputs: outputs,
		Metrics: ConvertMetrics{
			Format:     format,
			TotalPages: len(images),
			TotalSize:  total,
		},
	}, nil
}

func isSupportedFormat(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

func writeImage(path string, img image.Image, format string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("画像ファイルの作成に失敗しました: %w", err)
	}
	defer f.Close()

	if err := encodeImage(f, img, format); err != nil {
		return 0, fmt.Errorf("画像のエンコードに失敗しました (%s): %w", format, err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		return bmp.Encode(w, flatten(img))
	case "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "webp":
		return nativewebp.Encode(w, img, nil)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// flatten は透過を白背景に合成した不透明画像を返します。
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Over)
	return dst
}
