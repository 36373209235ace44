package native

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Pdftoppm は poppler の pdftoppm でPDFをページ画像に変換します。
type Pdftoppm struct {
	Path   string
	Runner Runner
	// TempDir は中間PNGの置き場所です。空ならOSの一時ディレクトリを使います。
	TempDir string
}

// Render は全ページを dpi で描画し、ページ順の画像を返します。
func (p *Pdftoppm) Render(ctx context.Context, pdfPath string, dpi int) ([]image.Image, error) {
	if dpi <= 0 {
		dpi = 200
	}
	bin := p.Path
	if bin == "" {
		bin = "pdftoppm"
	}

	dir, err := os.MkdirTemp(p.TempDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	if _, err := run(ctx, p.Runner, bin, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix); err != nil {
		return nil, err
	}

	files, err := renderedPages(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", filepath.Base(pdfPath))
	}

	images := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := decodePNG(f)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

// renderedPages は page-<n>.png をページ番号の昇順で返します。
// pdftoppm はページ数に応じて番号をゼロ埋めするため数値で並べ替えます。
func renderedPages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	type page struct {
		n    int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".png")
		n, err := strconv.Atoi(strings.TrimPrefix(base, "page-"))
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, pg := range pages {
		out[i] = pg.path
	}
	return out, nil
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
