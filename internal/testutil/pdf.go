// Package testutil はテスト用のPDF生成ヘルパーを提供します。
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// PDF はページごとに MediaBox の幅が異なる最小構成のPDFを生成します。
// 幅でページを識別できるため、結合や分割後のページ順の検証に使えます。
func PDF(widths ...int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range widths {
		kids += fmt.Sprintf("%d 0 R ", 3+i*2)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(widths)))

	for i, w := range widths {
		content := fmt.Sprintf("0 0 m %d 100 l S", w)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 300] /Contents %d 0 R /Resources << >> >>", w, 4+i*2))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// WritePDF は dir/name に PDF(widths...) を書き出してパスを返します。
func WritePDF(t testing.TB, dir, name string, widths ...int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, PDF(widths...), 0o644); err != nil {
		t.Fatalf("failed to write pdf: %v", err)
	}
	return path
}
