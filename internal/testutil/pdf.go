// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

// PDF renders a small document with one page per entry in pages and returns
// its bytes.
func PDF(t testing.TB, title string, pages ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	if title != "" {
		doc.SetTitle(title, false)
	}
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		doc.MultiCell(0, 6, text, "", "L", false)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render pdf: %v", err)
	}
	return buf.Bytes()
}
