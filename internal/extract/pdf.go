package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned when bytes do not carry a PDF header.
var ErrNotPDF = errors.New("not a pdf")

// IsPDF sniffs the body for the PDF header. Producers may emit junk before
// the header, so the first KiB is searched. A declared application/pdf
// content type is accepted on its own.
func IsPDF(data []byte, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.HasPrefix(ct, "application/pdf") || strings.HasPrefix(ct, "application/x-pdf") {
		return true
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, pdfMagic)
}

// FromPDF reads the page count, the document title and up to maxChars of
// plain text. Pages are read in order and reading stops once the budget is
// filled, so large documents are not fully decoded. maxChars <= 0 reads all
// pages.
func FromPDF(data []byte, maxChars int) (doc Document, err error) {
	if !IsPDF(data, "") {
		return Document{}, ErrNotPDF
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = Document{}
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}
	doc.Pages = r.NumPage()
	doc.Title = strings.TrimSpace(r.Trailer().Key("Info").Key("Title").Text())

	var b strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= doc.Pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := p.Font(name)
				fonts[name] = &f
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return doc, fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
		if maxChars > 0 && b.Len() >= maxChars*4 {
			break
		}
	}
	doc.Text = normalizeWhitespace(b.String())
	if maxChars > 0 {
		doc.Text = truncateRunes(doc.Text, maxChars)
	}
	return doc, nil
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
