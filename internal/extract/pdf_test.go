package extract

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperifyio/dentalguide/internal/testutil"
)

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n..."), "") {
		t.Fatalf("expected magic header to be detected")
	}
	if !IsPDF(nil, "application/pdf; charset=binary") {
		t.Fatalf("expected content type to be trusted")
	}
	if IsPDF([]byte("<html>not a pdf</html>"), "text/html") {
		t.Fatalf("html must not be treated as pdf")
	}
}

func TestFromPDF_ReadsPagesTitleAndText(t *testing.T) {
	data := testutil.PDF(t, "Amalgam Guidance", "Dental amalgam remains a safe restorative material.", "Second page about fluoride.")
	doc, err := FromPDF(data, 0)
	if err != nil {
		t.Fatalf("FromPDF: %v", err)
	}
	if doc.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", doc.Pages)
	}
	if doc.Title != "Amalgam Guidance" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if !strings.Contains(doc.Text, "amalgam") {
		t.Fatalf("expected page text, got %q", doc.Text)
	}
}

func TestFromPDF_TruncatesText(t *testing.T) {
	data := testutil.PDF(t, "", strings.Repeat("caries prevention ", 40))
	doc, err := FromPDF(data, 20)
	if err != nil {
		t.Fatalf("FromPDF: %v", err)
	}
	if n := utf8.RuneCountInString(doc.Text); n > 20 {
		t.Fatalf("expected at most 20 runes, got %d", n)
	}
}

func TestFromPDF_RejectsNonPDF(t *testing.T) {
	_, err := FromPDF([]byte("plain text"), 10)
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}
