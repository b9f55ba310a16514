package extract

import (
	"strings"
	"testing"
)

func TestPlainText_StripsSnippetMarkup(t *testing.T) {
	got := PlainText(`Use <b>fluoride</b> varnish &amp; sealants<br>for   children`)
	if got != "Use fluoride varnish & sealants for children" {
		t.Fatalf("unexpected plain text: %q", got)
	}
	if PlainText("  no  markup here ") != "no markup here" {
		t.Fatalf("expected collapsed text")
	}
}

func TestPlainText_SkipsScriptsAndConsentBanners(t *testing.T) {
	in := `<div class="cookie-banner">Accept cookies</div><p>Sealants reduce caries.</p><script>track()</script>`
	got := PlainText(in)
	if strings.Contains(got, "cookies") || strings.Contains(got, "track") {
		t.Fatalf("boilerplate leaked: %q", got)
	}
	if got != "Sealants reduce caries." {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestPlainText_KeepsListItemsSeparated(t *testing.T) {
	got := PlainText(`<ul><li>Brush twice daily</li><li>Floss</li></ul>`)
	if got != "Brush twice daily Floss" {
		t.Fatalf("unexpected text: %q", got)
	}
}
