package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

var (
	linkRe    = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)|https?://[^\s)]+`)
	emphasis  = strings.NewReplacer("**", "", "__", "")
	headingSz = map[int]float64{1: 16, 2: 13}
)

// WritePDF renders Markdown as a simple A4 document: headings get a bold
// font, bullets are indented and links stay clickable. Text is translated to
// the core font code page so accented characters survive.
func WritePDF(w io.Writer, markdown string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Helvetica", "", 11)
	pdf.AddPage()

	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s := strings.TrimSpace(scanner.Text())
		if s == "" {
			pdf.Ln(4)
			continue
		}
		if strings.HasPrefix(s, "#") {
			level := 0
			for level < len(s) && s[level] == '#' {
				level++
			}
			text := strings.TrimSpace(s[level:])
			if text == "" {
				continue
			}
			size, ok := headingSz[level]
			if !ok {
				size = 11.5
			}
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, 7, tr(emphasis.Replace(text)), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		if strings.HasPrefix(s, "_") && strings.HasSuffix(s, "_") && len(s) > 2 {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, tr(strings.Trim(s, "_")), "", "L", false)
			pdf.SetFont("Helvetica", "", 11)
			continue
		}
		if strings.HasPrefix(s, "- ") || strings.HasPrefix(s, "* ") {
			pdf.SetX(pdf.GetX() + 4)
			pdf.Write(5, tr("• "))
			s = strings.TrimSpace(s[2:])
		}
		writeLine(pdf, tr, emphasis.Replace(s))
		pdf.Ln(6)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return pdf.Output(w)
}

// writeLine writes one paragraph, turning Markdown and bare links into PDF
// links.
func writeLine(pdf *gofpdf.Fpdf, tr func(string) string, s string) {
	pos := 0
	for _, m := range linkRe.FindAllStringSubmatchIndex(s, -1) {
		if m[0] > pos {
			pdf.Write(5, tr(s[pos:m[0]]))
		}
		text, url := s[m[0]:m[1]], s[m[0]:m[1]]
		if m[2] >= 0 {
			text, url = s[m[2]:m[3]], s[m[4]:m[5]]
		}
		pdf.WriteLinkString(5, tr(text), url)
		pos = m[1]
	}
	if pos < len(s) {
		pdf.Write(5, tr(s[pos:]))
	}
}
