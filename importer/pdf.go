package importer

import (
	"bytes"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/moreskylab/Sentio/recordstore"
)

// decodePDF reads a document as one article: the first non-blank line is the
// title, the rest is the content. An untitled document is named after the file.
func decodePDF(name string, data []byte) ([]recordstore.Article, error) {
	text := extractPDFText(data)
	title, content := splitTitle(text)
	if title == "" {
		title = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	if utf8.RuneCountInString(title) > recordstore.TitleLimit {
		content = strings.TrimSpace(title + "\n" + content)
		title = string([]rune(title)[:recordstore.TitleLimit])
	}
	return []recordstore.Article{{Title: title, Content: content}}, nil
}

func splitTitle(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	title, rest, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(title), strings.TrimSpace(rest)
}

func extractPDFText(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		if reader, err := r.GetPlainText(); err == nil {
			if out, err := io.ReadAll(reader); err == nil && len(bytes.TrimSpace(out)) > 0 {
				return string(out)
			}
		}
	}
	return extractPrintableText(data)
}

// extractPrintableText keeps printable runes, dropping PDF comment lines.
func extractPrintableText(in []byte) string {
	var out bytes.Buffer
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' || r >= 32 && r != 127 {
			out.WriteRune(r)
		}
	}
	var lines []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "%") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
