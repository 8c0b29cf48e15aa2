// Package document turns attached files into plain text for the pipeline
// payload. Content is never interpreted here.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxChars caps extracted text.
const DefaultMaxChars = 100000

var (
	ErrUnsupported = errors.New("unsupported document type")
	ErrMalformed   = errors.New("malformed document")
)

type kind int

const (
	kindUnknown kind = iota
	kindPDF
	kindHTML
	kindText
)

// Extractor pulls plain text out of PDF, HTML and text documents.
type Extractor struct {
	MaxChars int
	log      *slog.Logger
}

func NewExtractor(maxChars int, log *slog.Logger) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{MaxChars: maxChars, log: log}
}

// Extract returns the text of the document. A zero-byte document yields "".
func (e *Extractor) Extract(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	var (
		text string
		err  error
	)
	switch detect(name, data) {
	case kindPDF:
		text, err = extractPDF(data)
	case kindHTML:
		text = extractHTML(name, data)
	case kindText:
		text = strings.ToValidUTF8(string(data), "")
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if r := []rune(text); len(r) > e.MaxChars {
		text = string(r[:e.MaxChars]) + "\n... (content truncated) ..."
	}
	return text, nil
}

// TextOrEmpty is Extract for callers that must carry on without the document:
// any extraction failure is logged and degrades to "".
func (e *Extractor) TextOrEmpty(name string, data []byte) string {
	text, err := e.Extract(name, data)
	if err != nil {
		e.log.Warn("document extraction failed, continuing without it", "document", name, "error", err)
		return ""
	}
	return text
}

func detect(name string, data []byte) kind {
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return kindPDF
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return kindPDF
	case ".html", ".htm":
		return kindHTML
	case ".txt", ".md", ".csv":
		return kindText
	}
	ct := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return kindHTML
	case strings.HasPrefix(ct, "text/"):
		return kindText
	}
	return kindUnknown
}

func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some broken cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrMalformed, i, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractHTML(name string, data []byte) string {
	p := bluemonday.StrictPolicy()

	article, err := readability.FromReader(bytes.NewReader(data), &url.URL{Scheme: "file", Path: "/" + filepath.Base(name)})
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		out := ""
		if article.Title != "" {
			out = fmt.Sprintf("TITLE: %s\n\n", article.Title)
		}
		return out + html.UnescapeString(p.Sanitize(article.TextContent))
	}
	return html.UnescapeString(p.Sanitize(string(data)))
}
