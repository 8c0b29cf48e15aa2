package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultMaxBytes caps a downloaded document.
const DefaultMaxBytes = 32 << 20

// ErrTooLarge is returned for a document above the size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// ReadLimited reads all of r, failing with ErrTooLarge once more than max
// bytes arrive.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, max)
	}
	return data, nil
}

// Fetcher downloads a document by URL and extracts its text.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	Extractor *Extractor
}

func NewFetcher(extractor *Extractor) *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		MaxBytes:  DefaultMaxBytes,
		Extractor: extractor,
	}
}

// IsURL reports whether s looks like an http(s) document location.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if !IsURL(rawURL) {
		return "", fmt.Errorf("not an http(s) URL: %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	data, err := ReadLimited(resp.Body, f.MaxBytes)
	if err != nil {
		return "", fmt.Errorf("failed to read document: %w", err)
	}
	return f.Extractor.Extract(documentName(rawURL, resp.Header.Get("Content-Type")), data)
}

// documentName gives the download a file name whose extension matches its
// content type, so detection works for URLs like /report?id=1.
func documentName(rawURL, contentType string) string {
	name := "document"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf" && !strings.HasSuffix(strings.ToLower(name), ".pdf"):
		name += ".pdf"
	case mediaType == "text/html" && !strings.Contains(strings.ToLower(path.Ext(name)), "htm"):
		name += ".html"
	}
	return name
}
