package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

// ErrExtract is returned when an upload of a supported type cannot be
// turned into plain text.
var ErrExtract = errors.New("failed to process file")

// ErrUnsupportedType is returned when an upload carries a content type
// the extractor cannot turn into plain text in-process.
var ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", ErrExtract)

// Extractor converts uploaded bytes into plain text. Binary document
// formats (PDF, DOCX, audio) are not parsed here; those uploads must
// carry extractable text already.
type Extractor struct{}

// Extract returns the plain text of data for the given MIME type.
func (Extractor) Extract(data []byte, mimeType string) (string, error) {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.ToLower(base))

	switch base {
	case "text/plain", "text/markdown", "text/csv", "application/json":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: content is not valid UTF-8", ErrExtract)
		}
		return strings.TrimSpace(string(data)), nil
	case "text/html", "application/xhtml+xml":
		return extractHTML(data, "")
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
}

// extractHTML runs readability over the document and returns the article
// text. pageURL may be empty for uploaded files.
func extractHTML(data []byte, pageURL string) (string, error) {
	var base *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err == nil {
			base = parsed
		}
	}
	if base == nil {
		base = &url.URL{Scheme: "http", Host: "localhost"}
	}
	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtract, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("%w: no extractable text", ErrExtract)
	}
	return text, nil
}

// KindForMIME maps an upload content type to the stored resource kind.
func KindForMIME(mimeType string) string {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = base[:i]
	}
	switch strings.TrimSpace(strings.ToLower(base)) {
	case "text/plain", "text/csv", "application/json":
		return "text"
	case "text/markdown":
		return "markdown"
	case "text/html", "application/xhtml+xml":
		return "html"
	case "application/pdf":
		return "pdf"
	case "application/msword":
		return "doc"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/vnd.ms-excel", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "excel"
	default:
		if strings.HasPrefix(base, "image/") {
			return "image"
		}
		if strings.HasPrefix(base, "audio/") {
			return "audio"
		}
		return ""
	}
}
