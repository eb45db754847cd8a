// Package export renders decorated documents as ProseMirror JSON, HTML
// fragments and standalone review pages.
package export

import (
	"errors"
	"time"

	"proofline/internal/doctree"
	"proofline/internal/suggestion"
)

// Format represents the export output format
type Format string

const (
	FormatHTML        Format = "html"
	FormatPage        Format = "page"
	FormatProseMirror Format = "prosemirror"
	FormatText        Format = "text"
)

// ParseFormat maps a query value to a Format. Empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "":
		return FormatHTML, nil
	case FormatHTML, FormatPage, FormatProseMirror, FormatText:
		return Format(value), nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	DocumentID  string
	Title       string
	Format      Format
	Document    *doctree.Document
	Suggestions []suggestion.Suggestion
	Styles      doctree.Styles
	GeneratedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates the requested export format is unknown.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrContentUnavailable indicates no document was supplied for export.
	ErrContentUnavailable = errors.New("export content unavailable")
)
