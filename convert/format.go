package convert

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Format identifies a supported file format.
type Format uint8

const (
	// FormatUnknown is an unrecognized format.
	FormatUnknown Format = iota
	// FormatText is plain UTF-8 text.
	FormatText
	// FormatPDF is a PDF document.
	FormatPDF
)

// String returns the wire name of the format.
func (f Format) String() string {
	switch f {
	case FormatText:
		return "text"
	case FormatPDF:
		return "pdf"
	default:
		return "unknown"
	}
}

// ParseFormat maps a wire name to a Format. Unrecognized names map to
// FormatUnknown.
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "text", "txt":
		return FormatText
	case "pdf":
		return FormatPDF
	default:
		return FormatUnknown
	}
}

// pdfMagic is the header every PDF document starts with.
var pdfMagic = []byte("%PDF-")

// DetectFormat inspects content to decide its format. The PDF magic header
// wins outright; otherwise MIME sniffing decides, with valid UTF-8 treated
// as text when sniffing is inconclusive.
func DetectFormat(data []byte) Format {
	if len(data) == 0 {
		return FormatUnknown
	}
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		return FormatPDF
	case strings.HasPrefix(mt.String(), "text/"):
		return FormatText
	}

	if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return FormatText
	}
	return FormatUnknown
}

// DetectFromFilename guesses a format from the file extension alone. Used
// when content is not yet available.
func DetectFromFilename(filename string) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return FormatPDF
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".md"),
		strings.HasSuffix(lower, ".log"), strings.HasSuffix(lower, ".csv"):
		return FormatText
	default:
		return FormatUnknown
	}
}
