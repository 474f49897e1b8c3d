// Package convert implements text and PDF conversion for received files.
// Detection inspects content rather than trusting file extensions.
package convert

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	ledongpdf "github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedConversion indicates a source/target pair with no
	// converter.
	ErrUnsupportedConversion = errors.New("unsupported conversion")

	// ErrEmptyInput indicates empty input data.
	ErrEmptyInput = errors.New("empty input")
)

// PDFConfig controls text to PDF rendering.
type PDFConfig struct {
	FontFamily string
	FontSize   float64
	LineHeight float64
	Margin     float64
}

// DefaultPDFConfig returns the rendering defaults.
func DefaultPDFConfig() PDFConfig {
	return PDFConfig{
		FontFamily: "Arial",
		FontSize:   12,
		LineHeight: 6,
		Margin:     15,
	}
}

// Converter transforms file content between supported formats.
type Converter struct {
	pdfConfig PDFConfig
}

// NewConverter creates a converter with the given PDF rendering settings.
// Zero-value fields fall back to defaults.
func NewConverter(cfg PDFConfig) *Converter {
	def := DefaultPDFConfig()
	if cfg.FontFamily == "" {
		cfg.FontFamily = def.FontFamily
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = def.FontSize
	}
	if cfg.LineHeight <= 0 {
		cfg.LineHeight = def.LineHeight
	}
	if cfg.Margin <= 0 {
		cfg.Margin = def.Margin
	}
	return &Converter{pdfConfig: cfg}
}

// Convert transforms data from source to target format. Identical source and
// target pass the data through unchanged.
func (c *Converter) Convert(data []byte, source, target Format) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if source == target {
		return data, nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "Convert",
		"source":   source.String(),
		"target":   target.String(),
		"size":     len(data),
	}).Debug("Converting file content")

	switch {
	case source == FormatText && target == FormatPDF:
		return c.textToPDF(data)
	case source == FormatPDF && target == FormatText:
		return c.pdfToText(data)
	default:
		return nil, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, source, target)
	}
}

// textToPDF renders UTF-8 text as a paginated PDF.
func (c *Converter) textToPDF(data []byte) ([]byte, error) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(c.pdfConfig.Margin, c.pdfConfig.Margin, c.pdfConfig.Margin)
	doc.SetAutoPageBreak(true, c.pdfConfig.Margin)
	doc.AddPage()
	doc.SetFont(c.pdfConfig.FontFamily, "", c.pdfConfig.FontSize)

	width, _ := doc.GetPageSize()
	usable := width - 2*c.pdfConfig.Margin

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			doc.Ln(c.pdfConfig.LineHeight)
			continue
		}
		doc.MultiCell(usable, c.pdfConfig.LineHeight, line, "", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfToText extracts the plain text content of a PDF document.
func (c *Converter) pdfToText(data []byte) ([]byte, error) {
	reader, err := ledongpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return buf.Bytes(), nil
}

// ConvertedFilename swaps a filename's extension to match the target format.
func ConvertedFilename(filename string, target Format) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	switch target {
	case FormatPDF:
		return base + ".pdf"
	case FormatText:
		return base + ".txt"
	default:
		return filename
	}
}
