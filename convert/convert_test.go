package convert

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf magic", []byte("%PDF-1.7\nsome content"), FormatPDF},
		{"plain text", []byte("hello world\nsecond line"), FormatText},
		{"utf8 text", []byte("résumé façade"), FormatText},
		{"empty", nil, FormatUnknown},
		{"binary", []byte{0x00, 0x01, 0x02, 0xff, 0xfe}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatText, ParseFormat("text"))
	assert.Equal(t, FormatText, ParseFormat("TXT"))
	assert.Equal(t, FormatPDF, ParseFormat(" pdf "))
	assert.Equal(t, FormatUnknown, ParseFormat("docx"))
	assert.Equal(t, FormatUnknown, ParseFormat(""))
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "text", FormatText.String())
	assert.Equal(t, "pdf", FormatPDF.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
}

func TestDetectFromFilename(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFromFilename("report.PDF"))
	assert.Equal(t, FormatText, DetectFromFilename("notes.txt"))
	assert.Equal(t, FormatText, DetectFromFilename("README.md"))
	assert.Equal(t, FormatUnknown, DetectFromFilename("image.png"))
}

func TestTextToPDF(t *testing.T) {
	c := NewConverter(DefaultPDFConfig())

	out, err := c.Convert([]byte("first line\n\nthird line"), FormatText, FormatPDF)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Equal(t, FormatPDF, DetectFormat(out))
}

func TestPDFRoundTrip(t *testing.T) {
	c := NewConverter(DefaultPDFConfig())

	original := "roundtrip content for extraction"
	rendered, err := c.Convert([]byte(original), FormatText, FormatPDF)
	require.NoError(t, err)

	extracted, err := c.Convert(rendered, FormatPDF, FormatText)
	require.NoError(t, err)
	assert.Contains(t, strings.ReplaceAll(string(extracted), "\n", " "), "roundtrip")
}

func TestSameFormatPassThrough(t *testing.T) {
	c := NewConverter(PDFConfig{})
	in := []byte("unchanged")
	out, err := c.Convert(in, FormatText, FormatText)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnsupportedConversion(t *testing.T) {
	c := NewConverter(PDFConfig{})
	_, err := c.Convert([]byte("data"), FormatUnknown, FormatPDF)
	require.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestEmptyInput(t *testing.T) {
	c := NewConverter(PDFConfig{})
	_, err := c.Convert(nil, FormatText, FormatPDF)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestConvertedFilename(t *testing.T) {
	assert.Equal(t, "report.pdf", ConvertedFilename("report.txt", FormatPDF))
	assert.Equal(t, "report.txt", ConvertedFilename("report.pdf", FormatText))
	assert.Equal(t, "notes.pdf", ConvertedFilename("notes", FormatPDF))
	assert.Equal(t, "raw.bin", ConvertedFilename("raw.bin", FormatUnknown))
}
