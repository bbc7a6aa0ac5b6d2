package graph

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxDocumentSize is the largest upload accepted by the loader (10MB)
const MaxDocumentSize = 10 * 1024 * 1024

// Document formats
const (
	FormatPDF      = "PDF"
	FormatDOCX     = "DOCX"
	FormatText     = "TEXT"
	FormatMarkdown = "MARKDOWN"
	FormatHTML     = "HTML"
)

// SupportedExtensions lists the file extensions accepted for upload, mapped to their format
var SupportedExtensions = map[string]string{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".txt":  FormatText,
	".md":   FormatMarkdown,
	".html": FormatHTML,
	".htm":  FormatHTML,
}

// FormatOf returns the document format for a filename, or "" when unsupported.
func FormatOf(filename string) string {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Preview returns at most maxChars characters of text, marking truncation with "...".
func Preview(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + "..."
}

// IsBlank reports whether the document has no usable text.
func (d *Document) IsBlank() bool {
	return d == nil || strings.TrimSpace(d.Content) == ""
}
