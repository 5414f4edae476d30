// Package parser extracts page text and page screenshots from uploaded
// PDFs using an external parsing service.
package parser

import (
	"context"
	"errors"
	"image"
)

// Common errors.
var (
	// ErrParseFailed indicates the parsing service reported a failed job.
	ErrParseFailed = errors.New("document parsing failed")

	// ErrEmptyDocument indicates parsing produced no pages.
	ErrEmptyDocument = errors.New("document produced no pages")
)

// Page is one parsed PDF page: its markdown text and its rendered
// screenshot.
type Page struct {
	Number int
	Text   string
	Image  image.Image
}

// DocumentParser turns a PDF file into parsed pages.
type DocumentParser interface {
	Parse(ctx context.Context, pdfPath string) ([]Page, error)
}
