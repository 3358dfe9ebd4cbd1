package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"inkvault/api/internal/content"
)

// PDFRenderer turns a standalone HTML page into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Service provides note export functionality
type Service struct {
	pdf PDFRenderer
}

// NewService creates a new export service. pdf may be nil, in which case PDF
// exports fail with ErrPDFDependencyMissing.
func NewService(pdf PDFRenderer) *Service {
	return &Service{pdf: pdf}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if err := content.Validate(req.Content); err != nil {
		return nil, fmt.Errorf("export content: %w", err)
	}

	page, err := RenderNoteHTML(TemplateData{
		Title:   req.Title,
		Author:  req.Author,
		Version: req.Version,
		// content.Render escapes every text run.
		ContentHTML: template.HTML(content.Render(req.Content)),
		UpdatedAt:   req.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		if s.pdf == nil {
			return nil, ErrPDFDependencyMissing
		}
		data, err := s.pdf.RenderPDF(ctx, page)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(req.Title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "note"
	}
	return result
}
