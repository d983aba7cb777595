package printing

import (
	"context"

	"github.com/erp/docservice/internal/domain/document"
)

// PDFRenderer converts finished HTML into PDF bytes
type PDFRenderer interface {
	// Render lays out html on the page described by opts
	Render(ctx context.Context, html string, opts document.PageOptions) ([]byte, error)
	// Close releases any resources held by the renderer
	Close() error
}

func renderError(message string, cause error) error {
	return document.NewError(document.ErrKindRender, "render", message, cause)
}
