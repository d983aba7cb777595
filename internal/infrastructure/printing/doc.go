// Package printing turns finished HTML into PDF and hands stored documents
// to the print service.
//
// This package contains:
// - PDFRenderer interface and the chromedp implementation (print media
//   emulation, named or custom page sizes, header and footer templates)
// - Client for the print service, which receives a storage locator
// - DevOutput, a local side channel writing {rel}.html and {rel} for inspection
//
// Example usage:
//
//	renderer := NewChromedpRenderer(ChromedpConfigFrom(cfg.Renderer, log))
//	defer renderer.Close()
//
//	pdf, err := renderer.Render(ctx, "<h1>INV-001</h1>", document.DefaultPageOptions(document.KindInvoice))
//	if err != nil {
//	    return err
//	}
package printing
