package printing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

const (
	defaultChromeTimeout = 30 * time.Second
	// headerFooterMinMarginMM keeps Chrome's header and footer templates
	// clear of the body.
	headerFooterMinMarginMM = 10
)

// ChromedpConfig contains configuration for the chromedp renderer
type ChromedpConfig struct {
	// Timeout bounds one render
	Timeout time.Duration
	// RemoteURL is a DevTools endpoint of a running Chrome. Empty launches a
	// local headless browser.
	RemoteURL string
	// NoSandbox runs Chrome without sandbox (required for Docker/root)
	NoSandbox bool
	Logger    *zap.Logger
}

// ChromedpConfigFrom maps service configuration to renderer configuration
func ChromedpConfigFrom(cfg infraconfig.RendererConfig, logger *zap.Logger) *ChromedpConfig {
	return &ChromedpConfig{
		Timeout:   cfg.Timeout,
		RemoteURL: cfg.RemoteURL,
		NoSandbox: cfg.NoSandbox,
		Logger:    logger,
	}
}

// ChromedpRenderer renders HTML to PDF using Chrome DevTools Protocol.
// Pages are always laid out with the print media type.
type ChromedpRenderer struct {
	config      *ChromedpConfig
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromedpRenderer creates a renderer sharing one browser allocator
func NewChromedpRenderer(config *ChromedpConfig) *ChromedpRenderer {
	if config == nil {
		config = &ChromedpConfig{}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultChromeTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &ChromedpRenderer{config: config, logger: logger}
	if config.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), config.RemoteURL)
	} else {
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
	}
	return r
}

func (r *ChromedpRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if r.config.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// Render converts html to PDF
func (r *ChromedpRenderer) Render(ctx context.Context, html string, opts document.PageOptions) ([]byte, error) {
	if strings.TrimSpace(html) == "" {
		return nil, document.NewError(document.ErrKindInvalidInput, "render", "HTML content is empty", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "renderer", "render",
		telemetry.WithAttribute("page.size", string(opts.PaperSize)),
	)
	defer span.End()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	// The tab inherits the browser allocator but is cancelled with ctx.
	tabCtx, tabCancel := chromedp.NewContext(r.allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	params := buildPrintParams(opts)
	content := wrapHTML(html)

	var pdf []byte
	err := chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		emulation.SetEmulatedMedia().WithMedia("print"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, content).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := params.command().Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, document.NewTimeoutError("render", fmt.Sprintf("PDF rendering timed out after %v", r.config.Timeout), err)
		}
		r.logger.Error("chromedp rendering failed", zap.Error(err))
		return nil, renderError("chromedp execution failed", err)
	}
	if len(pdf) == 0 {
		return nil, renderError("generated PDF is empty", nil)
	}

	r.logger.Debug("PDF rendered",
		zap.Int("bytes", len(pdf)),
		zap.String("paper", string(opts.PaperSize)),
		zap.Duration("duration", time.Since(start)))
	return pdf, nil
}

// printParams are PrintToPDF arguments in inches
type printParams struct {
	paperWidth          float64
	paperHeight         float64
	marginTop           float64
	marginRight         float64
	marginBottom        float64
	marginLeft          float64
	landscape           bool
	displayHeaderFooter bool
	headerTemplate      string
	footerTemplate      string
}

func buildPrintParams(opts document.PageOptions) printParams {
	width, height := opts.Size()
	p := printParams{
		paperWidth:   mmToInches(width),
		paperHeight:  mmToInches(height),
		marginTop:    mmToInches(opts.Margins.Top),
		marginRight:  mmToInches(opts.Margins.Right),
		marginBottom: mmToInches(opts.Margins.Bottom),
		marginLeft:   mmToInches(opts.Margins.Left),
		landscape:    opts.Landscape,
	}

	if opts.HeaderHTML != "" || opts.FooterHTML != "" {
		p.displayHeaderFooter = true
		// Chrome prints its default date/title header for an empty template.
		p.headerTemplate = orEmptySpan(opts.HeaderHTML)
		p.footerTemplate = orEmptySpan(opts.FooterHTML)
		if opts.HeaderHTML != "" {
			p.marginTop = max(p.marginTop, mmToInches(headerFooterMinMarginMM))
		}
		if opts.FooterHTML != "" {
			p.marginBottom = max(p.marginBottom, mmToInches(headerFooterMinMarginMM))
		}
	}
	return p
}

func (p printParams) command() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPreferCSSPageSize(false).
		WithPaperWidth(p.paperWidth).
		WithPaperHeight(p.paperHeight).
		WithMarginTop(p.marginTop).
		WithMarginRight(p.marginRight).
		WithMarginBottom(p.marginBottom).
		WithMarginLeft(p.marginLeft).
		WithLandscape(p.landscape).
		WithDisplayHeaderFooter(p.displayHeaderFooter).
		WithHeaderTemplate(p.headerTemplate).
		WithFooterTemplate(p.footerTemplate)
}

func orEmptySpan(html string) string {
	if html == "" {
		return "<span></span>"
	}
	return html
}

// wrapHTML completes a fragment into a UTF-8 document
func wrapHTML(html string) string {
	lower := strings.ToLower(html)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return html
	}
	var buf bytes.Buffer
	buf.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8"></head><body>`)
	buf.WriteString(html)
	buf.WriteString("</body></html>")
	return buf.String()
}

// Close stops the browser allocator
func (r *ChromedpRenderer) Close() error {
	if r.allocCancel != nil {
		r.allocCancel()
	}
	return nil
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}

var _ PDFRenderer = (*ChromedpRenderer)(nil)
