// Package document runs the document pipelines behind the command endpoint:
// render, store, print, email, folder moves and listings.
package document

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/domain/document"
	"github.com/erp/docservice/internal/domain/shared"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// Renderer turns HTML into PDF bytes
type Renderer interface {
	Render(ctx context.Context, html string, opts document.PageOptions) ([]byte, error)
}

// Storer persists and reads artifacts
type Storer interface {
	Store(ctx context.Context, req document.UploadRequest, opts storage.StoreOptions) (*storage.StoreResult, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
	List(ctx context.Context, dir string) ([]document.FileEntry, error)
}

// Mover relocates folders on the active backend
type Mover interface {
	MoveFolder(ctx context.Context, oldPath, newPath string) (*storage.MoveReport, error)
}

// Mailer sends transactional email
type Mailer interface {
	Send(ctx context.Context, msg document.Email) error
}

// DevWriter keeps a local copy of rendered output
type DevWriter interface {
	Write(ctx context.Context, relativePath, html string, pdf []byte) error
}

// Service coordinates the collaborators of each document pipeline
type Service struct {
	renderer Renderer
	storer   Storer
	mover    Mover
	mailer   Mailer
	dev      DevWriter
	metrics  *telemetry.StorageMetrics
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithMailer enables SendEmail
func WithMailer(m Mailer) Option {
	return func(s *Service) {
		s.mailer = m
	}
}

// WithDevWriter enables the development side channel
func WithDevWriter(w DevWriter) Option {
	return func(s *Service) {
		s.dev = w
	}
}

// WithMetrics records per-stage outcomes
func WithMetrics(m *telemetry.StorageMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets a custom logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a document Service
func NewService(renderer Renderer, storer Storer, mover Mover, opts ...Option) *Service {
	s := &Service{
		renderer: renderer,
		storer:   storer,
		mover:    mover,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate renders req.HTML, stores the PDF and prints it when asked. A
// print failure is reported in the response, not as an error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*DocumentResponse, error) {
	kind, ok := document.ParseKind(req.Kind)
	if !ok {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "unknown document kind: "+req.Kind)
	}
	rel, err := targetPath(kind, req.Target)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, kind, rel, req.HTML, req.Page.apply(document.DefaultPageOptions(kind)), storage.StoreOptions{
		Print:       req.Print,
		PrinterName: req.PrinterName,
	})
}

// GenerateStickers renders and stores the address label and the shipping
// label concurrently. Either failure fails the request; a label already
// stored stays stored.
func (s *Service) GenerateStickers(ctx context.Context, req StickerRequest) (*StickerResponse, error) {
	addressPath, err := document.BuildPath(req.Scope, req.Year, document.KindAddressLabel, req.Filename)
	if err != nil {
		return nil, err
	}
	shippingPath, err := document.BuildPath(req.Scope, req.Year, document.KindShippingLabel, req.Filename)
	if err != nil {
		return nil, err
	}
	opts := storage.StoreOptions{Print: req.Print, PrinterName: req.PrinterName}

	var resp StickerResponse
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.generate(gctx, document.KindAddressLabel, addressPath, req.AddressHTML,
			document.DefaultPageOptions(document.KindAddressLabel), opts)
		if err != nil {
			return err
		}
		resp.AddressLabel = *out
		return nil
	})
	g.Go(func() error {
		out, err := s.generate(gctx, document.KindShippingLabel, shippingPath, req.ShippingHTML,
			document.DefaultPageOptions(document.KindShippingLabel), opts)
		if err != nil {
			return err
		}
		resp.ShippingLabel = *out
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Service) generate(ctx context.Context, kind document.Kind, rel, html string, page document.PageOptions, opts storage.StoreOptions) (*DocumentResponse, error) {
	log := logger.L(ctx, s.logger).With(zap.String("kind", string(kind)), zap.String("path", rel))

	pdf, err := s.renderer.Render(ctx, html, page)
	s.metrics.RecordStage(ctx, string(document.StageRender), err == nil)
	if err != nil {
		return nil, document.AtStage(document.StageRender, err)
	}

	if s.dev != nil {
		if err := s.dev.Write(ctx, rel, html, pdf); err != nil {
			log.Warn("Failed to write development copy", zap.Error(err))
		}
	}

	result, err := s.storer.Store(ctx, document.UploadRequest{
		Payload:      pdf,
		RelativePath: rel,
		ContentType:  document.ContentTypePDF,
		DocumentKind: kind,
	}, opts)
	s.metrics.RecordStage(ctx, string(document.StageStore), err == nil)
	if err != nil {
		return nil, document.AtStage(document.StageStore, err)
	}
	if opts.Print {
		s.metrics.RecordStage(ctx, string(document.StagePrint), result.PrintErr == nil)
	}

	resp := toDocumentResponse(result, opts.Print)
	log.Info("Document generated",
		zap.String("locator", resp.Locator),
		zap.Bool("fallback", resp.Fallback),
	)
	return &resp, nil
}

// SendEmail sends a message, attaching the stored document named by
// req.Attachment when present.
func (s *Service) SendEmail(ctx context.Context, req SendEmailRequest) (*EmailResponse, error) {
	if s.mailer == nil {
		return nil, document.AtStage(document.StageEmail,
			document.NewEmailError("send email", "no email service configured", nil))
	}

	msg := document.Email{
		To:       req.To,
		From:     req.From,
		FromName: req.FromName,
		Subject:  req.Subject,
		Text:     req.Message,
	}
	if req.Attachment != "" {
		loc, err := document.ParseLocator(req.Attachment)
		if err != nil {
			return nil, document.AtStage(document.StageFetch, err)
		}
		content, err := s.storer.Fetch(ctx, req.Attachment)
		s.metrics.RecordStage(ctx, string(document.StageFetch), err == nil)
		if err != nil {
			return nil, document.AtStage(document.StageFetch, err)
		}
		msg.Attachment = &document.Attachment{
			Filename: path.Base(strings.TrimSuffix(loc.RelativePath, "/")),
			Content:  content,
		}
	}

	err := s.mailer.Send(ctx, msg)
	s.metrics.RecordStage(ctx, string(document.StageEmail), err == nil)
	if err != nil {
		return nil, document.AtStage(document.StageEmail, err)
	}
	return &EmailResponse{To: req.To, Attachment: req.Attachment}, nil
}

// MoveFolder relocates a folder of stored documents
func (s *Service) MoveFolder(ctx context.Context, req MoveFolderRequest) (*storage.MoveReport, error) {
	report, err := s.mover.MoveFolder(ctx, req.OldURL, req.NewURL)
	s.metrics.RecordStage(ctx, string(document.StageMove), err == nil)
	if err != nil {
		return nil, document.AtStage(document.StageMove, err)
	}
	return report, nil
}

// ListFiles lists one directory on the active backend
func (s *Service) ListFiles(ctx context.Context, dir string) (*ListFilesResponse, error) {
	entries, err := s.storer.List(ctx, dir)
	if err != nil {
		return nil, document.AtStage(document.StageFetch, err)
	}
	if entries == nil {
		entries = []document.FileEntry{}
	}
	return &ListFilesResponse{Path: strings.Trim(dir, "/"), Entries: entries}, nil
}

func targetPath(kind document.Kind, t Target) (string, error) {
	if t.Path != "" {
		return document.CleanRelativePath(t.Path)
	}
	if t.Scope == "" || t.Filename == "" || t.Year == 0 {
		return "", shared.NewDomainError(shared.CodeInvalidInput, "either path or scope, year and filename are required")
	}
	return document.BuildPath(t.Scope, t.Year, kind, t.Filename)
}
