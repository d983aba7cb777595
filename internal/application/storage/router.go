// Package storage decides which backend persists an artifact, falls back from
// the remote file server to the object store, and moves folders of artifacts
// on the active backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/remotefile"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// StoreOptions controls what happens after a successful upload
type StoreOptions struct {
	Print       bool
	PrinterName string
}

// StoreResult is the outcome of Store. PrintErr is set when printing was
// requested and failed; the locator is valid regardless.
type StoreResult struct {
	Locator  document.StorageLocator
	Fallback bool
	// RemoteErr is the remote failure that triggered the fallback
	RemoteErr error
	Printed   bool
	PrintErr  error
}

// FallbackError is returned when the remote upload and the object store
// fallback both failed. It unwraps to the remote error only, so the remote
// error kind classifies the failure.
type FallbackError struct {
	Remote   error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%v; object store fallback also failed: %v", e.Remote, e.Fallback)
}

func (e *FallbackError) Unwrap() error {
	return e.Remote
}

// Router is the single entry point for persisting and reading artifacts.
type Router struct {
	backends Backends
	printer  Printer
	flags    FlagSource
	metrics  *telemetry.StorageMetrics
	logger   *zap.Logger
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithPrinter sets the print collaborator
func WithPrinter(p Printer) RouterOption {
	return func(r *Router) {
		r.printer = p
	}
}

// WithMetrics records storage metrics
func WithMetrics(m *telemetry.StorageMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithLogger sets a custom logger
func WithLogger(l *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates a Router. flags is consulted on every operation.
func NewRouter(backends Backends, flags FlagSource, opts ...RouterOption) *Router {
	r := &Router{
		backends: backends,
		flags:    flags,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store persists req on the remote file server, falling back to the object
// store when enabled, and hands the result to the printer when requested.
func (r *Router) Store(ctx context.Context, req document.UploadRequest, opts StoreOptions) (*StoreResult, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	flags := r.flags()
	log := logger.L(ctx, r.logger).With(zap.String("path", req.RelativePath))

	ctx, span := telemetry.StartServiceSpan(ctx, "storage", "store",
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, req.RelativePath),
		telemetry.WithAttribute(telemetry.SpanAttrDocumentKind, string(req.DocumentKind)),
		telemetry.WithAttribute(telemetry.SpanAttrSizeBytes, len(req.Payload)),
	)
	defer span.End()

	var result *StoreResult
	switch {
	case flags.RemoteEnabled && r.backends.remoteReady():
		result, err = r.storeRemoteFirst(ctx, req, flags.FallbackEnabled && flags.ObjectStoreEnabled)
	case flags.ObjectStoreEnabled && r.backends.Objects != nil:
		var loc document.StorageLocator
		loc, err = r.uploadObject(ctx, req)
		result = &StoreResult{Locator: loc}
	default:
		err = document.NewError(document.ErrKindBackendNotActive, "store", "no storage backend is enabled", nil)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failed to store document", zap.Error(err))
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrBackend, string(result.Locator.Backend),
		telemetry.SpanAttrFallback, result.Fallback,
	)
	log.Info("Document stored",
		zap.String("backend", string(result.Locator.Backend)),
		zap.Bool("fallback", result.Fallback),
	)

	if opts.Print {
		r.print(ctx, result, opts.PrinterName)
	}
	telemetry.SetOK(span)
	return result, nil
}

func (r *Router) storeRemoteFirst(ctx context.Context, req document.UploadRequest, fallback bool) (*StoreResult, error) {
	loc, remoteErr := r.uploadRemote(ctx, req)
	if remoteErr == nil {
		return &StoreResult{Locator: loc}, nil
	}

	if !fallback || r.backends.Objects == nil {
		return nil, fmt.Errorf("store %s on remote file server: %w", req.RelativePath, remoteErr)
	}

	r.metrics.RecordFallback(ctx, "upload")
	telemetry.AddEvent(trace.SpanFromContext(ctx), "storage.fallback",
		"error_kind", string(document.KindOf(remoteErr)),
	)
	logger.L(ctx, r.logger).Warn("Remote upload failed, falling back to object store",
		zap.String("path", req.RelativePath),
		zap.String("error_kind", string(document.KindOf(remoteErr))),
		zap.Error(remoteErr),
	)

	loc, fbErr := r.uploadObject(ctx, req)
	if fbErr != nil {
		return nil, &FallbackError{
			Remote:   fmt.Errorf("store %s on remote file server: %w", req.RelativePath, remoteErr),
			Fallback: fbErr,
		}
	}
	return &StoreResult{Locator: loc, Fallback: true, RemoteErr: remoteErr}, nil
}

func (r *Router) uploadRemote(ctx context.Context, req document.UploadRequest) (document.StorageLocator, error) {
	start := time.Now()
	var loc document.StorageLocator
	err := r.withSession(ctx, func(s *document.Session) error {
		var err error
		loc, err = r.backends.Remote.Upload(ctx, s, req)
		return err
	})
	r.metrics.RecordOperation(ctx, string(document.BackendRemoteFile), "upload", time.Since(start), string(document.KindOf(err)))
	return loc, err
}

func (r *Router) uploadObject(ctx context.Context, req document.UploadRequest) (document.StorageLocator, error) {
	start := time.Now()
	loc, err := r.backends.Objects.Upload(ctx, req)
	r.metrics.RecordOperation(ctx, string(document.BackendObjectStore), "upload", time.Since(start), string(document.KindOf(err)))
	return loc, err
}

// withSession runs fn with a session that is released exactly once, even
// when fn panics. A failed operation drops the cached session so the next
// caller logs in afresh.
func (r *Router) withSession(ctx context.Context, fn func(s *document.Session) error) (err error) {
	s, err := r.backends.Sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	completed := false
	defer func() {
		r.backends.Sessions.Release(ctx, s, remotefile.ReleaseOptions{ClearCache: !completed || err != nil})
	}()
	err = fn(s)
	completed = true
	return err
}

func (r *Router) print(ctx context.Context, result *StoreResult, printerName string) {
	log := logger.L(ctx, r.logger)
	if r.printer == nil {
		result.PrintErr = document.NewPrintError("print", "no print service configured", nil)
		log.Warn("Print requested without a print service")
		return
	}

	err := r.printer.Print(ctx, document.PrintJob{Locator: result.Locator, PrinterName: printerName})
	if err != nil {
		if !errors.Is(err, document.ErrPrint) {
			err = document.NewPrintError("print", "print handoff failed", err)
		}
		result.PrintErr = err
		log.Warn("Print handoff failed, document stays stored",
			zap.String("locator", result.Locator.String()),
			zap.Error(err),
		)
		return
	}
	result.Printed = true
}

// Fetch reads the artifact named by any accepted locator form through the
// backend that owns it.
func (r *Router) Fetch(ctx context.Context, locator string) ([]byte, error) {
	loc, err := document.ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	flags := r.flags()

	ctx, span := telemetry.StartServiceSpan(ctx, "storage", "fetch",
		telemetry.WithAttribute(telemetry.SpanAttrBackend, string(loc.Backend)),
	)
	defer span.End()

	start := time.Now()
	var data []byte
	switch loc.Backend {
	case document.BackendRemoteFile:
		if !flags.RemoteEnabled || !r.backends.remoteReady() {
			return nil, document.NewError(document.ErrKindBackendNotActive, "fetch", "remote file server is not enabled", nil)
		}
		err = r.withSession(ctx, func(s *document.Session) error {
			var err error
			data, err = r.backends.Remote.Download(ctx, s, loc.RelativePath)
			return err
		})
	default:
		if !flags.ObjectStoreEnabled || r.backends.Objects == nil {
			return nil, document.NewError(document.ErrKindBackendNotActive, "fetch", "object store is not enabled", nil)
		}
		var rel string
		rel, err = r.objectRelative(loc)
		if err == nil {
			data, err = r.backends.Objects.Download(ctx, rel)
		}
	}
	r.metrics.RecordOperation(ctx, string(loc.Backend), "download", time.Since(start), string(document.KindOf(err)))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrSizeBytes, len(data))
	return data, nil
}

// objectRelative maps an object locator of the configured bucket to a
// relative path.
func (r *Router) objectRelative(loc document.StorageLocator) (string, error) {
	if loc.Bucket != "" && loc.Bucket != r.backends.Objects.Bucket() {
		return "", document.NewInvalidLocatorError("object locator",
			fmt.Sprintf("bucket %q is not the configured bucket %q", loc.Bucket, r.backends.Objects.Bucket()))
	}
	return document.CleanRelativePath(r.backends.Objects.Relative(loc.ObjectKey()))
}

// Resolve returns the backend address of a locator: the full path on the
// remote file server, or the object key in the bucket.
func (r *Router) Resolve(loc document.StorageLocator) string {
	switch loc.Backend {
	case document.BackendRemoteFile:
		if r.backends.Remote != nil {
			return r.backends.Remote.FullPath(loc.RelativePath)
		}
	case document.BackendObjectStore:
		if r.backends.Objects != nil {
			return r.backends.Objects.Key(loc.RelativePath)
		}
	}
	return loc.RelativePath
}

// List returns the entries of dir on the active backend.
func (r *Router) List(ctx context.Context, dir string) ([]document.FileEntry, error) {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir != "" {
		cleaned, err := document.CleanRelativePath(dir)
		if err != nil {
			return nil, err
		}
		dir = cleaned
	}

	backend, err := activeBackend(r.flags(), r.backends)
	if err != nil {
		return nil, err
	}

	if backend == document.BackendRemoteFile {
		var entries []document.FileEntry
		err := r.withSession(ctx, func(s *document.Session) error {
			var err error
			entries, err = r.backends.Remote.List(ctx, s, dir)
			return err
		})
		return entries, err
	}

	prefix := dir
	if prefix != "" {
		prefix += "/"
	}
	keys, err := r.backends.Objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return entriesFromKeys(prefix, keys), nil
}

// entriesFromKeys folds a flat key listing into the direct children of prefix.
func entriesFromKeys(prefix string, keys []string) []document.FileEntry {
	var entries []document.FileEntry
	seenDirs := make(map[string]bool)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if name, _, nested := strings.Cut(rest, "/"); nested {
			if !seenDirs[name] {
				seenDirs[name] = true
				entries = append(entries, document.FileEntry{
					Name:         name,
					RelativePath: path.Join(prefix, name),
					IsDir:        true,
				})
			}
			continue
		}
		entries = append(entries, document.FileEntry{Name: rest, RelativePath: key})
	}
	return entries
}
