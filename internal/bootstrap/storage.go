// Package bootstrap assembles the storage stack shared by the server and the
// operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/application/storage"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/objectstore"
	"github.com/erp/docservice/internal/infrastructure/remotefile"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// Storage is the wired storage stack
type Storage struct {
	Router   *storage.Router
	Mover    *storage.FolderMover
	Sessions *remotefile.SessionManager // nil when the remote file server is not configured
	Objects  *objectstore.Store         // nil when no bucket is configured
	Remote   *remotefile.Client
}

// StorageOptions carries the optional collaborators of the storage router
type StorageOptions struct {
	Printer storage.Printer
	Metrics *telemetry.StorageMetrics
}

// NewStorage builds the backends enabled by cfg. A backend is constructed
// whenever it is configured, even when its flag is off, so that locators
// written while it was active can still be fetched.
func NewStorage(ctx context.Context, cfg *infraconfig.Config, opts StorageOptions, log *zap.Logger) (*Storage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Storage{}
	var backends storage.Backends

	if cfg.RemoteFile.BaseURL != "" {
		transport, err := remotefile.NewTransport(&cfg.RemoteFile, remotefile.WithLogger(log.Named("remotefile")))
		if err != nil {
			return nil, fmt.Errorf("remote file transport: %w", err)
		}
		s.Sessions = remotefile.NewSessionManager(transport, &cfg.RemoteFile)
		s.Remote = remotefile.NewClient(transport, &cfg.RemoteFile)
		backends.Sessions = s.Sessions
		backends.Remote = s.Remote
		log.Info("Remote file server configured",
			zap.String("base_path", cfg.RemoteFile.BasePath),
			zap.Bool("session_cache", cfg.RemoteFile.SessionCacheEnabled),
		)
	}

	if cfg.ObjectStore.Bucket != "" {
		store, err := objectstore.NewFromConfig(ctx, &cfg.ObjectStore, objectstore.WithLogger(log.Named("objectstore")))
		if err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
		s.Objects = store
		backends.Objects = store
		log.Info("Object store configured", zap.String("bucket", store.Bucket()))
	}

	routerOpts := []storage.RouterOption{storage.WithLogger(log.Named("storage"))}
	if opts.Printer != nil {
		routerOpts = append(routerOpts, storage.WithPrinter(opts.Printer))
	}
	if opts.Metrics != nil {
		routerOpts = append(routerOpts, storage.WithMetrics(opts.Metrics))
	}
	s.Router = storage.NewRouter(backends, storage.StaticFlags(cfg.Storage), routerOpts...)
	s.Mover = storage.NewFolderMover(s.Router)
	return s, nil
}

// Close logs out the cached remote session, if any
func (s *Storage) Close(ctx context.Context) {
	if s.Sessions != nil {
		s.Sessions.Close(ctx)
	}
}
