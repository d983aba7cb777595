package storage

import (
	"context"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/remotefile"
)

// SessionProvider hands out remote file server sessions.
// Implemented by remotefile.SessionManager.
type SessionProvider interface {
	Acquire(ctx context.Context) (*document.Session, error)
	Release(ctx context.Context, s *document.Session, opts remotefile.ReleaseOptions)
}

// RemoteFileClient performs file operations with a caller-supplied session.
// Implemented by remotefile.Client.
type RemoteFileClient interface {
	Upload(ctx context.Context, s *document.Session, req document.UploadRequest) (document.StorageLocator, error)
	Download(ctx context.Context, s *document.Session, relativePath string) ([]byte, error)
	Move(ctx context.Context, s *document.Session, src, dst string) error
	List(ctx context.Context, s *document.Session, dir string) ([]document.FileEntry, error)
	FullPath(relativePath string) string
}

// ObjectStore is the S3-compatible backend. Paths are relative; the store
// applies its key prefix. Implemented by objectstore.Store.
type ObjectStore interface {
	Upload(ctx context.Context, req document.UploadRequest) (document.StorageLocator, error)
	Download(ctx context.Context, relativePath string) ([]byte, error)
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, relativePath string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Bucket() string
	Key(relativePath string) string
	Relative(key string) string
}

// Printer hands a stored artifact to the print service
type Printer interface {
	Print(ctx context.Context, job document.PrintJob) error
}

// Backends groups the storage collaborators shared by Router and FolderMover.
// Remote fields may be nil when no remote file server is configured; Objects
// may be nil when no bucket is configured.
type Backends struct {
	Sessions SessionProvider
	Remote   RemoteFileClient
	Objects  ObjectStore
}

func (b Backends) remoteReady() bool {
	return b.Sessions != nil && b.Remote != nil
}

// FlagSource returns the storage flags in effect for one operation.
type FlagSource func() infraconfig.StorageConfig

// StaticFlags returns a FlagSource that always yields cfg.
func StaticFlags(cfg infraconfig.StorageConfig) FlagSource {
	return func() infraconfig.StorageConfig {
		return cfg
	}
}

// activeBackend derives the backend used for operations that do not fall
// back, such as folder moves and listings.
func activeBackend(flags infraconfig.StorageConfig, b Backends) (document.BackendKind, error) {
	switch {
	case flags.RemoteEnabled && b.remoteReady():
		return document.BackendRemoteFile, nil
	case flags.ObjectStoreEnabled && b.Objects != nil:
		return document.BackendObjectStore, nil
	}
	return "", document.NewError(document.ErrKindBackendNotActive, "storage", "no storage backend is enabled", nil)
}
