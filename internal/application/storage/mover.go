package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

// MoveReport describes a completed folder move
type MoveReport struct {
	Backend     document.BackendKind `json:"backend"`
	Source      string               `json:"source"`
	Destination string               `json:"destination"`
	// Objects is the number of objects moved; a remote move counts as one
	Objects int `json:"objects"`
}

// FolderMover relocates every artifact under one logical path to another on
// the active backend. Object store moves copy then delete each object and
// never roll back.
type FolderMover struct {
	router *Router
}

// NewFolderMover creates a FolderMover sharing the router's backends, flags
// and instrumentation.
func NewFolderMover(router *Router) *FolderMover {
	return &FolderMover{router: router}
}

// MoveFolder moves oldPath to newPath. Both may be relative paths or locator
// strings of the active backend.
func (m *FolderMover) MoveFolder(ctx context.Context, oldPath, newPath string) (*MoveReport, error) {
	const op = "move folder"
	r := m.router

	backend, err := activeBackend(r.flags(), r.backends)
	if err != nil {
		return nil, err
	}

	src, err := m.relativeFor(backend, oldPath)
	if err != nil {
		return nil, err
	}
	dst, err := m.relativeFor(backend, newPath)
	if err != nil {
		return nil, err
	}
	if err := (document.MoveRequest{SourcePath: src, DestinationPath: dst}).Validate(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(dst+"/", src+"/") {
		return nil, document.NewError(document.ErrKindInvalidInput, op, "destination is inside the source folder", nil)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "storage", "move_folder",
		telemetry.WithAttribute(telemetry.SpanAttrBackend, string(backend)),
		telemetry.WithAttribute("source", src),
		telemetry.WithAttribute("destination", dst),
	)
	defer span.End()

	log := logger.L(ctx, r.logger).With(
		zap.String("backend", string(backend)),
		zap.String("from", src),
		zap.String("to", dst),
	)

	start := time.Now()
	report := &MoveReport{Backend: backend, Source: src, Destination: dst}
	if backend == document.BackendRemoteFile {
		err = r.withSession(ctx, func(s *document.Session) error {
			return r.backends.Remote.Move(ctx, s, src, dst)
		})
		if err == nil {
			report.Objects = 1
		}
	} else {
		report.Objects, err = m.moveObjects(ctx, src, dst)
	}
	r.metrics.RecordOperation(ctx, string(backend), "move", time.Since(start), string(document.KindOf(err)))

	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Folder move failed", zap.Error(err))
		return nil, err
	}
	telemetry.SetAttribute(span, telemetry.SpanAttrObjectCount, report.Objects)
	log.Info("Folder moved", zap.Int("objects", report.Objects))
	return report, nil
}

// moveObjects copies and deletes every object under src/. On failure the
// error lists the failed object and every object after it.
func (m *FolderMover) moveObjects(ctx context.Context, src, dst string) (int, error) {
	const op = "move folder"
	objects := m.router.backends.Objects

	srcPrefix := src + "/"
	dstPrefix := dst + "/"

	paths, err := objects.List(ctx, srcPrefix)
	if err != nil {
		return 0, document.NewMoveError(op, "list source objects", nil, err)
	}
	if len(paths) == 0 {
		return 0, document.NewMoveError(op, "source does not exist: "+src, nil, nil)
	}

	for i, p := range paths {
		target := dstPrefix + strings.TrimPrefix(p, srcPrefix)
		if err := objects.Copy(ctx, p, target); err != nil {
			return i, document.NewMoveError(op, "copy "+p, remaining(paths, i), err)
		}
		if err := objects.Delete(ctx, p); err != nil {
			return i, document.NewMoveError(op, "delete "+p+" after copy", remaining(paths, i), err)
		}
	}
	return len(paths), nil
}

func remaining(paths []string, from int) []string {
	return append([]string(nil), paths[from:]...)
}

// relativeFor turns a relative path or locator into a path on backend.
// Object locators must name the configured bucket.
func (m *FolderMover) relativeFor(backend document.BackendKind, raw string) (string, error) {
	const op = "move folder"
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		rel, err := document.CleanRelativePath(raw)
		return strings.TrimSuffix(rel, "/"), err
	}

	loc, err := document.ParseLocator(raw)
	if err != nil {
		return "", err
	}
	if loc.Backend != backend {
		return "", document.NewError(document.ErrKindUnsupportedMove, op,
			fmt.Sprintf("locator %s belongs to %s but the active backend is %s", raw, loc.Backend, backend), nil)
	}
	if backend == document.BackendRemoteFile {
		return strings.TrimSuffix(loc.RelativePath, "/"), nil
	}

	if bucket := m.router.backends.Objects.Bucket(); loc.Bucket != bucket {
		return "", document.NewError(document.ErrKindUnsupportedMove, op,
			fmt.Sprintf("cross-bucket move: %q is not the configured bucket %q", loc.Bucket, bucket), nil)
	}
	rel, err := m.router.objectRelative(loc)
	return strings.TrimSuffix(rel, "/"), err
}
