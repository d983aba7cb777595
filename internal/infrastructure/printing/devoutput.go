package printing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
)

// DevOutput writes a local copy of every rendered document: the source HTML
// as {rel}.html and the PDF as {rel}. It mirrors the persisted layout but is
// never read back.
type DevOutput struct {
	baseDir string
	logger  *zap.Logger
}

// NewDevOutput creates the output directory if needed
func NewDevOutput(baseDir string, logger *zap.Logger) (*DevOutput, error) {
	if baseDir == "" {
		baseDir = "./output"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, document.NewError(document.ErrKindInvalidInput, "dev output", "create directory "+baseDir, err)
	}
	return &DevOutput{baseDir: baseDir, logger: logger}, nil
}

// Write stores html and pdf under relativePath
func (d *DevOutput) Write(ctx context.Context, relativePath, html string, pdf []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	full, err := d.resolve(relativePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(full+".html", []byte(html), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(full, pdf, 0o644); err != nil {
		return err
	}

	d.logger.Debug("Wrote development copy", zap.String("path", full), zap.Int("size", len(pdf)))
	return nil
}

// resolve maps a relative path under baseDir, refusing anything that would
// land outside it.
func (d *DevOutput) resolve(relativePath string) (string, error) {
	rel, err := document.CleanRelativePath(relativePath)
	if err != nil {
		return "", err
	}
	full := filepath.Join(d.baseDir, filepath.FromSlash(rel))

	absBase, err := filepath.Abs(d.baseDir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		d.logger.Warn("path escape attempt blocked", zap.String("path", relativePath))
		return "", document.NewError(document.ErrKindInvalidInput, "dev output", "invalid path", nil)
	}
	return full, nil
}

// CleanupOlderThan removes development copies older than age
func (d *DevOutput) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	deleted := 0

	err := filepath.WalkDir(d.baseDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		if os.Remove(path) == nil {
			deleted++
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}

	d.logger.Info("Development output cleaned", zap.Int("deleted", deleted), zap.Duration("age", age))
	return deleted, nil
}
