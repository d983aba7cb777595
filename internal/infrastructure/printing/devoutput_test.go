package printing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erp/docservice/internal/domain/document"
)

func TestDevOutput_Write(t *testing.T) {
	dir := t.TempDir()
	out, err := NewDevOutput(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	rel := "klanten/acme/2025/facturen/INV-001.pdf"
	require.NoError(t, out.Write(context.Background(), rel, "<h1>INV-001</h1>", []byte("%PDF-1.7")))

	pdf, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))

	html, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)+".html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>INV-001</h1>", string(html))
}

func TestDevOutput_RejectsEscapingPaths(t *testing.T) {
	out, err := NewDevOutput(t.TempDir(), nil)
	require.NoError(t, err)

	for _, rel := range []string{"../outside.pdf", "a/../../b.pdf", ""} {
		err := out.Write(context.Background(), rel, "x", []byte("x"))
		assert.ErrorIs(t, err, document.ErrInvalidInput, rel)
	}
}

func TestDevOutput_CancelledContext(t *testing.T) {
	out, err := NewDevOutput(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, out.Write(ctx, "a.pdf", "x", []byte("x")), context.Canceled)
}

func TestDevOutput_CleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	out, err := NewDevOutput(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, out.Write(context.Background(), "old/a.pdf", "a", []byte("a")))
	require.NoError(t, out.Write(context.Background(), "new/b.pdf", "b", []byte("b")))

	past := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"old/a.pdf", "old/a.pdf.html"} {
		require.NoError(t, os.Chtimes(filepath.Join(dir, name), past, past))
	}

	deleted, err := out.CleanupOlderThan(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NoFileExists(t, filepath.Join(dir, "old", "a.pdf"))
	assert.FileExists(t, filepath.Join(dir, "new", "b.pdf"))
}
