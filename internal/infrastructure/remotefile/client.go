package remotefile

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
)

const (
	codeNoSuchFile = 408
	listPageSize   = 1000
)

// Client performs FileStation operations with a caller-supplied session.
// It never logs in on its own.
type Client struct {
	transport    *Transport
	basePath     string
	pollInterval time.Duration
}

// NewClient creates a FileStation client rooted at cfg.BasePath.
func NewClient(t *Transport, cfg *infraconfig.RemoteFileConfig) *Client {
	c := &Client{
		transport:    t,
		basePath:     "/" + strings.Trim(cfg.BasePath, "/"),
		pollInterval: cfg.MovePollInterval,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 500 * time.Millisecond
	}
	return c
}

// BasePath returns the share root every relative path is resolved against.
func (c *Client) BasePath() string {
	return c.basePath
}

// FullPath resolves a relative path against the base path.
func (c *Client) FullPath(relativePath string) string {
	return path.Join(c.basePath, strings.TrimLeft(relativePath, "/"))
}

func (c *Client) relative(full string) string {
	return strings.TrimPrefix(strings.TrimPrefix(full, c.basePath), "/")
}

// DownloadURL is the WebAPI address of a file, without session id.
func (c *Client) DownloadURL(relativePath string) string {
	q := url.Values{
		"api":     {apiDownload},
		"version": {"2"},
		"method":  {"download"},
		"path":    {c.FullPath(relativePath)},
		"mode":    {"download"},
	}
	return c.transport.entryURL + "?" + q.Encode()
}

func requireSession(op string, s *document.Session) error {
	if s == nil || s.Token == "" {
		return document.NewAuthError(op, "a session is required", nil)
	}
	return nil
}

// Upload writes the payload to {basePath}/{relativePath}, creating parent
// directories and overwriting an existing file. The multipart body is
// staged in a temporary file, which is removed on every path out.
func (c *Client) Upload(ctx context.Context, s *document.Session, req document.UploadRequest) (document.StorageLocator, error) {
	const op = "remote upload"
	if err := requireSession(op, s); err != nil {
		return document.StorageLocator{}, err
	}
	req, err := req.Normalize()
	if err != nil {
		return document.StorageLocator{}, err
	}

	dir := c.FullPath(req.Dir())
	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "upload",
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, req.RelativePath),
		telemetry.WithAttribute(telemetry.SpanAttrSizeBytes, len(req.Payload)),
	)
	defer span.End()

	staged, size, contentType, err := c.stage(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return document.StorageLocator{}, document.NewUploadError(op, "stage multipart body", err)
	}
	defer func() {
		_ = staged.Close()
		if rmErr := os.Remove(staged.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.L(ctx, c.transport.logger).Warn("Failed to remove staged upload", zap.Error(rmErr))
		}
	}()

	resp, err := c.transport.do(ctx, request{
		method:   http.MethodPost,
		endpoint: c.transport.entryURL,
		params: url.Values{
			"api":            {apiUpload},
			"version":        {"2"},
			"method":         {"upload"},
			"path":           {dir},
			"create_parents": {"true"},
			"overwrite":      {"true"},
		},
		sid:         s.Token,
		body:        staged,
		contentType: contentType,
		length:      size,
	})
	if err == nil {
		err = decode(resp, nil)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return document.StorageLocator{}, wrap(document.ErrKindUpload, op, "upload "+req.RelativePath, err)
	}

	logger.L(ctx, c.transport.logger).Info("Uploaded to remote file server",
		zap.String("path", path.Join(dir, req.FileName())),
		zap.Int("size", len(req.Payload)),
	)
	return document.NewRemoteLocator(req.RelativePath, c.DownloadURL(req.RelativePath), int64(len(req.Payload))), nil
}

// stage writes the multipart body to a temporary file and rewinds it.
func (c *Client) stage(req document.UploadRequest) (*os.File, int64, string, error) {
	f, err := os.CreateTemp(c.transport.tempDir, "docs-upload-*.multipart")
	if err != nil {
		return nil, 0, "", err
	}
	fail := func(err error) (*os.File, int64, string, error) {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, "", err
	}

	mw := multipart.NewWriter(f)
	part, err := mw.CreateFormFile("file", req.FileName())
	if err != nil {
		return fail(err)
	}
	if _, err := part.Write(req.Payload); err != nil {
		return fail(err)
	}
	if err := mw.Close(); err != nil {
		return fail(err)
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}
	return f, size, mw.FormDataContentType(), nil
}

// Download returns the file content. Empty bodies and WebAPI error
// envelopes in place of file bytes are failures.
func (c *Client) Download(ctx context.Context, s *document.Session, relativePath string) ([]byte, error) {
	const op = "remote download"
	if err := requireSession(op, s); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "download",
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, relativePath),
	)
	defer span.End()

	resp, err := c.transport.do(ctx, request{
		method:   http.MethodGet,
		endpoint: c.transport.entryURL,
		params: url.Values{
			"api":     {apiDownload},
			"version": {"2"},
			"method":  {"download"},
			"path":    {c.FullPath(relativePath)},
			"mode":    {"download"},
		},
		sid: s.Token,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, wrap(document.ErrKindDownload, op, "download "+relativePath, err)
	}
	if resp.status < 200 || resp.status > 299 {
		return nil, document.NewDownloadError(op, "download "+relativePath, &apiError{status: resp.status})
	}
	if isJSONBody(resp) {
		if err := decode(resp, nil); err != nil {
			return nil, document.NewDownloadError(op, "download "+relativePath, err)
		}
		return nil, document.NewDownloadError(op, "download "+relativePath+": server answered with JSON instead of file content", nil)
	}
	if len(resp.body) == 0 {
		return nil, document.NewDownloadError(op, "download "+relativePath+": empty file", nil)
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrSizeBytes, len(resp.body))
	return resp.body, nil
}

type taskData struct {
	TaskID string `json:"taskid"`
}

type moveStatus struct {
	Finished bool    `json:"finished"`
	Progress float64 `json:"progress"`
}

// Move relocates a file or folder with one server-side CopyMove task. The
// destination parent is created first; when the base name changes the
// moved entry is renamed afterwards.
func (c *Client) Move(ctx context.Context, s *document.Session, src, dst string) error {
	const op = "remote move"
	if err := requireSession(op, s); err != nil {
		return err
	}

	fullSrc := c.FullPath(src)
	fullDst := c.FullPath(dst)
	destParent := path.Dir(fullDst)

	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "move",
		telemetry.WithAttribute("source", fullSrc),
		telemetry.WithAttribute("destination", fullDst),
	)
	defer span.End()

	if err := c.createFolder(ctx, s, destParent); err != nil {
		telemetry.RecordError(span, err)
		return c.moveErr(op, "destination parent cannot be created: "+c.relative(destParent), src, err)
	}

	var task taskData
	err := c.call(ctx, s, url.Values{
		"api":              {apiCopyMove},
		"version":          {"3"},
		"method":           {"start"},
		"path":             {fullSrc},
		"dest_folder_path": {destParent},
		"remove_src":       {"true"},
	}, &task)
	if err != nil {
		telemetry.RecordError(span, err)
		return c.moveErr(op, "start move", src, err)
	}

	if task.TaskID != "" {
		if err := c.waitMove(ctx, s, task.TaskID); err != nil {
			telemetry.RecordError(span, err)
			return c.moveErr(op, "move task", src, err)
		}
	}

	if path.Base(fullDst) != path.Base(fullSrc) {
		err := c.call(ctx, s, url.Values{
			"api":     {apiRename},
			"version": {"2"},
			"method":  {"rename"},
			"path":    {path.Join(destParent, path.Base(fullSrc))},
			"name":    {path.Base(fullDst)},
		}, nil)
		if err != nil {
			telemetry.RecordError(span, err)
			return c.moveErr(op, "rename moved entry to "+path.Base(fullDst), src, err)
		}
	}

	logger.L(ctx, c.transport.logger).Info("Moved on remote file server",
		zap.String("from", fullSrc),
		zap.String("to", fullDst),
	)
	return nil
}

func (c *Client) moveErr(op, msg, src string, err error) error {
	if isTimeout(err) {
		return wrap(document.ErrKindMove, op, msg, err)
	}
	if apiCode(err) == codeNoSuchFile {
		msg = "source does not exist: " + src
	}
	return document.NewMoveError(op, msg, []string{src}, err)
}

func (c *Client) waitMove(ctx context.Context, s *document.Session, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.transport.maxDuration)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var st moveStatus
		err := c.call(ctx, s, url.Values{
			"api":     {apiCopyMove},
			"version": {"3"},
			"method":  {"status"},
			"taskid":  {taskID},
		}, &st)
		if err != nil {
			return err
		}
		if st.Finished {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) createFolder(ctx context.Context, s *document.Session, full string) error {
	if full == c.basePath || full == "/" {
		return nil
	}
	return c.call(ctx, s, url.Values{
		"api":          {apiCreateFolder},
		"version":      {"2"},
		"method":       {"create"},
		"folder_path":  {path.Dir(full)},
		"name":         {path.Base(full)},
		"force_parent": {"true"},
	}, nil)
}

type listData struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Files  []struct {
		Name       string `json:"name"`
		Path       string `json:"path"`
		IsDir      bool   `json:"isdir"`
		Additional struct {
			Size int64 `json:"size"`
			Time struct {
				Mtime int64 `json:"mtime"`
			} `json:"time"`
		} `json:"additional"`
	} `json:"files"`
}

// List returns every entry of dir, following offsets until the server's
// total is reached.
func (c *Client) List(ctx context.Context, s *document.Session, dir string) ([]document.FileEntry, error) {
	const op = "remote list"
	if err := requireSession(op, s); err != nil {
		return nil, err
	}

	full := c.FullPath(dir)
	ctx, span := telemetry.StartClientSpan(ctx, "dsm", "list",
		telemetry.WithAttribute(telemetry.SpanAttrRelativePath, dir),
	)
	defer span.End()

	var entries []document.FileEntry
	for offset := 0; ; {
		var page listData
		err := c.call(ctx, s, url.Values{
			"api":         {apiList},
			"version":     {"2"},
			"method":      {"list"},
			"folder_path": {full},
			"offset":      {strconv.Itoa(offset)},
			"limit":       {strconv.Itoa(listPageSize)},
			"additional":  {`["size","time"]`},
		}, &page)
		if err != nil {
			telemetry.RecordError(span, err)
			if apiCode(err) == codeNoSuchFile {
				return nil, document.NewDownloadError(op, "directory does not exist: "+dir, err)
			}
			return nil, wrap(document.ErrKindDownload, op, "list "+dir, err)
		}

		for _, f := range page.Files {
			e := document.FileEntry{
				Name:         f.Name,
				RelativePath: c.relative(f.Path),
				IsDir:        f.IsDir,
				Size:         f.Additional.Size,
			}
			if f.Additional.Time.Mtime > 0 {
				e.ModifiedAt = time.Unix(f.Additional.Time.Mtime, 0).UTC()
			}
			entries = append(entries, e)
		}

		offset += len(page.Files)
		if len(page.Files) == 0 || offset >= page.Total {
			break
		}
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrObjectCount, len(entries))
	return entries, nil
}

// call performs a GET against entry.cgi and decodes the envelope data.
func (c *Client) call(ctx context.Context, s *document.Session, params url.Values, into any) error {
	resp, err := c.transport.do(ctx, request{
		method:   http.MethodGet,
		endpoint: c.transport.entryURL,
		params:   params,
		sid:      s.Token,
	})
	if err != nil {
		return err
	}
	if err := decode(resp, into); err != nil {
		return fmt.Errorf("%s %s: %w", params.Get("api"), params.Get("method"), err)
	}
	return nil
}
