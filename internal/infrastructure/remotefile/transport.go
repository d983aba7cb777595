// Package remotefile talks to a Synology DSM file server through its WebAPI:
// SYNO.API.Auth for sessions and SYNO.FileStation.* for file operations.
package remotefile

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
)

// API names and versions used against the WebAPI.
const (
	apiAuth         = "SYNO.API.Auth"
	apiUpload       = "SYNO.FileStation.Upload"
	apiDownload     = "SYNO.FileStation.Download"
	apiCopyMove     = "SYNO.FileStation.CopyMove"
	apiCreateFolder = "SYNO.FileStation.CreateFolder"
	apiRename       = "SYNO.FileStation.Rename"
	apiList         = "SYNO.FileStation.List"

	versionAuth = "6"
)

// Transport is the HTTP layer shared by SessionManager and Client. Every
// call is bounded by the configured maximum duration; the dialer enforces
// the connect timeout.
type Transport struct {
	http        *http.Client
	authURL     string
	entryURL    string
	maxDuration time.Duration
	tempDir     string
	logger      *zap.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets a custom logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithHTTPClient replaces the HTTP client built from configuration.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.http = c
	}
}

// WithTempDir sets the directory used to stage multipart upload bodies.
func WithTempDir(dir string) Option {
	return func(t *Transport) {
		t.tempDir = dir
	}
}

// NewTransport creates the WebAPI transport from configuration.
func NewTransport(cfg *infraconfig.RemoteFileConfig, opts ...Option) (*Transport, error) {
	if cfg == nil {
		return nil, errors.New("remote file configuration is required")
	}
	authURL, entryURL, err := endpoints(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		authURL:     authURL,
		entryURL:    entryURL,
		maxDuration: cfg.MaxDuration,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.http == nil {
		client, err := newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		t.http = client
	}
	if t.maxDuration <= 0 {
		t.maxDuration = 50 * time.Second
	}
	return t, nil
}

// endpoints derives auth.cgi and entry.cgi from a base URL that may or may
// not already contain the /webapi segment.
func endpoints(base string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", fmt.Errorf("invalid remote file base url %q", base)
	}
	root := strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/")
	if idx := strings.Index(root, "/webapi"); idx >= 0 {
		root = root[:idx]
	}
	return root + "/webapi/auth.cgi", root + "/webapi/entry.cgi", nil
}

func newHTTPClient(cfg *infraconfig.RemoteFileConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CACertFile != "" {
		pem, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read remote file CA bundle: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CACertFile)
		}
		tlsCfg.RootCAs = pool
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSClientConfig:     tlsCfg,
			TLSHandshakeTimeout: connectTimeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}, nil
}

// envelope is the WebAPI response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code int `json:"code"`
	} `json:"error"`
}

// response is a fully read HTTP response.
type response struct {
	status      int
	contentType string
	body        []byte
}

// request describes one WebAPI call. Params go into the query string for
// GET and into the form body for POST unless body is set.
type request struct {
	method      string
	endpoint    string
	params      url.Values
	sid         string
	body        io.Reader
	contentType string
	length      int64
}

// do performs the call under the per-call deadline and reads the whole body
// before the deadline is released. Deadline and dial timeouts come back as
// errors satisfying isTimeout.
func (t *Transport) do(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.maxDuration)
	defer cancel()

	var q url.Values
	var body io.Reader
	contentType := r.contentType
	switch {
	case r.body != nil:
		q = cloneValues(r.params)
		body = r.body
	case r.method == http.MethodPost:
		body = strings.NewReader(r.params.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		q = cloneValues(r.params)
	}
	if r.sid != "" {
		if q == nil {
			q = url.Values{}
		}
		q.Set("_sid", r.sid)
	}

	target := r.endpoint
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.length > 0 {
		req.ContentLength = r.length
	}

	resp, err := t.http.Do(req)
	if err != nil {
		// The query carries _sid; errors must only name the endpoint.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = r.endpoint
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: data}, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// decode parses a WebAPI envelope and returns its data on success.
func decode(resp *response, into any) error {
	if resp.status < 200 || resp.status > 299 {
		return &apiError{status: resp.status}
	}
	var env envelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return &apiError{status: resp.status, malformed: true}
	}
	if !env.Success {
		code := 0
		if env.Error != nil {
			code = env.Error.Code
		}
		return &apiError{status: resp.status, code: code}
	}
	if into != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, into); err != nil {
			return &apiError{status: resp.status, malformed: true}
		}
	}
	return nil
}

// apiError is a non-success WebAPI answer.
type apiError struct {
	status    int
	code      int
	malformed bool
}

func (e *apiError) Error() string {
	switch {
	case e.status < 200 || e.status > 299:
		return fmt.Sprintf("http status %d", e.status)
	case e.malformed:
		return "response is not a WebAPI JSON envelope"
	default:
		return fmt.Sprintf("api error %d (%s)", e.code, codeText(e.code))
	}
}

// Code returns the WebAPI error code, or 0.
func (e *apiError) Code() int {
	return e.code
}

func apiCode(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.code
	}
	return 0
}

func codeText(code int) string {
	switch code {
	case 100:
		return "unknown error"
	case 101:
		return "invalid parameter"
	case 102:
		return "api does not exist"
	case 103:
		return "method does not exist"
	case 104:
		return "version not supported"
	case 105:
		return "insufficient user privilege"
	case 106:
		return "session timeout"
	case 107:
		return "session interrupted by duplicate login"
	case 119:
		return "sid not found"
	case 400:
		return "no such account or incorrect password"
	case 401:
		return "account disabled"
	case 402:
		return "permission denied"
	case 403:
		return "2-step verification code required"
	case 404:
		return "failed to authenticate 2-step verification code"
	case 408:
		return "no such file or directory"
	case 414:
		return "file already exists"
	case 418:
		return "illegal name or path"
	case 1000:
		return "failed to copy files or folders"
	case 1001:
		return "failed to move files or folders"
	case 1100:
		return "failed to create a folder"
	default:
		return "unrecognized"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// wrap converts a transport or API failure into the domain error of kind,
// turning deadline and dial timeouts into TimeoutError.
func wrap(kind document.ErrorKind, op, msg string, err error) error {
	if isTimeout(err) {
		return document.NewTimeoutError(op, msg+": remote file server did not answer in time", err)
	}
	return document.NewError(kind, op, msg, err)
}

// isJSONBody reports whether a download answer is a WebAPI envelope rather
// than file content.
func isJSONBody(resp *response) bool {
	if strings.HasPrefix(resp.contentType, "application/json") {
		return true
	}
	trimmed := bytes.TrimSpace(resp.body)
	return bytes.HasPrefix(trimmed, []byte(`{"`)) && bytes.Contains(trimmed, []byte(`"success"`))
}
