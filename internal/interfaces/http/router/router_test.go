package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	docapp "github.com/erp/docservice/internal/application/document"
	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/domain/document"
	infraconfig "github.com/erp/docservice/internal/infrastructure/config"
	"github.com/erp/docservice/internal/interfaces/http/dto"
	"github.com/erp/docservice/internal/interfaces/http/handler"
	"github.com/erp/docservice/internal/interfaces/http/router"
)

const apiKey = "test-api-key"

type MockService struct {
	mock.Mock
}

func (m *MockService) Generate(ctx context.Context, req docapp.GenerateRequest) (*docapp.DocumentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docapp.DocumentResponse), args.Error(1)
}

func (m *MockService) GenerateStickers(ctx context.Context, req docapp.StickerRequest) (*docapp.StickerResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docapp.StickerResponse), args.Error(1)
}

func (m *MockService) SendEmail(ctx context.Context, req docapp.SendEmailRequest) (*docapp.EmailResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docapp.EmailResponse), args.Error(1)
}

func (m *MockService) MoveFolder(ctx context.Context, req docapp.MoveFolderRequest) (*storage.MoveReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.MoveReport), args.Error(1)
}

func (m *MockService) ListFiles(ctx context.Context, dir string) (*docapp.ListFilesResponse, error) {
	args := m.Called(ctx, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docapp.ListFilesResponse), args.Error(1)
}

func newTestEngine(t *testing.T) (*gin.Engine, *MockService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := new(MockService)
	t.Cleanup(func() { svc.AssertExpectations(t) })

	engine := router.NewEngine(router.Config{
		ServiceName: "docs-service",
		APIKey:      apiKey,
		MaxBodySize: 1 << 20,
	}, router.Handlers{
		Documents: handler.NewDocumentHandler(svc),
		Health:    handler.NewHealthHandler(storage.StaticFlags(infraconfig.StorageConfig{RemoteEnabled: true, ObjectStoreEnabled: true})),
	}, nil)
	return engine, svc
}

func do(engine *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestHealth(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.True(t, env.Success)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Storage.RemoteEnabled)
	assert.False(t, health.Storage.FallbackEnabled)
}

func TestAPIRequiresKey(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/files?path=a", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, dto.ErrCodeUnauthorized, decode(t, w).Error.Code)
}

func TestGenerateDocument(t *testing.T) {
	engine, svc := newTestEngine(t)
	want := docapp.GenerateRequest{
		Kind:        "INVOICE",
		HTML:        "<h1>INV-001</h1>",
		Target:      docapp.Target{Scope: "klanten/acme", Year: 2025, Filename: "INV-001"},
		Print:       true,
		PrinterName: "Zebra",
	}
	svc.On("Generate", mock.Anything, want).Return(&docapp.DocumentResponse{
		Locator:      "remote://klanten/acme/2025/facturen/INV-001.pdf",
		Backend:      document.BackendRemoteFile,
		RelativePath: "klanten/acme/2025/facturen/INV-001.pdf",
		Print:        &docapp.PrintOutcome{OK: false, Error: "print: printer offline"},
	}, nil).Once()

	w := do(engine, http.MethodPost, "/api/v1/documents", map[string]any{
		"kind":     "INVOICE",
		"html":     "<h1>INV-001</h1>",
		"scope":    "klanten/acme",
		"year":     2025,
		"filename": "INV-001",
		"print":    true,
		"printer":  "Zebra",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp docapp.DocumentResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "remote://klanten/acme/2025/facturen/INV-001.pdf", resp.Locator)
	require.NotNil(t, resp.Print)
	assert.False(t, resp.Print.OK)
}

func TestGenerateDocument_BadRequests(t *testing.T) {
	engine, _ := newTestEngine(t)

	w := do(engine, http.MethodPost, "/api/v1/documents", `{"kind":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w).Error.Code)

	w = do(engine, http.MethodPost, "/api/v1/documents", map[string]any{"kind": "INVOICE"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "html", env.Error.Details[0].Field)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
		stage  string
	}{
		{
			name:   "invalid input",
			err:    document.AtStage(document.StageRender, document.NewError(document.ErrKindInvalidInput, "render", "HTML content is empty", nil)),
			status: http.StatusBadRequest,
			code:   dto.ErrCodeInvalidInput,
			stage:  "render",
		},
		{
			name:   "remote auth",
			err:    document.AtStage(document.StageStore, document.NewAuthError("login", "invalid credentials", nil)),
			status: http.StatusBadGateway,
			code:   dto.ErrCodeBackendAuth,
			stage:  "store",
		},
		{
			name: "both backends failed",
			err: document.AtStage(document.StageStore, &storage.FallbackError{
				Remote:   document.NewUploadError("upload", "rejected", nil),
				Fallback: document.NewUploadError("put object", "access denied", nil),
			}),
			status: http.StatusBadGateway,
			code:   dto.ErrCodeUpload,
			stage:  "store",
		},
		{
			name:   "timeout",
			err:    document.AtStage(document.StageStore, document.NewTimeoutError("upload", "exceeded 50s", nil)),
			status: http.StatusGatewayTimeout,
			code:   dto.ErrCodeTimeout,
			stage:  "store",
		},
		{
			name:   "unknown",
			err:    context.Canceled,
			status: http.StatusInternalServerError,
			code:   dto.ErrCodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, svc := newTestEngine(t)
			svc.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			w := do(engine, http.MethodPost, "/api/v1/documents", map[string]any{"kind": "INVOICE", "html": "x", "path": "a.pdf"})
			assert.Equal(t, tt.status, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.stage, env.Error.Stage)
			assert.NotEmpty(t, env.Error.RequestID)
		})
	}
}

func TestGenerateStickers(t *testing.T) {
	engine, svc := newTestEngine(t)
	svc.On("GenerateStickers", mock.Anything, mock.MatchedBy(func(r docapp.StickerRequest) bool {
		return r.Filename == "ORD-42" && r.Year == 2025
	})).Return(&docapp.StickerResponse{
		AddressLabel:  docapp.DocumentResponse{RelativePath: "acme/2025/adreslabels/ORD-42.pdf"},
		ShippingLabel: docapp.DocumentResponse{RelativePath: "acme/2025/verzendlabels/ORD-42.pdf"},
	}, nil).Once()

	w := do(engine, http.MethodPost, "/api/v1/documents/stickers", map[string]any{
		"scope": "acme", "year": 2025, "filename": "ORD-42",
		"address_html": "<p>a</p>", "shipping_html": "<p>s</p>",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp docapp.StickerResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Equal(t, "acme/2025/verzendlabels/ORD-42.pdf", resp.ShippingLabel.RelativePath)
}

func TestMoveFolder(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		engine, svc := newTestEngine(t)
		svc.On("MoveFolder", mock.Anything, docapp.MoveFolderRequest{OldURL: "s3://docs/a", NewURL: "s3://docs/b"}).
			Return(&storage.MoveReport{Backend: document.BackendObjectStore, Source: "a", Destination: "b", Objects: 2}, nil).Once()

		w := do(engine, http.MethodPost, "/api/v1/folders/move", map[string]string{"old_url": "s3://docs/a", "new_url": "s3://docs/b"})
		require.Equal(t, http.StatusOK, w.Code)
		var report storage.MoveReport
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
		assert.Equal(t, 2, report.Objects)
	})

	t.Run("partial failure lists unprocessed paths", func(t *testing.T) {
		engine, svc := newTestEngine(t)
		svc.On("MoveFolder", mock.Anything, mock.Anything).Return(nil, document.AtStage(document.StageMove,
			document.NewMoveError("move objects", "copy a/2.pdf failed", []string{"a/2.pdf", "a/3.pdf"}, nil))).Once()

		w := do(engine, http.MethodPost, "/api/v1/folders/move", map[string]string{"old_url": "a", "new_url": "b"})
		assert.Equal(t, http.StatusBadGateway, w.Code)
		env := decode(t, w)
		assert.Equal(t, dto.ErrCodeMove, env.Error.Code)
		assert.Equal(t, "move", env.Error.Stage)
		assert.Equal(t, []string{"a/2.pdf", "a/3.pdf"}, env.Error.Unprocessed)
	})

	t.Run("cross bucket", func(t *testing.T) {
		engine, svc := newTestEngine(t)
		svc.On("MoveFolder", mock.Anything, mock.Anything).Return(nil, document.AtStage(document.StageMove,
			document.NewError(document.ErrKindUnsupportedMove, "move folder", "cross-bucket move", nil))).Once()

		w := do(engine, http.MethodPost, "/api/v1/folders/move", map[string]string{"old_url": "s3://a/x", "new_url": "s3://b/x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		engine, _ := newTestEngine(t)
		w := do(engine, http.MethodPost, "/api/v1/folders/move", map[string]string{"old_url": "a"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSendEmail(t *testing.T) {
	engine, svc := newTestEngine(t)
	svc.On("SendEmail", mock.Anything, docapp.SendEmailRequest{
		To: "klant@example.com", From: "facturen@acme.nl", FromName: "Acme",
		Subject: "Factuur", Message: "Zie bijlage", Attachment: "synology://a/b.pdf",
	}).Return(&docapp.EmailResponse{To: "klant@example.com", Attachment: "synology://a/b.pdf"}, nil).Once()

	w := do(engine, http.MethodPost, "/api/v1/emails", map[string]string{
		"email": "klant@example.com", "from_email": "facturen@acme.nl", "from_name": "Acme",
		"subject": "Factuur", "message": "Zie bijlage", "attachment": "synology://a/b.pdf",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(engine, http.MethodPost, "/api/v1/emails", map[string]string{"email": "nope", "subject": "s", "message": "m"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListFiles(t *testing.T) {
	engine, svc := newTestEngine(t)
	svc.On("ListFiles", mock.Anything, "klanten/acme").Return(&docapp.ListFilesResponse{
		Path:    "klanten/acme",
		Entries: []document.FileEntry{{Name: "2025", RelativePath: "klanten/acme/2025", IsDir: true}},
	}, nil).Once()

	w := do(engine, http.MethodGet, "/api/v1/files?path=klanten/acme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp docapp.ListFilesResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &resp))
	assert.Len(t, resp.Entries, 1)

	w = do(engine, http.MethodGet, "/api/v1/files", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
