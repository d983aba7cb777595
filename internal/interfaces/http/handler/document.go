package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	docapp "github.com/erp/docservice/internal/application/document"
	"github.com/erp/docservice/internal/application/storage"
)

// DocumentService is the application surface behind the command endpoint
type DocumentService interface {
	Generate(ctx context.Context, req docapp.GenerateRequest) (*docapp.DocumentResponse, error)
	GenerateStickers(ctx context.Context, req docapp.StickerRequest) (*docapp.StickerResponse, error)
	SendEmail(ctx context.Context, req docapp.SendEmailRequest) (*docapp.EmailResponse, error)
	MoveFolder(ctx context.Context, req docapp.MoveFolderRequest) (*storage.MoveReport, error)
	ListFiles(ctx context.Context, dir string) (*docapp.ListFilesResponse, error)
}

// DocumentHandler handles document, folder, email and file endpoints
type DocumentHandler struct {
	BaseHandler
	service DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(service DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Generate renders, stores and optionally prints one document.
// A failed print still answers 200 with print.ok=false.
//
// POST /api/v1/documents
func (h *DocumentHandler) Generate(c *gin.Context) {
	var req docapp.GenerateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// GenerateStickers renders and stores an address and a shipping label.
//
// POST /api/v1/documents/stickers
func (h *DocumentHandler) GenerateStickers(c *gin.Context) {
	var req docapp.StickerRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.GenerateStickers(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// MoveFolder moves a folder on the active backend.
//
// POST /api/v1/folders/move
func (h *DocumentHandler) MoveFolder(c *gin.Context) {
	var req docapp.MoveFolderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	report, err := h.service.MoveFolder(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// SendEmail sends a message with an optional stored attachment.
//
// POST /api/v1/emails
func (h *DocumentHandler) SendEmail(c *gin.Context) {
	var req docapp.SendEmailRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.service.SendEmail(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ListFiles lists a directory.
//
// GET /api/v1/files?path=
func (h *DocumentHandler) ListFiles(c *gin.Context) {
	dir := c.Query("path")
	if dir == "" {
		h.BadRequest(c, "query parameter path is required")
		return
	}
	resp, err := h.service.ListFiles(c.Request.Context(), dir)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
