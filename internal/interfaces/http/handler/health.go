package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/erp/docservice/internal/application/storage"
	"github.com/erp/docservice/internal/interfaces/http/dto"
)

// HealthHandler reports liveness and the storage flags in effect
type HealthHandler struct {
	flags     storage.FlagSource
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(flags storage.FlagSource) *HealthHandler {
	return &HealthHandler{flags: flags, startTime: time.Now()}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string          `json:"status"`
	Time    string          `json:"time"`
	Uptime  string          `json:"uptime"`
	Storage StorageFlagsDTO `json:"storage"`
}

// StorageFlagsDTO mirrors the storage configuration
type StorageFlagsDTO struct {
	RemoteEnabled      bool `json:"remote_enabled"`
	FallbackEnabled    bool `json:"fallback_enabled"`
	ObjectStoreEnabled bool `json:"object_store_enabled"`
}

// Health answers 200 while the process serves requests
//
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	flags := h.flags()
	c.JSON(http.StatusOK, dto.NewSuccessResponse(HealthResponse{
		Status: "healthy",
		Time:   time.Now().UTC().Format(time.RFC3339),
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Storage: StorageFlagsDTO{
			RemoteEnabled:      flags.RemoteEnabled,
			FallbackEnabled:    flags.FallbackEnabled,
			ObjectStoreEnabled: flags.ObjectStoreEnabled,
		},
	}))
}
