// Package router assembles the gin engine: middleware stack, health check
// and the versioned API routes.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/interfaces/http/handler"
	"github.com/erp/docservice/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration under /api/{version}
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware applied to every API route
func (r *Router) Use(mw ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, mw...)
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes with the engine
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one resource under a prefix
type DomainGroup struct {
	prefix string
	routes []routeDefinition
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new route group
func NewDomainGroup(prefix string) *DomainGroup {
	return &DomainGroup{prefix: prefix}
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "GET", path: path, handlers: handlers})
	return dg
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: "POST", path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Config controls the engine middleware stack
type Config struct {
	ServiceName    string
	APIKey         string
	MaxBodySize    int64
	TrustedProxies []string
	Tracing        bool
}

// Handlers are the endpoint implementations wired into the engine
type Handlers struct {
	Documents *handler.DocumentHandler
	Health    *handler.HealthHandler
}

// NewEngine builds the gin engine. Middleware order: tracing, request id,
// recovery, request logging, security headers, body limit; the API key is
// only checked under /api.
func NewEngine(cfg Config, h Handlers, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	if cfg.Tracing {
		engine.Use(middleware.Tracing(cfg.ServiceName))
	}
	engine.Use(middleware.RequestID())
	if cfg.Tracing {
		engine.Use(middleware.SpanAttributes())
	}
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	engine.GET("/health", h.Health.Health)

	documents := NewDomainGroup("/documents").
		POST("", h.Documents.Generate).
		POST("/stickers", h.Documents.GenerateStickers)
	folders := NewDomainGroup("/folders").
		POST("/move", h.Documents.MoveFolder)
	emails := NewDomainGroup("/emails").
		POST("", h.Documents.SendEmail)
	files := NewDomainGroup("/files").
		GET("", h.Documents.ListFiles)

	NewRouter(engine, WithAPIVersion("v1")).
		Use(middleware.APIKey(cfg.APIKey)).
		Register(documents).
		Register(folders).
		Register(emails).
		Register(files).
		Setup()

	return engine
}
