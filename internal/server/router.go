package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vmixpanel/internal/metrics"
	"github.com/loykin/vmixpanel/internal/store"
)

// DefaultBodyLimit caps request bodies when Options.BodyLimit is zero.
const DefaultBodyLimit = 1 << 20

// Router provides embeddable HTTP handlers for the control panel.
// Endpoints:
//
//	POST {basePath}/api/save            body: {"filename": "...", "data": {...}|[...]}
//	POST {basePath}/api/save-sponsors   body: {"sponsors": [...]}
//	GET  {basePath}/api/load-sponsors
//	POST {basePath}/api/clear-sponsors
//	GET  {basePath}/api/rloverlay
//	POST {basePath}/api/rloverlay       body: {"data": {...}}
//	GET  {basePath}/api/resources
//	POST {basePath}/api/shutdown        only when Options.OnShutdown is set
//
// Unmatched GET requests are served from PublicDir.
type Router struct {
	store       *store.Store
	basePath    string
	publicDir   string
	fileBase    string
	bodyLimit   int64
	metricsPath string
	onShutdown  func()
	logger      *slog.Logger
}

// Options configures a Router.
type Options struct {
	Store       *store.Store
	BasePath    string
	PublicDir   string // empty disables static files
	BodyLimit   int64
	MetricsPath string // empty disables the metrics endpoint
	OnShutdown  func()
	Logger      *slog.Logger
}

func NewRouter(opts Options) *Router {
	r := &Router{
		store:       opts.Store,
		basePath:    sanitizeBase(opts.BasePath),
		publicDir:   opts.PublicDir,
		bodyLimit:   opts.BodyLimit,
		metricsPath: opts.MetricsPath,
		onShutdown:  opts.OnShutdown,
		logger:      opts.Logger,
	}
	if r.bodyLimit <= 0 {
		r.bodyLimit = DefaultBodyLimit
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	// resource paths are reported relative to the public dir, e.g. JSONs/sponsors.json
	r.fileBase = filepath.Base(r.store.Dir())
	if r.publicDir != "" {
		if rel, err := filepath.Rel(r.publicDir, r.store.Dir()); err == nil {
			r.fileBase = rel
		}
	}
	r.fileBase = filepath.ToSlash(r.fileBase)
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.observe, cors, r.limitBody)

	api := g.Group(r.basePath + "/api")
	api.POST("/save", r.handleSave)
	api.POST("/save-sponsors", r.handleSaveSponsors)
	api.GET("/load-sponsors", r.handleLoadSponsors)
	api.POST("/clear-sponsors", r.handleClearSponsors)
	api.GET("/rloverlay", r.handleGetOverlay)
	api.POST("/rloverlay", r.handlePostOverlay)
	api.GET("/resources", r.handleResources)
	if r.onShutdown != nil {
		api.POST("/shutdown", r.handleShutdown)
	}
	if r.metricsPath != "" {
		g.GET(r.metricsPath, gin.WrapH(metrics.Handler()))
	}

	var static http.Handler
	if r.publicDir != "" {
		static = http.StripPrefix(r.basePath, http.FileServer(gin.Dir(r.publicDir, false)))
	}
	g.NoRoute(func(c *gin.Context) {
		if static != nil && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) {
			static.ServeHTTP(c.Writer, c.Request)
			return
		}
		writeJSON(c, http.StatusNotFound, errorResp{Error: "not found"})
	})
	return g
}

// --- Middleware ---

func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

func (r *Router) limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.bodyLimit)
	}
	c.Next()
}

func (r *Router) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	metrics.IncHTTPRequest(route, c.Writer.Status())
	r.logger.Debug("http request", "method", c.Request.Method, "path", c.Request.URL.Path,
		"status", c.Writer.Status(), "duration", time.Since(start))
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK   bool   `json:"ok"`
	File string `json:"file,omitempty"`
}

type saveReq struct {
	Filename string          `json:"filename"`
	Data     json.RawMessage `json:"data"`
}

type sponsorsReq struct {
	Sponsors json.RawMessage `json:"sponsors"`
}

type overlayReq struct {
	Data json.RawMessage `json:"data"`
}

// bind decodes the request body into v. It writes the error response itself
// and reports whether the handler should continue.
func bind(c *gin.Context, v any, invalid string) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if isBodyTooLarge(err) {
			writeJSON(c, http.StatusRequestEntityTooLarge, errorResp{Error: "payload too large"})
			return false
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: invalid})
		return false
	}
	return true
}

func (r *Router) handleSave(c *gin.Context) {
	var req saveReq
	if !bind(c, &req, "Invalid payload") {
		return
	}
	if req.Filename == "" || jsonKind(req.Data) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "Invalid payload"})
		return
	}
	res, ok := r.store.Registry().Lookup(req.Filename)
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "Unknown filename"})
		return
	}
	r.put(c, res, req.Data, r.filePath(res))
}

func (r *Router) handleSaveSponsors(c *gin.Context) {
	var req sponsorsReq
	const invalid = "Invalid sponsor data structure - expected array"
	if !bind(c, &req, invalid) {
		return
	}
	if jsonKind(req.Sponsors) != '[' {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: invalid})
		return
	}
	res, _ := r.store.Registry().Lookup(store.Sponsors)
	r.put(c, res, req.Sponsors, r.filePath(res))
}

func (r *Router) handleLoadSponsors(c *gin.Context) {
	r.get(c, store.Sponsors, "Sponsors file not found")
}

func (r *Router) handleClearSponsors(c *gin.Context) {
	res, _ := r.store.Registry().Lookup(store.Sponsors)
	if err := r.store.Clear(c.Request.Context(), res.Name); err != nil {
		r.writeStoreError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, File: r.filePath(res)})
}

func (r *Router) handleGetOverlay(c *gin.Context) {
	r.get(c, store.RLOverlay, "RLOverlay data not found")
}

func (r *Router) handlePostOverlay(c *gin.Context) {
	var req overlayReq
	const invalid = "Invalid data structure"
	if !bind(c, &req, invalid) {
		return
	}
	if jsonKind(req.Data) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: invalid})
		return
	}
	res, _ := r.store.Registry().Lookup(store.RLOverlay)
	r.put(c, res, req.Data, res.File)
}

func (r *Router) handleResources(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.store.Registry().Resources())
}

func (r *Router) handleShutdown(c *gin.Context) {
	r.logger.Info("shutdown requested", "remote", c.ClientIP())
	writeJSON(c, http.StatusOK, okResp{OK: true})
	c.Writer.Flush()
	go r.onShutdown()
}

func (r *Router) put(c *gin.Context, res store.Resource, raw json.RawMessage, file string) {
	data, err := indent(raw)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "Invalid payload"})
		return
	}
	if err := r.store.Put(c.Request.Context(), res.Name, data); err != nil {
		r.writeStoreError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, File: file})
}

func (r *Router) get(c *gin.Context, name, missing string) {
	b, err := r.store.Get(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(c, http.StatusNotFound, errorResp{Error: missing})
			return
		}
		r.writeStoreError(c, err)
		return
	}
	if !json.Valid(b) {
		r.logger.Error("stored resource is not valid JSON", "resource", name)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: "stored " + name + " is not valid JSON"})
		return
	}
	writeRaw(c, http.StatusOK, b)
}

func (r *Router) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownResource):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "Unknown filename"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) filePath(res store.Resource) string {
	return path.Join(r.fileBase, res.File)
}
