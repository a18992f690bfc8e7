package adapters

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/toyz/crossbar/pkg/crossbar"
)

const ginContextKey = "crossbar.context"

// GinAdapter implements crossbar.HostAdapter for Gin
type GinAdapter struct {
	engine     *gin.Engine
	dispatcher *crossbar.Dispatcher
	server     *http.Server
}

// NewGinAdapter creates a Gin adapter around an existing Gin engine
func NewGinAdapter(engine *gin.Engine, logger hclog.Logger) *GinAdapter {
	return &GinAdapter{
		engine:     engine,
		dispatcher: crossbar.NewDispatcher(logger),
	}
}

// NewDefaultGinAdapter creates a Gin adapter with a fresh engine
func NewDefaultGinAdapter(logger hclog.Logger) *GinAdapter {
	return NewGinAdapter(gin.New(), logger)
}

// RegisterControllers binds every finalized controller onto Gin
func (ga *GinAdapter) RegisterControllers(storage *crossbar.MetadataStorage) {
	for _, decl := range storage.Controllers() {
		if decl.DefaultHandler != nil {
			handler := ga.defaultHandlerFunc(decl)
			ga.engine.Any(decl.BasePath, handler)
			ga.engine.Any(decl.BasePath+"/*any", handler)
			continue
		}
		for _, route := range decl.Routes {
			ga.engine.Handle(route.HTTPMethod, decl.BasePath+route.Path, ga.routeHandlerFunc(route))
		}
	}
}

// RegisterGlobalMiddlewares installs middleware ahead of every per-route chain
func (ga *GinAdapter) RegisterGlobalMiddlewares(middlewares ...crossbar.MiddlewareFunc) {
	for _, mw := range middlewares {
		mw := mw
		ga.engine.Use(func(gc *gin.Context) {
			c, err := ga.contextFor(gc)
			if err != nil {
				ga.dispatcher.RespondError(c, err)
				gc.Abort()
				return
			}
			called := false
			err = mw(c, func() error {
				if called {
					return crossbar.ErrNextCalledTwice
				}
				called = true
				gc.Next()
				return nil
			})
			if err != nil {
				ga.dispatcher.RespondError(c, err)
				gc.Abort()
				return
			}
			if !called {
				// the middleware short-circuited; stop the gin chain too
				gc.Abort()
			}
		})
	}
}

// Start starts the server
func (ga *GinAdapter) Start(addr string) error {
	ga.server = &http.Server{
		Addr:              addr,
		Handler:           ga.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return ga.server.ListenAndServe()
}

// Stop stops the server
func (ga *GinAdapter) Stop(ctx context.Context) error {
	if ga.server == nil {
		return nil
	}
	return ga.server.Shutdown(ctx)
}

// Name returns the adapter name
func (ga *GinAdapter) Name() string {
	return "Gin"
}

// Engine returns the underlying Gin engine
func (ga *GinAdapter) Engine() *gin.Engine {
	return ga.engine
}

func (ga *GinAdapter) routeHandlerFunc(route *crossbar.RouteDeclaration) gin.HandlerFunc {
	return func(gc *gin.Context) {
		c, err := ga.contextFor(gc)
		if err != nil {
			ga.dispatcher.RespondError(c, err)
			return
		}
		ga.dispatcher.Dispatch(c, route)
	}
}

func (ga *GinAdapter) defaultHandlerFunc(decl *crossbar.ControllerDeclaration) gin.HandlerFunc {
	return func(gc *gin.Context) {
		c, err := ga.contextFor(gc)
		if err != nil {
			ga.dispatcher.RespondError(c, err)
			return
		}
		ga.dispatcher.DispatchDefault(c, decl)
	}
}

// contextFor builds (or reuses) the crossbar context for a Gin request
func (ga *GinAdapter) contextFor(gc *gin.Context) (*crossbar.Context, error) {
	if cached, ok := gc.Get(ginContextKey); ok {
		if c, ok := cached.(*crossbar.Context); ok {
			return c, nil
		}
	}

	req, buildErr := buildGinRequest(gc)
	c := crossbar.NewContext(req, &ginResponseWriter{gc: gc})
	gc.Set(ginContextKey, c)
	return c, buildErr
}

func buildGinRequest(gc *gin.Context) (*crossbar.Request, error) {
	httpReq := gc.Request

	contentType := httpReq.Header.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	req := &crossbar.Request{
		Method:      httpReq.Method,
		Path:        httpReq.URL.Path,
		Headers:     httpReq.Header,
		PathParams:  make(map[string]string),
		Query:       httpReq.URL.Query(),
		ContentType: contentType,
	}
	for _, param := range gc.Params {
		req.PathParams[param.Key] = param.Value
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		form, err := gc.MultipartForm()
		if err != nil {
			return req, crossbar.ErrBadRequest("malformed multipart body")
		}
		files, err := crossbar.SpoolMultipartForm(form)
		if err != nil {
			return req, crossbar.ErrInternalServerError("failed to store uploaded files")
		}
		req.Files = files
		req.FormValues = url.Values(form.Value)
		return req, nil
	}

	if httpReq.Body != nil {
		body, err := io.ReadAll(httpReq.Body)
		if err != nil {
			return req, crossbar.ErrBadRequest("failed to read request body")
		}
		req.RawBody = body
	}
	return req, nil
}

// ginResponseWriter adapts the Gin response to the core's ResponseWriter
type ginResponseWriter struct {
	gc *gin.Context
}

func (w *ginResponseWriter) SetHeader(key, value string) {
	w.gc.Writer.Header().Set(key, value)
}

func (w *ginResponseWriter) Status(code int) {
	if !w.gc.Writer.Written() {
		w.gc.Writer.WriteHeader(code)
	}
}

func (w *ginResponseWriter) Write(p []byte) (int, error) {
	return w.gc.Writer.Write(p)
}

func (w *ginResponseWriter) Flush() {
	w.gc.Writer.Flush()
}

func (w *ginResponseWriter) HasStarted() bool {
	return w.gc.Writer.Written()
}
