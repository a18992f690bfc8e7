package adapters

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/toyz/crossbar/pkg/crossbar"
)

const fiberContextKey = "crossbar.context"

// FiberAdapter implements crossbar.HostAdapter for Fiber v2
type FiberAdapter struct {
	app        *fiber.App
	dispatcher *crossbar.Dispatcher
}

// NewFiberAdapter creates a Fiber adapter around an existing Fiber app
func NewFiberAdapter(app *fiber.App, logger hclog.Logger) *FiberAdapter {
	return &FiberAdapter{
		app:        app,
		dispatcher: crossbar.NewDispatcher(logger),
	}
}

// NewDefaultFiberAdapter creates a Fiber adapter with a fresh app
func NewDefaultFiberAdapter(logger hclog.Logger) *FiberAdapter {
	return NewFiberAdapter(fiber.New(fiber.Config{DisableStartupMessage: true}), logger)
}

// RegisterControllers binds every finalized controller onto Fiber
func (fa *FiberAdapter) RegisterControllers(storage *crossbar.MetadataStorage) {
	for _, decl := range storage.Controllers() {
		if decl.DefaultHandler != nil {
			handler := fa.defaultHandlerFunc(decl)
			fa.app.All(decl.BasePath, handler)
			fa.app.All(decl.BasePath+"/*", handler)
			continue
		}
		for _, route := range decl.Routes {
			fa.app.Add(route.HTTPMethod, decl.BasePath+route.Path, fa.routeHandlerFunc(route))
		}
	}
}

// RegisterGlobalMiddlewares installs middleware ahead of every per-route chain
func (fa *FiberAdapter) RegisterGlobalMiddlewares(middlewares ...crossbar.MiddlewareFunc) {
	for _, mw := range middlewares {
		mw := mw
		fa.app.Use(func(fc *fiber.Ctx) error {
			c, err := fa.contextFor(fc)
			if err != nil {
				fa.dispatcher.RespondError(c, err)
				return nil
			}
			called := false
			err = mw(c, func() error {
				if called {
					return crossbar.ErrNextCalledTwice
				}
				called = true
				return fc.Next()
			})
			if err != nil {
				fa.dispatcher.RespondError(c, err)
			}
			return nil
		})
	}
}

// Start starts the server
func (fa *FiberAdapter) Start(addr string) error {
	return fa.app.Listen(addr)
}

// Stop stops the server
func (fa *FiberAdapter) Stop(ctx context.Context) error {
	return fa.app.ShutdownWithContext(ctx)
}

// Name returns the adapter name
func (fa *FiberAdapter) Name() string {
	return "Fiber"
}

// App returns the underlying Fiber app
func (fa *FiberAdapter) App() *fiber.App {
	return fa.app
}

func (fa *FiberAdapter) routeHandlerFunc(route *crossbar.RouteDeclaration) fiber.Handler {
	return func(fc *fiber.Ctx) error {
		c, err := fa.contextFor(fc)
		if err != nil {
			fa.dispatcher.RespondError(c, err)
			return nil
		}
		fa.dispatcher.Dispatch(c, route)
		return nil
	}
}

func (fa *FiberAdapter) defaultHandlerFunc(decl *crossbar.ControllerDeclaration) fiber.Handler {
	return func(fc *fiber.Ctx) error {
		c, err := fa.contextFor(fc)
		if err != nil {
			fa.dispatcher.RespondError(c, err)
			return nil
		}
		fa.dispatcher.DispatchDefault(c, decl)
		return nil
	}
}

// contextFor builds (or reuses) the crossbar context for a Fiber request
func (fa *FiberAdapter) contextFor(fc *fiber.Ctx) (*crossbar.Context, error) {
	if cached, ok := fc.Locals(fiberContextKey).(*crossbar.Context); ok {
		return cached, nil
	}

	req, buildErr := buildFiberRequest(fc)
	c := crossbar.NewContext(req, &fiberResponseWriter{fc: fc})
	fc.Locals(fiberContextKey, c)
	return c, buildErr
}

func buildFiberRequest(fc *fiber.Ctx) (*crossbar.Request, error) {
	headers := make(http.Header)
	for key, values := range fc.GetReqHeaders() {
		for _, v := range values {
			headers.Add(key, v)
		}
	}

	query := make(url.Values)
	fc.Context().QueryArgs().VisitAll(func(key, value []byte) {
		query.Add(string(key), string(value))
	})

	contentType := headers.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(strings.ToLower(contentType))

	req := &crossbar.Request{
		Method:      fc.Method(),
		Path:        fc.Path(),
		Headers:     headers,
		PathParams:  fc.AllParams(),
		Query:       query,
		ContentType: contentType,
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		form, err := fc.MultipartForm()
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

	// fiber reuses its buffers between requests; the body must be copied
	req.RawBody = append([]byte(nil), fc.Body()...)
	return req, nil
}

// fiberResponseWriter adapts the Fiber response to the core's ResponseWriter.
// Fiber buffers the whole response until the handler returns, so "started"
// means the first body write has happened.
type fiberResponseWriter struct {
	fc      *fiber.Ctx
	started bool
}

func (w *fiberResponseWriter) SetHeader(key, value string) {
	w.fc.Set(key, value)
}

func (w *fiberResponseWriter) Status(code int) {
	if !w.started {
		w.fc.Status(code)
	}
}

func (w *fiberResponseWriter) Write(p []byte) (int, error) {
	w.started = true
	return w.fc.Write(p)
}

func (w *fiberResponseWriter) Flush() {}

func (w *fiberResponseWriter) HasStarted() bool {
	return w.started
}
