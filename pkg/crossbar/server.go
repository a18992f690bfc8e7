package crossbar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ServerConfig holds configuration for the crossbar web server
type ServerConfig struct {
	// Port is the port to listen on (default: 8080, PORT env override)
	Port string

	// Host is the host to bind to (default: "")
	Host string

	// EnableCORS enables CORS middleware (default: true)
	EnableCORS bool

	// EnableLogger enables request logging middleware (default: true)
	EnableLogger bool

	// EnableRecover enables panic recovery middleware (default: true)
	EnableRecover bool

	// Debug prints the finalized route table at startup
	Debug bool

	// ShutdownTimeout is the timeout for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration

	// Logger receives dispatch errors; defaults to a named hclog logger
	Logger hclog.Logger
}

// DefaultServerConfig returns a server configuration with sensible defaults
func DefaultServerConfig() *ServerConfig {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &ServerConfig{
		Port:            port,
		Host:            "",
		EnableCORS:      true,
		EnableLogger:    true,
		EnableRecover:   true,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server wraps an Echo instance and serves the finalized contents of a
// MetadataStorage. Registration must complete before Start; the storage is
// read-only once traffic flows.
type Server struct {
	echo       *echo.Echo
	config     *ServerConfig
	logger     hclog.Logger
	dispatcher *Dispatcher
}

// NewServer creates a new crossbar server with the given configuration
func NewServer(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: "crossbar"})
	}

	e := echo.New()
	e.HideBanner = true

	if config.EnableRecover {
		e.Use(middleware.Recover())
	}
	if config.EnableLogger {
		e.Use(middleware.Logger())
	}
	if config.EnableCORS {
		e.Use(middleware.CORS())
	}

	return &Server{
		echo:       e,
		config:     config,
		logger:     logger,
		dispatcher: NewDispatcher(logger),
	}
}

// Echo returns the underlying Echo instance for advanced configuration
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Dispatcher returns the server's dispatcher
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// RegisterControllers binds every finalized controller in the storage onto
// the server. Call once at boot, after all controllers are finalized.
func (s *Server) RegisterControllers(storage *MetadataStorage) {
	for _, decl := range storage.Controllers() {
		s.RegisterController(decl)
	}
	if s.config.Debug {
		s.printRouteTable(storage)
	}
}

// RegisterController binds one finalized controller onto the server
func (s *Server) RegisterController(decl *ControllerDeclaration) {
	if decl.DefaultHandler != nil {
		handler := s.defaultHandlerFunc(decl)
		s.echo.Any(decl.BasePath, handler)
		s.echo.Any(decl.BasePath+"/*", handler)
		return
	}
	for _, route := range decl.Routes {
		s.echo.Add(route.HTTPMethod, decl.BasePath+route.Path, s.routeHandlerFunc(route))
	}
}

// RegisterGlobalMiddlewares installs middleware that runs for every request,
// before any per-route chain
func (s *Server) RegisterGlobalMiddlewares(middlewares ...MiddlewareFunc) {
	for _, mw := range middlewares {
		mw := mw
		s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(ec echo.Context) error {
				c, err := EchoContext(ec)
				if err != nil {
					s.dispatcher.RespondError(c, err)
					return nil
				}
				called := false
				return mw(c, func() error {
					if called {
						return ErrNextCalledTwice
					}
					called = true
					return next(ec)
				})
			}
		})
	}
}

func (s *Server) routeHandlerFunc(route *RouteDeclaration) echo.HandlerFunc {
	return func(ec echo.Context) error {
		c, err := EchoContext(ec)
		if err != nil {
			s.dispatcher.RespondError(c, err)
			return nil
		}
		s.dispatcher.Dispatch(c, route)
		return nil
	}
}

func (s *Server) defaultHandlerFunc(decl *ControllerDeclaration) echo.HandlerFunc {
	return func(ec echo.Context) error {
		c, err := EchoContext(ec)
		if err != nil {
			s.dispatcher.RespondError(c, err)
			return nil
		}
		s.dispatcher.DispatchDefault(c, decl)
		return nil
	}
}

// Start starts the server and blocks until an interrupt triggers a graceful
// shutdown
func (s *Server) Start() error {
	go func() {
		addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
		s.logger.Info("starting server", "addr", addr)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Shutdown stops the server without waiting for a signal
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

const echoContextKey = "crossbar.context"

// EchoContext builds (or reuses) the crossbar request context for an Echo
// request. The context is cached on the Echo context so global middleware and
// the route handler share one instance.
func EchoContext(ec echo.Context) (*Context, error) {
	if cached, ok := ec.Get(echoContextKey).(*Context); ok {
		return cached, nil
	}

	req, buildErr := buildEchoRequest(ec)
	c := NewContext(req, &echoResponseWriter{ec: ec})
	ec.Set(echoContextKey, c)
	return c, buildErr
}

func buildEchoRequest(ec echo.Context) (*Request, error) {
	httpReq := ec.Request()

	req := &Request{
		Method:      httpReq.Method,
		Path:        httpReq.URL.Path,
		Headers:     httpReq.Header,
		PathParams:  make(map[string]string),
		Query:       ec.QueryParams(),
		ContentType: mediaType(httpReq.Header.Get("Content-Type")),
	}
	for i, name := range ec.ParamNames() {
		req.PathParams[name] = ec.ParamValues()[i]
	}

	if strings.HasPrefix(req.ContentType, "multipart/form-data") {
		form, err := ec.MultipartForm()
		if err != nil {
			return req, ErrBadRequest("malformed multipart body")
		}
		files, err := SpoolMultipartForm(form)
		if err != nil {
			return req, ErrInternalServerError("failed to store uploaded files")
		}
		req.Files = files
		req.FormValues = url.Values(form.Value)
		return req, nil
	}

	if httpReq.Body != nil {
		body, err := io.ReadAll(httpReq.Body)
		if err != nil {
			return req, ErrBadRequest("failed to read request body")
		}
		req.RawBody = body
	}
	return req, nil
}

// mediaType strips parameters from a Content-Type header value
func mediaType(contentType string) string {
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}

// echoResponseWriter adapts the Echo response to the core's ResponseWriter
type echoResponseWriter struct {
	ec echo.Context
}

func (w *echoResponseWriter) SetHeader(key, value string) {
	w.ec.Response().Header().Set(key, value)
}

func (w *echoResponseWriter) Status(code int) {
	if !w.ec.Response().Committed {
		w.ec.Response().WriteHeader(code)
	}
}

func (w *echoResponseWriter) Write(p []byte) (int, error) {
	return w.ec.Response().Write(p)
}

func (w *echoResponseWriter) Flush() {
	w.ec.Response().Flush()
}

func (w *echoResponseWriter) HasStarted() bool {
	return w.ec.Response().Committed
}
