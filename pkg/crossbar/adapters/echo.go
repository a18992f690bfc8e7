// Package adapters binds the crossbar dispatch core onto host HTTP
// frameworks. Each adapter translates its framework's request into the core's
// Context contract and hands finalized routes to the dispatcher.
package adapters

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"

	"github.com/toyz/crossbar/pkg/crossbar"
)

// EchoAdapter implements crossbar.HostAdapter for Echo v4
type EchoAdapter struct {
	engine     *echo.Echo
	dispatcher *crossbar.Dispatcher
}

// NewEchoAdapter creates an Echo adapter around an existing Echo instance
func NewEchoAdapter(e *echo.Echo, logger hclog.Logger) *EchoAdapter {
	return &EchoAdapter{
		engine:     e,
		dispatcher: crossbar.NewDispatcher(logger),
	}
}

// NewDefaultEchoAdapter creates an Echo adapter with a fresh Echo instance
func NewDefaultEchoAdapter(logger hclog.Logger) *EchoAdapter {
	e := echo.New()
	e.HideBanner = true
	return NewEchoAdapter(e, logger)
}

// RegisterControllers binds every finalized controller onto Echo
func (ea *EchoAdapter) RegisterControllers(storage *crossbar.MetadataStorage) {
	for _, decl := range storage.Controllers() {
		if decl.DefaultHandler != nil {
			handler := ea.defaultHandlerFunc(decl)
			ea.engine.Any(decl.BasePath, handler)
			ea.engine.Any(decl.BasePath+"/*", handler)
			continue
		}
		for _, route := range decl.Routes {
			ea.engine.Add(route.HTTPMethod, decl.BasePath+route.Path, ea.routeHandlerFunc(route))
		}
	}
}

// RegisterGlobalMiddlewares installs middleware ahead of every per-route chain
func (ea *EchoAdapter) RegisterGlobalMiddlewares(middlewares ...crossbar.MiddlewareFunc) {
	for _, mw := range middlewares {
		mw := mw
		ea.engine.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(ec echo.Context) error {
				c, err := crossbar.EchoContext(ec)
				if err != nil {
					ea.dispatcher.RespondError(c, err)
					return nil
				}
				called := false
				return mw(c, func() error {
					if called {
						return crossbar.ErrNextCalledTwice
					}
					called = true
					return next(ec)
				})
			}
		})
	}
}

// Start starts the server
func (ea *EchoAdapter) Start(addr string) error {
	return ea.engine.Start(addr)
}

// Stop stops the server
func (ea *EchoAdapter) Stop(ctx context.Context) error {
	return ea.engine.Shutdown(ctx)
}

// Name returns the adapter name
func (ea *EchoAdapter) Name() string {
	return "Echo"
}

// Engine returns the underlying Echo instance
func (ea *EchoAdapter) Engine() *echo.Echo {
	return ea.engine
}

func (ea *EchoAdapter) routeHandlerFunc(route *crossbar.RouteDeclaration) echo.HandlerFunc {
	return func(ec echo.Context) error {
		c, err := crossbar.EchoContext(ec)
		if err != nil {
			ea.dispatcher.RespondError(c, err)
			return nil
		}
		ea.dispatcher.Dispatch(c, route)
		return nil
	}
}

func (ea *EchoAdapter) defaultHandlerFunc(decl *crossbar.ControllerDeclaration) echo.HandlerFunc {
	return func(ec echo.Context) error {
		c, err := crossbar.EchoContext(ec)
		if err != nil {
			ea.dispatcher.RespondError(c, err)
			return nil
		}
		ea.dispatcher.DispatchDefault(c, decl)
		return nil
	}
}
