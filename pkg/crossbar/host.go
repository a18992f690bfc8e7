package crossbar

import "context"

// HostAdapter is the contract the core exposes to a host HTTP framework. The
// host owns socket binding and must register the finalized storage contents
// once at boot, before serving traffic.
type HostAdapter interface {
	// RegisterControllers binds every finalized controller onto the host
	RegisterControllers(storage *MetadataStorage)

	// RegisterGlobalMiddlewares installs middleware that runs for every
	// request, before any per-route chain
	RegisterGlobalMiddlewares(middlewares ...MiddlewareFunc)

	// Server lifecycle
	Start(addr string) error
	Stop(ctx context.Context) error

	// Name identifies the host framework
	Name() string
}
