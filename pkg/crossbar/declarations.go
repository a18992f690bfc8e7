package crossbar

import "github.com/toyz/crossbar/internal/pathspec"

// ParamKind identifies where a handler parameter's value is pulled from
type ParamKind int

const (
	PathParam ParamKind = iota
	QueryParam
	HeaderParam
	BodyParam
	RawBodyParam
	ContextParam
	FileParam
)

// String returns the kind name as used in error message prefixes
func (k ParamKind) String() string {
	switch k {
	case PathParam:
		return "path"
	case QueryParam:
		return "query"
	case HeaderParam:
		return "header"
	case BodyParam:
		return "body"
	case RawBodyParam:
		return "rawBody"
	case ContextParam:
		return "context"
	case FileParam:
		return "file"
	default:
		return "unknown"
	}
}

// FileOptions constrains a file-kind parameter
type FileOptions struct {
	// MaxSize is the largest accepted file size in bytes; 0 means unlimited
	MaxSize int64

	// MaxCount is the largest accepted number of files; 0 means unlimited
	MaxCount int

	// ForceArray makes the extracted value a slice even for a single upload
	ForceArray bool
}

// ParameterDeclaration describes one handler parameter: where its value comes
// from, its expected shape, and its position in the handler argument list
type ParameterDeclaration struct {
	// Index is the parameter's position in the handler argument list; unique
	// within a method
	Index int

	Kind ParamKind

	// Name is the parameter name in its source (path placeholder, query key,
	// header name, context key, or upload field). Empty means a whole-source
	// bind: the full query map, header map, context, or every uploaded file.
	Name string

	Schema *Schema

	// Required controls whether an absent value is an error. Only query and
	// file parameters may be optional.
	Required bool

	// File carries upload constraints; only set for file-kind parameters
	File *FileOptions
}

// HandlerFunc is a route handler. Args holds the extracted, validated
// parameter values in declaration order. The returned value is serialized by
// the dispatcher; returning a *Response overrides the status code.
type HandlerFunc func(c *Context, args []any) (any, error)

// NextFunc runs the remainder of a middleware chain. Calling it a second time
// after it has resolved is a hard error.
type NextFunc func() error

// MiddlewareFunc is one pipeline stage. It may do arbitrary work before and
// after invoking next; never invoking next short-circuits the chain.
type MiddlewareFunc func(c *Context, next NextFunc) error

// StreamKind declares a route's streaming behavior
type StreamKind int

const (
	StreamNone StreamKind = iota
	StreamFile
	StreamData
)

// String returns the stream kind name
func (k StreamKind) String() string {
	switch k {
	case StreamFile:
		return "file"
	case StreamData:
		return "data"
	default:
		return "none"
	}
}

// StreamOptions carries declared header behavior for streaming routes
type StreamOptions struct {
	// Inline selects an inline Content-Disposition instead of attachment for
	// file streams
	Inline bool

	// CacheControl is sent as the Cache-Control header when non-empty
	CacheControl string
}

// RouteDeclaration maps one HTTP method and path to a handler with typed
// parameters and a typed return. Immutable after its controller is finalized,
// except for live middleware and security grafts applied through the registry.
type RouteDeclaration struct {
	// MethodName is the handler method name used to key pending facts
	MethodName string

	// HTTPMethod is one of GET, POST, PUT, DELETE, PATCH
	HTTPMethod string

	// Path is the route path relative to the controller base path, normalized
	// to a leading slash
	Path string

	ReturnSchema *Schema

	// Parameters is sorted by Index before finalization
	Parameters []*ParameterDeclaration

	// Middlewares runs in order: controller-level first, then method-level
	Middlewares []MiddlewareFunc

	// SecuritySchemes names the authentication requirements attached to the
	// route, controller-level first
	SecuritySchemes []string

	StreamKind    StreamKind
	StreamOptions StreamOptions

	Handler HandlerFunc

	template *pathspec.Template
}

// Template returns the parsed path template
func (r *RouteDeclaration) Template() *pathspec.Template {
	return r.template
}

// ControllerDeclaration is the frozen record of one controller: a base path,
// its routes sorted by matching specificity, and controller-level middleware
// and security defaults already merged into each route
type ControllerDeclaration struct {
	// Name is the stable controller identity used at registration time
	Name string

	// BasePath prefixes every route path
	BasePath string

	// Routes is sorted so literal segments match before placeholders
	Routes []*RouteDeclaration

	Middlewares     []MiddlewareFunc
	SecuritySchemes []string

	// DefaultHandler is the catch-all handler; mutually exclusive with Routes
	DefaultHandler HandlerFunc

	// DefaultHandlerMiddlewares runs ahead of the default handler
	DefaultHandlerMiddlewares []MiddlewareFunc
}
