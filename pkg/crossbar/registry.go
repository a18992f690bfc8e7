package crossbar

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/toyz/crossbar/internal/pathspec"
)

// allowed HTTP methods for route declarations
var allowedHTTPMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
	"PATCH":  true,
}

var basePathCharset = regexp.MustCompile(`^[A-Za-z0-9/_.\-]+$`)

// pendingController accumulates per-controller facts until the controller
// itself is finalized. All maps are keyed by handler method name; middleware
// and security use "" for the controller-level slot.
type pendingController struct {
	routes     map[string]*RouteDeclaration
	routeOrder []string

	params map[string][]*ParameterDeclaration

	middlewares map[string][]MiddlewareFunc
	security    map[string][]string

	streams map[string]*pendingStream

	defaultHandlerName string
	defaultHandler     HandlerFunc
}

type pendingStream struct {
	kind    StreamKind
	options StreamOptions
}

func newPendingController() *pendingController {
	return &pendingController{
		routes:      make(map[string]*RouteDeclaration),
		params:      make(map[string][]*ParameterDeclaration),
		middlewares: make(map[string][]MiddlewareFunc),
		security:    make(map[string][]string),
		streams:     make(map[string]*pendingStream),
	}
}

// MetadataStorage accumulates controller declarations during registration and
// finalizes them into immutable controller records. Construct one per
// application and pass it explicitly; all writes happen at bootstrap, strictly
// before any request is dispatched, after which the storage is read-mostly.
// The only post-finalization writes are live middleware and security grafts,
// which are also a bootstrap-time concern.
type MetadataStorage struct {
	mu        sync.RWMutex
	pending   map[string]*pendingController
	finalized map[string]*ControllerDeclaration
	order     []string
}

// NewMetadataStorage creates an empty metadata storage
func NewMetadataStorage() *MetadataStorage {
	return &MetadataStorage{
		pending:   make(map[string]*pendingController),
		finalized: make(map[string]*ControllerDeclaration),
	}
}

func (s *MetadataStorage) pendingFor(controller string) *pendingController {
	p, ok := s.pending[controller]
	if !ok {
		p = newPendingController()
		s.pending[controller] = p
	}
	return p
}

// RecordRoute records a route fact for a controller. Parameter facts for the
// same method must already be recorded; the placeholder set of the path is
// checked against them here and again, authoritatively, at finalization.
func (s *MetadataStorage) RecordRoute(controller string, route *RouteDeclaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalized[controller]; ok {
		return fmt.Errorf("controller %q is already finalized; cannot record route %q", controller, route.MethodName)
	}
	if route.MethodName == "" {
		return fmt.Errorf("controller %q: route is missing a method name", controller)
	}
	if !allowedHTTPMethods[route.HTTPMethod] {
		return fmt.Errorf("controller %q: route %q uses unsupported HTTP method %q", controller, route.MethodName, route.HTTPMethod)
	}

	switch schemaTypeOf(route.ReturnSchema) {
	case ObjectSchema, ArraySchema, NullSchema, FileStreamSchema, DataStreamSchema:
	default:
		return fmt.Errorf("controller %q: route %q has return schema type %q; must be object, array, null, fileStream or dataStream",
			controller, route.MethodName, route.ReturnSchema.describe())
	}

	tmpl, err := pathspec.Parse(route.Path)
	if err != nil {
		return fmt.Errorf("controller %q: route %q: %w", controller, route.MethodName, err)
	}
	if dup := tmpl.DuplicateParam(); dup != "" {
		return fmt.Errorf("controller %q: route %q declares path placeholder %q more than once", controller, route.MethodName, dup)
	}
	route.Path = tmpl.Raw
	route.template = tmpl

	p := s.pendingFor(controller)

	if _, exists := p.routes[route.MethodName]; exists {
		return fmt.Errorf("controller %q: method %q already has a route recorded", controller, route.MethodName)
	}
	for _, name := range p.routeOrder {
		other := p.routes[name]
		if other.HTTPMethod == route.HTTPMethod && other.Path == route.Path {
			return fmt.Errorf("controller %q: duplicate route %s %s (methods %q and %q)",
				controller, route.HTTPMethod, route.Path, other.MethodName, route.MethodName)
		}
	}

	if err := checkPathParamBijection(controller, route, p.params[route.MethodName]); err != nil {
		return err
	}

	streamKind := route.StreamKind
	if info, ok := p.streams[route.MethodName]; ok && streamKind == StreamNone {
		streamKind = info.kind
	}
	if streamKind == StreamNone {
		// stream-typed returns imply their stream kind
		switch schemaTypeOf(route.ReturnSchema) {
		case FileStreamSchema:
			streamKind = StreamFile
		case DataStreamSchema:
			streamKind = StreamData
		}
	}
	if err := checkStreamConsistency(controller, route.MethodName, streamKind, route.ReturnSchema); err != nil {
		return err
	}

	p.routes[route.MethodName] = route
	p.routeOrder = append(p.routeOrder, route.MethodName)
	return nil
}

// RecordParameter records one handler parameter fact for a controller method,
// enforcing the parameter combination rules
func (s *MetadataStorage) RecordParameter(controller, methodName string, param *ParameterDeclaration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalized[controller]; ok {
		return fmt.Errorf("controller %q is already finalized; cannot record parameter for %q", controller, methodName)
	}

	p := s.pendingFor(controller)
	existing := p.params[methodName]

	for _, prev := range existing {
		if prev.Index == param.Index {
			return fmt.Errorf("controller %q: method %q declares two parameters at position %d", controller, methodName, param.Index)
		}
	}

	if !param.Required && param.Kind != QueryParam && param.Kind != FileParam {
		return fmt.Errorf("controller %q: method %q: %s parameter %q cannot be optional; only query and file parameters may be",
			controller, methodName, param.Kind, param.Name)
	}

	switch param.Kind {
	case PathParam:
		if param.Name == "" {
			return fmt.Errorf("controller %q: method %q: path parameters must be named", controller, methodName)
		}
		for _, prev := range existing {
			if prev.Kind == PathParam && prev.Name == param.Name {
				return fmt.Errorf("controller %q: method %q declares path parameter %q more than once", controller, methodName, param.Name)
			}
		}
		if err := checkLeafScalar(controller, methodName, param); err != nil {
			return err
		}
		// best-effort placeholder cross-check; authoritative at finalize
		if route, ok := p.routes[methodName]; ok {
			if !containsString(route.template.ParamNames(), param.Name) {
				return fmt.Errorf("controller %q: method %q: path parameter %q has no matching placeholder in %q",
					controller, methodName, param.Name, route.Path)
			}
		}

	case QueryParam:
		for _, prev := range existing {
			if prev.Kind == BodyParam {
				return fmt.Errorf("controller %q: method %q: query and body parameters cannot coexist", controller, methodName)
			}
		}
		if param.Name != "" {
			if err := checkLeafScalar(controller, methodName, param); err != nil {
				return err
			}
		}

	case BodyParam:
		for _, prev := range existing {
			if prev.Kind == BodyParam {
				return fmt.Errorf("controller %q: method %q declares more than one body parameter", controller, methodName)
			}
			if prev.Kind == QueryParam {
				return fmt.Errorf("controller %q: method %q: query and body parameters cannot coexist", controller, methodName)
			}
		}
		if schemaTypeOf(param.Schema) != ObjectSchema {
			return fmt.Errorf("controller %q: method %q: body parameter must have an object schema, got %s",
				controller, methodName, param.Schema.describe())
		}

	case FileParam:
		if param.File == nil {
			param.File = &FileOptions{}
		}
	}

	p.params[methodName] = append(existing, param)
	return nil
}

// RecordMiddleware attaches middleware to a controller ("" method name) or to
// a single method. Before finalization the middleware is held pending; after
// finalization it is grafted directly onto the live declaration:
// controller-level grafts prepend to every route and to the default handler,
// method-level grafts require the route to exist and append to it.
func (s *MetadataStorage) RecordMiddleware(controller, methodName string, middlewares ...MiddlewareFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decl, ok := s.finalized[controller]; ok {
		if methodName == "" {
			decl.Middlewares = append(append([]MiddlewareFunc{}, middlewares...), decl.Middlewares...)
			for _, route := range decl.Routes {
				route.Middlewares = append(append([]MiddlewareFunc{}, middlewares...), route.Middlewares...)
			}
			if decl.DefaultHandler != nil {
				decl.DefaultHandlerMiddlewares = append(append([]MiddlewareFunc{}, middlewares...), decl.DefaultHandlerMiddlewares...)
			}
			return nil
		}
		for _, route := range decl.Routes {
			if route.MethodName == methodName {
				route.Middlewares = append(route.Middlewares, middlewares...)
				return nil
			}
		}
		if decl.DefaultHandler != nil && methodName == decl.Name {
			decl.DefaultHandlerMiddlewares = append(decl.DefaultHandlerMiddlewares, middlewares...)
			return nil
		}
		return fmt.Errorf("controller %q has no route for method %q to attach middleware to", controller, methodName)
	}

	p := s.pendingFor(controller)
	p.middlewares[methodName] = append(p.middlewares[methodName], middlewares...)
	return nil
}

// RecordSecurity attaches named security schemes to a controller ("" method
// name) or to a single method. Unlike middleware grafts, schemes always
// append, both pending and live.
func (s *MetadataStorage) RecordSecurity(controller, methodName string, schemes ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if decl, ok := s.finalized[controller]; ok {
		if methodName == "" {
			decl.SecuritySchemes = append(decl.SecuritySchemes, schemes...)
			for _, route := range decl.Routes {
				route.SecuritySchemes = append(route.SecuritySchemes, schemes...)
			}
			return nil
		}
		for _, route := range decl.Routes {
			if route.MethodName == methodName {
				route.SecuritySchemes = append(route.SecuritySchemes, schemes...)
				return nil
			}
		}
		return fmt.Errorf("controller %q has no route for method %q to attach security schemes to", controller, methodName)
	}

	p := s.pendingFor(controller)
	p.security[methodName] = append(p.security[methodName], schemes...)
	return nil
}

// RecordStream records declared streaming behavior for a controller method
func (s *MetadataStorage) RecordStream(controller, methodName string, kind StreamKind, options StreamOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalized[controller]; ok {
		return fmt.Errorf("controller %q is already finalized; cannot record stream info for %q", controller, methodName)
	}

	p := s.pendingFor(controller)
	if _, exists := p.streams[methodName]; exists {
		return fmt.Errorf("controller %q: method %q already has stream info recorded", controller, methodName)
	}
	if route, ok := p.routes[methodName]; ok {
		if err := checkStreamConsistency(controller, methodName, kind, route.ReturnSchema); err != nil {
			return err
		}
	}

	p.streams[methodName] = &pendingStream{kind: kind, options: options}
	return nil
}

// RecordDefaultHandler records a controller's catch-all handler. A controller
// may have at most one, and it is mutually exclusive with routes.
func (s *MetadataStorage) RecordDefaultHandler(controller, methodName string, handler HandlerFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalized[controller]; ok {
		return fmt.Errorf("controller %q is already finalized; cannot record a default handler", controller)
	}

	p := s.pendingFor(controller)
	if p.defaultHandler != nil {
		return fmt.Errorf("controller %q already has default handler %q; cannot also register %q",
			controller, p.defaultHandlerName, methodName)
	}

	p.defaultHandlerName = methodName
	p.defaultHandler = handler
	return nil
}

// FinalizeController validates all pending facts for a controller, merges
// controller-level middleware and security into each route, orders routes by
// matching specificity, and freezes the declaration. Pending state for the
// controller is discarded. Every structural violation found is reported; a
// failed finalize must abort startup.
func (s *MetadataStorage) FinalizeController(controller, basePath string) (*ControllerDeclaration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.finalized[controller]; ok {
		return nil, fmt.Errorf("controller %q is already finalized", controller)
	}

	if err := validateBasePath(controller, basePath); err != nil {
		return nil, err
	}

	p, ok := s.pending[controller]
	if !ok {
		return nil, fmt.Errorf("controller %q has no recorded routes or default handler", controller)
	}
	if len(p.routes) > 0 && p.defaultHandler != nil {
		return nil, fmt.Errorf("controller %q declares both routes and a default handler; they are mutually exclusive", controller)
	}
	if len(p.routes) == 0 && p.defaultHandler == nil {
		return nil, fmt.Errorf("controller %q has no recorded routes or default handler", controller)
	}

	var errs *multierror.Error

	knownMethod := func(name string) bool {
		if _, ok := p.routes[name]; ok {
			return true
		}
		return p.defaultHandler != nil && name == p.defaultHandlerName
	}
	for name := range p.params {
		if _, ok := p.routes[name]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("controller %q: parameters recorded for unknown method %q", controller, name))
		}
	}
	for name := range p.middlewares {
		if name != "" && !knownMethod(name) {
			errs = multierror.Append(errs, fmt.Errorf("controller %q: middleware recorded for unknown method %q", controller, name))
		}
	}
	for name := range p.security {
		if name != "" && !knownMethod(name) {
			errs = multierror.Append(errs, fmt.Errorf("controller %q: security schemes recorded for unknown method %q", controller, name))
		}
	}
	for name := range p.streams {
		if _, ok := p.routes[name]; !ok {
			errs = multierror.Append(errs, fmt.Errorf("controller %q: stream info recorded for unknown method %q", controller, name))
		}
	}

	decl := &ControllerDeclaration{
		Name:            controller,
		BasePath:        normalizeBasePath(basePath),
		Middlewares:     p.middlewares[""],
		SecuritySchemes: p.security[""],
	}

	for _, name := range p.routeOrder {
		route := p.routes[name]

		params := append([]*ParameterDeclaration{}, p.params[name]...)
		sort.SliceStable(params, func(i, j int) bool { return params[i].Index < params[j].Index })
		route.Parameters = params

		if err := checkPathParamBijection(controller, route, params); err != nil {
			errs = multierror.Append(errs, err)
		}

		if info, ok := p.streams[name]; ok {
			if route.StreamKind == StreamNone {
				route.StreamKind = info.kind
			}
			route.StreamOptions = info.options
		}
		if route.StreamKind == StreamNone {
			// stream-typed returns imply their stream kind
			switch schemaTypeOf(route.ReturnSchema) {
			case FileStreamSchema:
				route.StreamKind = StreamFile
			case DataStreamSchema:
				route.StreamKind = StreamData
			}
		}
		if err := checkStreamConsistency(controller, name, route.StreamKind, route.ReturnSchema); err != nil {
			errs = multierror.Append(errs, err)
		}

		route.Middlewares = mergeMiddleware(p.middlewares[""], p.middlewares[name])
		route.SecuritySchemes = mergeStrings(p.security[""], p.security[name])

		decl.Routes = append(decl.Routes, route)
	}

	if p.defaultHandler != nil {
		decl.DefaultHandler = p.defaultHandler
		decl.DefaultHandlerMiddlewares = mergeMiddleware(p.middlewares[""], p.middlewares[p.defaultHandlerName])
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	sort.SliceStable(decl.Routes, func(i, j int) bool {
		return pathspec.Compare(decl.Routes[i].template, decl.Routes[j].template) < 0
	})

	s.finalized[controller] = decl
	s.order = append(s.order, controller)
	delete(s.pending, controller)
	return decl, nil
}

// Controller returns the finalized declaration for a controller name
func (s *MetadataStorage) Controller(name string) (*ControllerDeclaration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	decl, ok := s.finalized[name]
	return decl, ok
}

// Controllers returns all finalized declarations in finalization order
func (s *MetadataStorage) Controllers() []*ControllerDeclaration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*ControllerDeclaration, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.finalized[name])
	}
	return result
}

// IsFinalized reports whether a controller has been finalized
func (s *MetadataStorage) IsFinalized(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.finalized[name]
	return ok
}

// checkPathParamBijection verifies that the set of path placeholders in a
// route exactly matches the set of recorded path-kind parameter names. The
// three mismatch cases carry distinct messages.
func checkPathParamBijection(controller string, route *RouteDeclaration, params []*ParameterDeclaration) error {
	placeholders := route.template.ParamNames()
	placeholderSet := make(map[string]bool, len(placeholders))
	for _, name := range placeholders {
		placeholderSet[name] = true
	}

	paramSet := make(map[string]bool)
	for _, param := range params {
		if param.Kind != PathParam {
			continue
		}
		if paramSet[param.Name] {
			return fmt.Errorf("controller %q: method %q declares path parameter %q more than once",
				controller, route.MethodName, param.Name)
		}
		paramSet[param.Name] = true
		if !placeholderSet[param.Name] {
			return fmt.Errorf("controller %q: method %q: path parameter %q has no matching placeholder in %q",
				controller, route.MethodName, param.Name, route.Path)
		}
	}
	for _, name := range placeholders {
		if !paramSet[name] {
			return fmt.Errorf("controller %q: method %q: path placeholder %q has no matching path parameter",
				controller, route.MethodName, name)
		}
	}
	return nil
}

func checkStreamConsistency(controller, methodName string, kind StreamKind, returnSchema *Schema) error {
	schemaType := schemaTypeOf(returnSchema)
	switch kind {
	case StreamFile:
		if schemaType != FileStreamSchema {
			return fmt.Errorf("controller %q: method %q declares a file stream but returns %s",
				controller, methodName, returnSchema.describe())
		}
	case StreamData:
		if schemaType != DataStreamSchema {
			return fmt.Errorf("controller %q: method %q declares a data stream but returns %s",
				controller, methodName, returnSchema.describe())
		}
	case StreamNone:
		if schemaType == FileStreamSchema || schemaType == DataStreamSchema {
			return fmt.Errorf("controller %q: method %q returns %s but declares no stream kind",
				controller, methodName, returnSchema.describe())
		}
	}
	return nil
}

func checkLeafScalar(controller, methodName string, param *ParameterDeclaration) error {
	leaf := param.Schema.Leaf()
	if leaf == nil || (leaf.Type != StringSchema && leaf.Type != NumberSchema) {
		return fmt.Errorf("controller %q: method %q: %s parameter %q must have a string or number leaf schema, got %s",
			controller, methodName, param.Kind, param.Name, param.Schema.describe())
	}
	return nil
}

func validateBasePath(controller, basePath string) error {
	trimmed := strings.TrimSpace(basePath)
	if trimmed == "" {
		return fmt.Errorf("controller %q: base path cannot be empty", controller)
	}
	if trimmed != basePath {
		return fmt.Errorf("controller %q: base path %q cannot contain whitespace", controller, basePath)
	}
	if trimmed == "/" {
		return fmt.Errorf("controller %q: base path cannot be a bare %q", controller, "/")
	}
	if strings.Contains(trimmed, ":") {
		return fmt.Errorf("controller %q: base path %q cannot contain path placeholders", controller, basePath)
	}
	if !basePathCharset.MatchString(trimmed) {
		return fmt.Errorf("controller %q: base path %q contains characters outside [A-Za-z0-9/_.-]", controller, basePath)
	}
	return nil
}

func normalizeBasePath(basePath string) string {
	basePath = pathspec.Normalize(basePath)
	return strings.TrimSuffix(basePath, "/")
}

func schemaTypeOf(s *Schema) SchemaType {
	if s == nil {
		return NullSchema
	}
	return s.Type
}

func mergeMiddleware(class, method []MiddlewareFunc) []MiddlewareFunc {
	merged := make([]MiddlewareFunc, 0, len(class)+len(method))
	merged = append(merged, class...)
	merged = append(merged, method...)
	return merged
}

func mergeStrings(class, method []string) []string {
	merged := make([]string, 0, len(class)+len(method))
	merged = append(merged, class...)
	merged = append(merged, method...)
	return merged
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
