package crossbar

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Request is the read-only view of an incoming HTTP request that the host
// adapter hands to the dispatch core. Adapters populate it once per request;
// the core never mutates it.
type Request struct {
	// Method is the HTTP method (GET, POST, ...)
	Method string

	// Path is the request URL path
	Path string

	// Headers holds the request headers; lookups are case-insensitive
	Headers http.Header

	// PathParams holds the captured path placeholder values by name
	PathParams map[string]string

	// Query holds the decoded query string values
	Query url.Values

	// RawBody is the unparsed request payload
	RawBody []byte

	// ContentType is the request Content-Type header without parameters
	ContentType string

	// FormValues holds multipart form fields when the adapter parsed a
	// multipart payload; nil otherwise
	FormValues url.Values

	// Files holds the uploaded files parsed from a multipart payload, in
	// upload order
	Files []*UploadedFile
}

// ResponseWriter is the response surface the core needs from a host adapter
type ResponseWriter interface {
	// SetHeader sets a response header; must be called before the first Write
	SetHeader(key, value string)

	// Status sets the response status code; must be called before the first Write
	Status(code int)

	// Write sends body bytes, committing status and headers on first use
	Write(p []byte) (int, error)

	// Flush pushes buffered bytes to the client, if the transport supports it
	Flush()

	// HasStarted reports whether status and headers have been committed
	HasStarted() bool
}

// Context is the per-request mutable key/value store plus request and
// response handles shared across one request's middleware pipeline. It is
// created fresh per incoming request, exclusively owned by that request, and
// discarded at request end.
type Context struct {
	// RequestID uniquely identifies this request; set by the dispatcher
	RequestID string

	request  *Request
	response ResponseWriter
	store    map[string]any

	// bound tracks uploaded files handed to handler parameters, for
	// post-request cleanup
	bound []*UploadedFile
}

// NewContext creates a request context around the given request and response
func NewContext(req *Request, res ResponseWriter) *Context {
	return &Context{
		request:  req,
		response: res,
		store:    make(map[string]any),
	}
}

// Request returns the read-only request view
func (c *Context) Request() *Request {
	return c.request
}

// Response returns the response writer
func (c *Context) Response() ResponseWriter {
	return c.response
}

// Get retrieves a value stored on the context, or nil when absent
func (c *Context) Get(key string) any {
	return c.store[key]
}

// Lookup retrieves a value stored on the context and whether it was set
func (c *Context) Lookup(key string) (any, bool) {
	v, ok := c.store[key]
	return v, ok
}

// Set stores a value on the context for later middleware or handler injection
func (c *Context) Set(key string, val any) {
	c.store[key] = val
}

// JSON serializes v and writes it with the given status code
func (c *Context) JSON(code int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.response.SetHeader("Content-Type", "application/json")
	c.response.Status(code)
	_, err = c.response.Write(body)
	return err
}

// NoContent responds with the given status code and an empty body
func (c *Context) NoContent(code int) {
	c.response.Status(code)
}

// markBound records that an uploaded file was handed to a handler parameter
func (c *Context) markBound(f *UploadedFile) {
	c.bound = append(c.bound, f)
}

// releaseFiles runs the uploaded-file lifecycle at request end: bound files
// not marked keep-alive are cleaned up, and files never bound to any
// parameter are cleaned up unconditionally.
func (c *Context) releaseFiles() {
	if c.request == nil {
		return
	}
	boundSet := make(map[*UploadedFile]bool, len(c.bound))
	for _, f := range c.bound {
		boundSet[f] = true
		if !f.KeepAlive() {
			f.Cleanup()
		}
	}
	for _, f := range c.request.Files {
		if !boundSet[f] {
			f.Cleanup()
		}
	}
}
