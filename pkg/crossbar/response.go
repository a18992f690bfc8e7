package crossbar

// Response represents a handler result with an explicit status code. Return
// it from a route handler when the default 200 is not what you want.
//
//	func createUser(c *crossbar.Context, args []any) (any, error) {
//	    ...
//	    return crossbar.Created(user), nil
//	}
type Response struct {
	// StatusCode is the HTTP status code to respond with
	StatusCode int `json:"-"`

	// Body is JSON-encoded and sent to the client; nil means an empty body
	Body any `json:"body,omitempty"`
}

// NewResponse creates a Response with the given status code and body
func NewResponse(statusCode int, body any) *Response {
	return &Response{StatusCode: statusCode, Body: body}
}

// OK creates a 200 OK response with the given body
func OK(body any) *Response {
	return NewResponse(200, body)
}

// Created creates a 201 Created response with the given body
func Created(body any) *Response {
	return NewResponse(201, body)
}

// NoContent creates a 204 No Content response
func NoContent() *Response {
	return NewResponse(204, nil)
}
