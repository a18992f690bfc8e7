package crossbar

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchRoute(t *testing.T, c *Context, route *RouteDeclaration) *testResponse {
	t.Helper()
	NewDispatcher(nil).Dispatch(c, route)
	return c.Response().(*testResponse)
}

func decodeErrorBody(t *testing.T, res *testResponse) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(res.body.Bytes(), &body))
	return body
}

func TestDispatch_SuccessfulJSONResult(t *testing.T) {
	route := &RouteDeclaration{
		MethodName: "Get",
		HTTPMethod: "GET",
		Parameters: []*ParameterDeclaration{
			{Index: 0, Kind: PathParam, Name: "id", Schema: Number(), Required: true},
		},
		Handler: func(c *Context, args []any) (any, error) {
			return map[string]any{"id": args[0]}, nil
		},
	}

	c := newTestContext(&Request{PathParams: map[string]string{"id": "7"}})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusOK, res.statusCode)
	assert.Equal(t, "application/json", res.headers.Get("Content-Type"))
	assert.JSONEq(t, `{"id": 7}`, res.body.String())
}

func TestDispatch_SetsRequestIDHeader(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) { return nil, nil },
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.NotEmpty(t, c.RequestID)
	assert.Equal(t, c.RequestID, res.headers.Get("X-Request-Id"))
}

func TestDispatch_ValidationFailureBody(t *testing.T) {
	route := &RouteDeclaration{
		Parameters: []*ParameterDeclaration{
			{Index: 0, Kind: PathParam, Name: "id", Schema: Number(), Required: true},
		},
		Handler: func(c *Context, args []any) (any, error) {
			t.Fatal("handler must not run on validation failure")
			return nil, nil
		},
	}

	c := newTestContext(&Request{PathParams: map[string]string{"id": "abc"}})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusBadRequest, res.statusCode)
	body := decodeErrorBody(t, res)
	assert.Equal(t, "Bad Request", body.Error)
	assert.Contains(t, body.Message, "[Bad Request]: ")
	assert.Contains(t, body.Message, `path parameter "id"`)
}

func TestDispatch_HandlerErrorMapsToStatus(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) {
			return nil, ErrNotFound("user not found")
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusNotFound, res.statusCode)
	body := decodeErrorBody(t, res)
	assert.Equal(t, "Not Found", body.Error)
	assert.Equal(t, "[Not Found]: user not found", body.Message)
}

func TestDispatch_MiddlewareShortCircuit(t *testing.T) {
	handlerRan := false
	route := &RouteDeclaration{
		Middlewares: []MiddlewareFunc{
			func(c *Context, next NextFunc) error {
				return ErrUnauthorized("missing token")
			},
		},
		Handler: func(c *Context, args []any) (any, error) {
			handlerRan = true
			return nil, nil
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.False(t, handlerRan)
	assert.Equal(t, http.StatusUnauthorized, res.statusCode)
	body := decodeErrorBody(t, res)
	assert.Equal(t, "Unauthorized", body.Error)
}

func TestDispatch_NilResultIsNoContent(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) { return nil, nil },
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusNoContent, res.statusCode)
	assert.Zero(t, res.body.Len())
}

func TestDispatch_ResponseOverridesStatus(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) {
			return Created(map[string]any{"id": 1}), nil
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusCreated, res.statusCode)
	assert.JSONEq(t, `{"id": 1}`, res.body.String())
}

func TestDispatch_ResponseWithoutBody(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) {
			return NewResponse(http.StatusAccepted, nil), nil
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusAccepted, res.statusCode)
	assert.Zero(t, res.body.Len())
}

func TestDispatch_UnclassifiedErrorBecomesGeneric500(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) {
			return nil, errors.New("database on fire")
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusInternalServerError, res.statusCode)
	body := decodeErrorBody(t, res)
	assert.Equal(t, "Internal Server Error", body.Error)
	// internals never leak into the response
	assert.NotContains(t, body.Message, "database on fire")
	assert.Contains(t, body.Message, "an unexpected error occurred")
}

func TestDispatch_MissingInjectionIs500(t *testing.T) {
	route := &RouteDeclaration{
		Parameters: []*ParameterDeclaration{
			{Index: 0, Kind: ContextParam, Name: "session", Required: true},
		},
		Handler: func(c *Context, args []any) (any, error) { return nil, nil },
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusInternalServerError, res.statusCode)
	body := decodeErrorBody(t, res)
	assert.Equal(t, "Missing Injection", body.Error)
}

func TestDispatch_ErrorAfterResponseStartedIsNotWritten(t *testing.T) {
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) {
			c.Response().Status(http.StatusOK)
			c.Response().Write([]byte("partial"))
			return nil, ErrInternalServerError("too late")
		},
	}

	c := newTestContext(&Request{})
	res := dispatchRoute(t, c, route)

	assert.Equal(t, http.StatusOK, res.statusCode)
	assert.Equal(t, "partial", res.body.String())
}

func TestDispatch_ReleasesUnboundFiles(t *testing.T) {
	f := spoolTestFile(t, "doc", "d.txt", "x")
	route := &RouteDeclaration{
		Handler: func(c *Context, args []any) (any, error) { return nil, nil },
	}

	c := newTestContext(&Request{Files: []*UploadedFile{f}})
	dispatchRoute(t, c, route)

	assert.True(t, f.Cleaned())
}

func TestDispatchDefault_RunsCatchAll(t *testing.T) {
	var order []string
	decl := &ControllerDeclaration{
		Name: "Proxy",
		DefaultHandlerMiddlewares: []MiddlewareFunc{
			func(c *Context, next NextFunc) error {
				order = append(order, "mw")
				return next()
			},
		},
		DefaultHandler: func(c *Context, args []any) (any, error) {
			order = append(order, "handler")
			return map[string]any{"proxied": true}, nil
		},
	}

	c := newTestContext(&Request{Method: "GET", Path: "/proxy/anything"})
	NewDispatcher(nil).DispatchDefault(c, decl)
	res := c.Response().(*testResponse)

	assert.Equal(t, []string{"mw", "handler"}, order)
	assert.Equal(t, http.StatusOK, res.statusCode)
	assert.JSONEq(t, `{"proxied": true}`, res.body.String())
}

func TestDispatch_QueryCoercionEndToEnd(t *testing.T) {
	var got []any
	route := &RouteDeclaration{
		Parameters: []*ParameterDeclaration{
			{Index: 0, Kind: QueryParam, Name: "n", Schema: Number(), Required: true},
			{Index: 1, Kind: QueryParam, Name: "flag", Schema: Boolean(), Required: true},
		},
		Handler: func(c *Context, args []any) (any, error) {
			got = args
			return nil, nil
		},
	}

	c := newTestContext(&Request{Query: url.Values{"n": {"42"}, "flag": {"true"}}})
	dispatchRoute(t, c, route)

	assert.Equal(t, []any{float64(42), true}, got)
}
