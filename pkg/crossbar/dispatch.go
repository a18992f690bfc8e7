package crossbar

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// ErrorBody is the JSON shape of a structured error response
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Dispatcher drives one finalized route per request: it assembles the
// middleware pipeline around a synthetic core stage that extracts parameters,
// invokes the handler, and serializes the result, then maps any error that
// escapes the pipeline to an HTTP status.
type Dispatcher struct {
	logger hclog.Logger
}

// NewDispatcher creates a dispatcher. A nil logger disables logging.
func NewDispatcher(logger hclog.Logger) *Dispatcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{logger: logger}
}

// Dispatch runs one request through a route's pipeline. The context must be
// freshly built for this request by the host adapter. Uploaded files are
// released after the response resolves, success or failure.
func (d *Dispatcher) Dispatch(c *Context, route *RouteDeclaration) {
	defer c.releaseFiles()

	d.prepare(c)

	stages := append(append([]MiddlewareFunc{}, route.Middlewares...), handlerStage(func(c *Context) error {
		args, err := ExtractArgs(c, route.Parameters)
		if err != nil {
			return err
		}
		result, err := route.Handler(c, args)
		if err != nil {
			return err
		}
		switch route.StreamKind {
		case StreamFile:
			return writeFileStream(c, result, route.StreamOptions)
		case StreamData:
			return writeDataStream(c, result)
		default:
			return d.writeResult(c, result)
		}
	}))

	if err := NewPipeline(stages...).Run(c); err != nil {
		d.RespondError(c, err)
	}
}

// DispatchDefault runs one request through a controller's catch-all handler
func (d *Dispatcher) DispatchDefault(c *Context, decl *ControllerDeclaration) {
	defer c.releaseFiles()

	d.prepare(c)

	stages := append(append([]MiddlewareFunc{}, decl.DefaultHandlerMiddlewares...), handlerStage(func(c *Context) error {
		result, err := decl.DefaultHandler(c, nil)
		if err != nil {
			return err
		}
		return d.writeResult(c, result)
	}))

	if err := NewPipeline(stages...).Run(c); err != nil {
		d.RespondError(c, err)
	}
}

func (d *Dispatcher) prepare(c *Context) {
	if c.RequestID == "" {
		c.RequestID = uuid.NewString()
	}
	c.Response().SetHeader("X-Request-Id", c.RequestID)
}

// writeResult serializes a non-stream handler result. A nil result with an
// untouched response becomes 204; a *Response return overrides the status.
func (d *Dispatcher) writeResult(c *Context, result any) error {
	res := c.Response()

	if resp, ok := result.(*Response); ok {
		if resp.Body == nil {
			res.Status(resp.StatusCode)
			return nil
		}
		return c.JSON(resp.StatusCode, resp.Body)
	}

	if result == nil {
		if !res.HasStarted() {
			res.Status(http.StatusNoContent)
		}
		return nil
	}

	return c.JSON(http.StatusOK, result)
}

// RespondError maps an error escaping the pipeline to an HTTP response. A
// started response cannot be amended, so the error is only logged then.
// Unclassified errors are always logged before the generic 500 to preserve
// observability without leaking internals.
func (d *Dispatcher) RespondError(c *Context, err error) {
	res := c.Response()

	if httpErr, ok := err.(*Error); ok {
		if IsMissingInjection(httpErr) {
			d.logger.Error("missing context injection", "request_id", c.RequestID, "error", httpErr.Message)
		}
		if res.HasStarted() {
			d.logger.Debug("error after response started", "request_id", c.RequestID, "error", httpErr.Error())
			return
		}
		c.JSON(httpErr.StatusCode, ErrorBody{Error: httpErr.Kind, Message: httpErr.Error()})
		return
	}

	d.logger.Error("unhandled error", "request_id", c.RequestID, "error", err.Error())
	if res.HasStarted() {
		return
	}
	generic := ErrInternalServerError("an unexpected error occurred")
	c.JSON(generic.StatusCode, ErrorBody{Error: generic.Kind, Message: generic.Error()})
}
