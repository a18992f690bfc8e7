package crossbar

import "errors"

// ErrNextCalledTwice is returned when a middleware stage invokes its next
// continuation a second time after it has already resolved. The guard catches
// accidental double-dispatch bugs in user middleware.
var ErrNextCalledTwice = errors.New("next called twice")

// Pipeline is an ordered middleware chain executed against one request
// context. Execution is cooperative and strictly sequential: stage k+1 never
// starts before stage k hands off via its next continuation, and a stage that
// never invokes next short-circuits everything after it.
type Pipeline struct {
	stages []MiddlewareFunc
}

// NewPipeline builds a pipeline over the given stages in order
func NewPipeline(stages ...MiddlewareFunc) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run dispatches the chain starting at the first stage
func (p *Pipeline) Run(c *Context) error {
	return p.runFrom(c, 0)
}

func (p *Pipeline) runFrom(c *Context, index int) error {
	if index >= len(p.stages) {
		return nil
	}

	called := false
	next := func() error {
		if called {
			return ErrNextCalledTwice
		}
		called = true
		return p.runFrom(c, index+1)
	}

	return p.stages[index](c, next)
}

// handlerStage wraps a terminal handler invocation as the synthetic last
// pipeline stage; it never calls next
func handlerStage(fn func(c *Context) error) MiddlewareFunc {
	return func(c *Context, _ NextFunc) error {
		return fn(c)
	}
}
