package crossbar

import (
	"bytes"
	"net/http"
)

// testResponse records everything written through the ResponseWriter surface
// so tests can assert on status, headers, and body without a live transport.
type testResponse struct {
	headers    http.Header
	statusCode int
	body       bytes.Buffer
	started    bool
	flushes    int
}

func newTestResponse() *testResponse {
	return &testResponse{headers: make(http.Header)}
}

func (r *testResponse) SetHeader(key, value string) {
	r.headers.Set(key, value)
}

func (r *testResponse) Status(code int) {
	if !r.started {
		r.statusCode = code
		r.started = true
	}
}

func (r *testResponse) Write(p []byte) (int, error) {
	if !r.started {
		r.statusCode = http.StatusOK
		r.started = true
	}
	return r.body.Write(p)
}

func (r *testResponse) Flush() {
	r.flushes++
}

func (r *testResponse) HasStarted() bool {
	return r.started
}
