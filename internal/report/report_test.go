package report

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrintRouteTable(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	PrintRouteTable(&buf, []Row{
		{Method: "GET", Path: "/users/:id", Controller: "Users", Handler: "Get"},
		{Method: "POST", Path: "/users", Controller: "Users", Handler: "Create", Middlewares: 2, Security: []string{"bearer"}},
		{Method: "GET", Path: "/media/feed", Controller: "Media", Handler: "Feed", Stream: "data"},
	})

	out := buf.String()
	assert.Contains(t, out, "METHOD")
	assert.Contains(t, out, "GET     /users/:id  Users.Get")
	assert.Contains(t, out, "Users.Create  (2 middleware, security: bearer)")
	assert.Contains(t, out, "Media.Feed  (data stream)")
}

func TestPrintRouteTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintRouteTable(&buf, nil)
	assert.Equal(t, "no routes registered\n", buf.String())
}
