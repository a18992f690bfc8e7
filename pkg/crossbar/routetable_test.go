package crossbar

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRouteTable(t *testing.T) {
	color.NoColor = true

	s := NewMetadataStorage()
	require.NoError(t, s.RecordRoute("Users", testRoute("List", "GET", "/", Array(Object(nil)))))
	_, err := s.FinalizeController("Users", "/users")
	require.NoError(t, err)

	require.NoError(t, s.RecordDefaultHandler("Proxy", "Handle", noopHandler))
	_, err = s.FinalizeController("Proxy", "/proxy")
	require.NoError(t, err)

	var buf bytes.Buffer
	WriteRouteTable(&buf, s)

	out := buf.String()
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "/users/")
	assert.Contains(t, out, "Users.List")
	assert.Contains(t, out, "ANY")
	assert.Contains(t, out, "/proxy/*")
	assert.Contains(t, out, "Proxy.default")
}
