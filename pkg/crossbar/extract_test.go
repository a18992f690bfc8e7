package crossbar

import (
	"net/http"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(req *Request) *Context {
	if req.Headers == nil {
		req.Headers = make(http.Header)
	}
	if req.Query == nil {
		req.Query = make(url.Values)
	}
	if req.PathParams == nil {
		req.PathParams = make(map[string]string)
	}
	return NewContext(req, newTestResponse())
}

func TestExtractArgs_PathParameter(t *testing.T) {
	c := newTestContext(&Request{PathParams: map[string]string{"id": "42"}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: PathParam, Name: "id", Schema: Number(), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(42)}, args)
}

func TestExtractArgs_QueryParameter(t *testing.T) {
	c := newTestContext(&Request{Query: url.Values{"page": {"3"}}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: QueryParam, Name: "page", Schema: Number(), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3)}, args)
}

func TestExtractArgs_AbsentOptionalQuerySkipsValidation(t *testing.T) {
	c := newTestContext(&Request{})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: QueryParam, Name: "page", Schema: Number(), Required: false},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, args)
}

func TestExtractArgs_MissingRequiredQueryFails(t *testing.T) {
	c := newTestContext(&Request{})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: QueryParam, Name: "page", Schema: Number(), Required: true},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, `query parameter "page"`)
	assert.ErrorContains(t, err, "required")
}

func TestExtractArgs_UnnamedQueryBindsWholeMap(t *testing.T) {
	c := newTestContext(&Request{Query: url.Values{
		"limit": {"10"},
		"tag":   {"a", "b"},
	}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: QueryParam, Schema: Object(map[string]*Schema{
			"limit": Number(),
			"tag":   Array(String()),
		}), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"limit": float64(10),
		"tag":   []any{"a", "b"},
	}, args[0])
}

func TestExtractArgs_HeaderLookupIsCaseInsensitive(t *testing.T) {
	headers := make(http.Header)
	headers.Set("X-Api-Key", "secret")
	c := newTestContext(&Request{Headers: headers})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: HeaderParam, Name: "x-api-key", Schema: String(), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"secret"}, args)
}

func TestExtractArgs_UnnamedHeaderBindsLowercasedMap(t *testing.T) {
	headers := make(http.Header)
	headers.Set("X-Api-Key", "secret")
	c := newTestContext(&Request{Headers: headers})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: HeaderParam, Schema: Object(map[string]*Schema{
			"x-api-key": String(),
		}), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x-api-key": "secret"}, args[0])
}

func TestExtractArgs_JSONBody(t *testing.T) {
	c := newTestContext(&Request{
		ContentType: "application/json",
		RawBody:     []byte(`{"name": "ada", "age": 36}`),
	})

	schema := Object(map[string]*Schema{
		"name": String(),
		"age":  Number(),
	}, "name")

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: BodyParam, Schema: schema, Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "age": float64(36)}, args[0])
}

func TestExtractArgs_MalformedJSONBody(t *testing.T) {
	c := newTestContext(&Request{
		ContentType: "application/json",
		RawBody:     []byte(`{"name":`),
	})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: BodyParam, Schema: Object(nil), Required: true},
	})
	assert.ErrorContains(t, err, "malformed JSON body")
}

func TestExtractArgs_NamedBodyPicksProperty(t *testing.T) {
	c := newTestContext(&Request{
		ContentType: "application/json",
		RawBody:     []byte(`{"user": {"name": "ada"}, "other": 1}`),
	})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: BodyParam, Name: "user", Schema: Object(map[string]*Schema{
			"name": String(),
		}), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada"}, args[0])
}

func TestExtractArgs_FormBodyWithBracketedKeys(t *testing.T) {
	c := newTestContext(&Request{
		ContentType: "application/x-www-form-urlencoded",
		RawBody:     []byte("user[name]=ada&user[age]=36&tags[]=go&tags[]=http"),
	})

	schema := Object(map[string]*Schema{
		"user": Object(map[string]*Schema{
			"name": String(),
			"age":  Number(),
		}),
		"tags": Array(String()),
	})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: BodyParam, Schema: schema, Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"user": map[string]any{"name": "ada", "age": float64(36)},
		"tags": []any{"go", "http"},
	}, args[0])
}

func TestExtractArgs_RawBody(t *testing.T) {
	c := newTestContext(&Request{RawBody: []byte("payload")})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: RawBodyParam, Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), args[0])
}

func TestExtractArgs_EmptyRequiredRawBodyFails(t *testing.T) {
	c := newTestContext(&Request{})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: RawBodyParam, Required: true},
	})
	assert.ErrorContains(t, err, "request body is required")
}

func TestExtractArgs_ContextInjection(t *testing.T) {
	c := newTestContext(&Request{})
	c.Set("userID", "u-1")

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: ContextParam, Name: "userID", Required: true},
		{Index: 1, Kind: ContextParam, Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "u-1", args[0])
	assert.Same(t, c, args[1])
}

func TestExtractArgs_MissingRequiredInjection(t *testing.T) {
	c := newTestContext(&Request{})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: ContextParam, Name: "userID", Required: true},
	})
	require.Error(t, err)
	assert.True(t, IsMissingInjection(err))
}

func TestExtractArgs_FileByFieldName(t *testing.T) {
	avatar := spoolTestFile(t, "avatar", "a.png", "img")
	doc := spoolTestFile(t, "doc", "d.pdf", "pdf")
	c := newTestContext(&Request{Files: []*UploadedFile{avatar, doc}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "avatar", Schema: File(), Required: true},
	})
	require.NoError(t, err)
	assert.Same(t, avatar, args[0])
}

func TestExtractArgs_UnnamedFileBindsAll(t *testing.T) {
	a := spoolTestFile(t, "a", "a.txt", "1")
	b := spoolTestFile(t, "b", "b.txt", "2")
	c := newTestContext(&Request{Files: []*UploadedFile{a, b}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Schema: File(), Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []*UploadedFile{a, b}, args[0])
}

func TestExtractArgs_ForceArrayWrapsSingleFile(t *testing.T) {
	f := spoolTestFile(t, "doc", "d.txt", "x")
	c := newTestContext(&Request{Files: []*UploadedFile{f}})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "doc", Schema: File(), Required: true,
			File: &FileOptions{ForceArray: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []*UploadedFile{f}, args[0])
}

func TestExtractArgs_FileMaxCountExceeded(t *testing.T) {
	a := spoolTestFile(t, "doc", "a.txt", "1")
	b := spoolTestFile(t, "doc", "b.txt", "2")
	c := newTestContext(&Request{Files: []*UploadedFile{a, b}})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "doc", Schema: File(), Required: true,
			File: &FileOptions{MaxCount: 1}},
	})
	assert.ErrorContains(t, err, "at most 1 files")
}

func TestExtractArgs_FileMaxSizeExceeded(t *testing.T) {
	f := spoolTestFile(t, "doc", "big.txt", "0123456789")
	c := newTestContext(&Request{Files: []*UploadedFile{f}})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "doc", Schema: File(), Required: true,
			File: &FileOptions{MaxSize: 4}},
	})
	assert.ErrorContains(t, err, "exceeds the 4 byte limit")
}

func TestExtractArgs_MissingRequiredFileNamesField(t *testing.T) {
	c := newTestContext(&Request{})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "avatar", Schema: File(), Required: true},
	})
	assert.ErrorContains(t, err, `missing uploaded file for field "avatar"`)
}

func TestExtractArgs_AbsentOptionalFile(t *testing.T) {
	c := newTestContext(&Request{})

	args, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: FileParam, Name: "avatar", Schema: File(), Required: false},
		{Index: 1, Kind: FileParam, Name: "docs", Schema: File(), Required: false,
			File: &FileOptions{ForceArray: true}},
	})
	require.NoError(t, err)
	assert.Nil(t, args[0])
	assert.Equal(t, []*UploadedFile{}, args[1])
}

func TestExpandBracketKeys(t *testing.T) {
	values := url.Values{
		"a[b][0]": {"1"},
		"a[b][1]": {"two"},
		"a[flag]": {"true"},
		"a[none]": {"null"},
		"plain":   {"x"},
	}

	got := ExpandBracketKeys(values)
	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b":    []any{float64(1), "two"},
			"flag": true,
			"none": nil,
		},
		"plain": "x",
	}, got)
}

func TestWrapParamError_PrefixesKindAndName(t *testing.T) {
	c := newTestContext(&Request{Query: url.Values{"n": {"abc"}}})

	_, err := ExtractArgs(c, []*ParameterDeclaration{
		{Index: 0, Kind: QueryParam, Name: "n", Schema: Number(), Required: true},
	})
	require.Error(t, err)
	httpErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, `query parameter "n"`)
}

// spoolTestFile writes content to a real temp file and wraps it as an
// UploadedFile so lifecycle tests exercise actual deletion
func spoolTestFile(t *testing.T, field, name, content string) *UploadedFile {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "upload-*")
	require.NoError(t, err)
	_, err = tmp.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return &UploadedFile{
		FieldName: field,
		Name:      name,
		Size:      int64(len(content)),
		tmpPath:   tmp.Name(),
	}
}
