package crossbar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_QueryScalarCoercion(t *testing.T) {
	got, err := Validate("42", Number(), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, float64(42), got)

	got, err = Validate("-3.5", Number(), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, -3.5, got)

	got, err = Validate("true", Boolean(), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Validate("hello", String(), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	// URL-encoded values are decoded before coercion
	got, err = Validate("hello%20world", String(), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestValidate_QueryNumericStringFailsStringSchema(t *testing.T) {
	// a numeric query value is coerced to a number before type dispatch, so
	// it no longer satisfies a string schema
	_, err := Validate("42", String(), QueryParam, "")
	assert.ErrorContains(t, err, "must be a string")
}

func TestValidate_PathNumericStringPassesStringSchema(t *testing.T) {
	// coercion is query-specific: path values stay strings
	got, err := Validate("42", String(), PathParam, "")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestValidate_NumberAcceptsStringSpelling(t *testing.T) {
	got, err := Validate("17", Number(), PathParam, "")
	require.NoError(t, err)
	assert.Equal(t, float64(17), got)

	_, err = Validate("seventeen", Number(), PathParam, "")
	assert.ErrorContains(t, err, "must be a number")
}

func TestValidate_NumberAcceptsNativeKinds(t *testing.T) {
	got, err := Validate(3, Number(), BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, float64(3), got)

	got, err = Validate(int64(9), Number(), BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, float64(9), got)
}

func TestValidate_Boolean(t *testing.T) {
	got, err := Validate(true, Boolean(), BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Validate("FALSE", Boolean(), BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, false, got)

	_, err = Validate("yes", Boolean(), BodyParam, "")
	assert.ErrorContains(t, err, "must be a boolean")
}

func TestValidate_NilValue(t *testing.T) {
	got, err := Validate(nil, Null(), BodyParam, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Validate(nil, String(), BodyParam, "name")
	assert.ErrorContains(t, err, "name is required")
}

func TestValidate_Array(t *testing.T) {
	got, err := Validate([]any{"1", "2"}, Array(Number()), PathParam, "ids")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, got)

	_, err = Validate([]any{"1", "x"}, Array(Number()), PathParam, "ids")
	assert.ErrorContains(t, err, "ids[1] must be a number")

	_, err = Validate("not-a-list", Array(Number()), BodyParam, "ids")
	assert.ErrorContains(t, err, "must be an array")
}

func TestValidate_QueryJSONArray(t *testing.T) {
	got, err := Validate("[1,2,3]", Array(Number()), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, got)

	_, err = Validate("[1,2", Array(Number()), QueryParam, "")
	assert.ErrorContains(t, err, "malformed JSON")
}

func TestValidate_QueryJSONObject(t *testing.T) {
	schema := Object(map[string]*Schema{"page": Number()}, "page")

	got, err := Validate(`{"page": 2}`, schema, QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"page": float64(2)}, got)

	_, err = Validate(`{"page":`, schema, QueryParam, "")
	assert.ErrorContains(t, err, "malformed JSON")
}

func TestValidate_ObjectRequiredAndUnknownKeys(t *testing.T) {
	schema := Object(map[string]*Schema{
		"name": String(),
		"age":  Number(),
	}, "name")

	got, err := Validate(map[string]any{
		"name":    "ada",
		"age":     float64(36),
		"unknown": "dropped",
	}, schema, BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "age": float64(36)}, got)

	_, err = Validate(map[string]any{"age": float64(36)}, schema, BodyParam, "")
	assert.ErrorContains(t, err, `missing required property "name"`)
}

func TestValidate_NestedObjectErrorPath(t *testing.T) {
	schema := Object(map[string]*Schema{
		"profile": Object(map[string]*Schema{"age": Number()}),
	})

	_, err := Validate(map[string]any{
		"profile": map[string]any{"age": "old"},
	}, schema, BodyParam, "")
	assert.ErrorContains(t, err, "profile.age must be a number")
}

func TestValidate_Union(t *testing.T) {
	schema := Union(Number(), Boolean())

	got, err := Validate(float64(5), schema, BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, float64(5), got)

	got, err = Validate(true, schema, BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, true, got)

	_, err = Validate([]any{}, schema, BodyParam, "flag")
	assert.ErrorContains(t, err, "matched no union option")
}

func TestValidate_UnionFirstMatchWins(t *testing.T) {
	// string and number both accept "17"; declaration order decides
	got, err := Validate("17", Union(String(), Number()), BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, "17", got)
}

func TestValidate_Tuple(t *testing.T) {
	schema := Tuple(Number(), String())

	got, err := Validate([]any{float64(1), "x"}, schema, BodyParam, "")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "x"}, got)

	_, err = Validate([]any{float64(1)}, schema, BodyParam, "pair")
	assert.ErrorContains(t, err, "pair must have exactly 2 elements, got 1")

	_, err = Validate([]any{"x", "y"}, schema, BodyParam, "pair")
	assert.ErrorContains(t, err, "pair[0] must be a number")
}

func TestValidate_QueryJSONTuple(t *testing.T) {
	got, err := Validate(`[1, "x"]`, Tuple(Number(), String()), QueryParam, "")
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "x"}, got)
}

func TestValidate_FileBypassesValidation(t *testing.T) {
	f := &UploadedFile{Name: "a.txt"}
	got, err := Validate(f, File(), FileParam, "")
	require.NoError(t, err)
	assert.Same(t, f, got)
}
