package crossbar

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var numericValueRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Validate recursively validates and coerces a raw extracted value against
// its declared schema, returning the typed value the handler receives. It is
// pure: deterministic, no side effects beyond the returned error. The kind
// selects source-specific coercions (query values arrive as strings and are
// decoded and coerced before type dispatch); path accumulates the position
// inside nested values for error messages.
func Validate(value any, schema *Schema, kind ParamKind, path string) (any, error) {
	if kind == FileParam || schemaTypeOf(schema) == FileSchema {
		// binary payload ownership lives with the extractor
		return value, nil
	}

	if value == nil {
		if schemaTypeOf(schema) == NullSchema {
			return nil, nil
		}
		return nil, ErrBadRequestf("%s is required", valueLabel(path))
	}

	if kind == QueryParam {
		if str, ok := value.(string); ok {
			value = coerceQueryScalar(str)
		}
	}

	switch schema.Type {
	case NullSchema:
		return nil, nil

	case StringSchema:
		str, ok := value.(string)
		if !ok {
			return nil, ErrBadRequestf("%s must be a string", valueLabel(path))
		}
		return str, nil

	case NumberSchema:
		return validateNumber(value, path)

	case BooleanSchema:
		return validateBoolean(value, path)

	case ArraySchema:
		return validateArray(value, schema, kind, path)

	case ObjectSchema:
		return validateObject(value, schema, kind, path)

	case UnionSchema:
		return validateUnion(value, schema, kind, path)

	case TupleSchema:
		return validateTuple(value, schema, kind, path)

	default:
		return nil, ErrBadRequestf("%s has an unsupported schema type %q", valueLabel(path), schema.Type)
	}
}

// coerceQueryScalar URL-decodes a query value and coerces numeric and boolean
// spellings before type dispatch
func coerceQueryScalar(str string) any {
	if decoded, err := url.QueryUnescape(str); err == nil {
		str = decoded
	}
	if numericValueRegex.MatchString(str) {
		if n, err := strconv.ParseFloat(str, 64); err == nil {
			return n
		}
	}
	switch strings.ToLower(str) {
	case "true":
		return true
	case "false":
		return false
	}
	return str
}

func validateNumber(value any, path string) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, ErrBadRequestf("%s must be a number, got %q", valueLabel(path), v.String())
		}
		return n, nil
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) {
			return nil, ErrBadRequestf("%s must be a number, got %q", valueLabel(path), v)
		}
		return n, nil
	default:
		return nil, ErrBadRequestf("%s must be a number", valueLabel(path))
	}
}

func validateBoolean(value any, path string) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, ErrBadRequestf("%s must be a boolean, got %q", valueLabel(path), v)
	default:
		return nil, ErrBadRequestf("%s must be a boolean", valueLabel(path))
	}
}

func validateArray(value any, schema *Schema, kind ParamKind, path string) (any, error) {
	items, err := asSlice(value, kind, path, "an array")
	if err != nil {
		return nil, err
	}

	result := make([]any, len(items))
	for i, item := range items {
		validated, err := Validate(item, schema.Items, kind, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		result[i] = validated
	}
	return result, nil
}

func validateObject(value any, schema *Schema, kind ParamKind, path string) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		// query values may carry JSON-encoded objects
		if str, isStr := value.(string); isStr && kind == QueryParam {
			if err := json.Unmarshal([]byte(str), &obj); err != nil {
				return nil, ErrBadRequestf("%s must be an object, got malformed JSON", valueLabel(path))
			}
		} else {
			return nil, ErrBadRequestf("%s must be an object", valueLabel(path))
		}
	}

	for _, required := range schema.Required {
		if _, present := obj[required]; !present {
			return nil, ErrBadRequestf("%s is missing required property %q", valueLabel(path), required)
		}
	}

	// only declared properties are carried over; unknown keys are dropped
	result := make(map[string]any, len(schema.Properties))
	for name, propSchema := range schema.Properties {
		raw, present := obj[name]
		if !present {
			continue
		}
		validated, err := Validate(raw, propSchema, kind, joinPath(path, name))
		if err != nil {
			return nil, err
		}
		result[name] = validated
	}
	return result, nil
}

func validateUnion(value any, schema *Schema, kind ParamKind, path string) (any, error) {
	var errs *multierror.Error
	for _, option := range schema.Options {
		validated, err := Validate(value, option, kind, path)
		if err == nil {
			return validated, nil
		}
		errs = multierror.Append(errs, err)
	}
	return nil, ErrBadRequestf("%s matched no union option: %s", valueLabel(path), errs.Error())
}

func validateTuple(value any, schema *Schema, kind ParamKind, path string) (any, error) {
	items, err := asSlice(value, kind, path, "a tuple")
	if err != nil {
		return nil, err
	}
	if len(items) != len(schema.Elements) {
		return nil, ErrBadRequestf("%s must have exactly %d elements, got %d", valueLabel(path), len(schema.Elements), len(items))
	}

	result := make([]any, len(items))
	for i, item := range items {
		validated, err := Validate(item, schema.Elements[i], kind, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		result[i] = validated
	}
	return result, nil
}

// asSlice accepts a []any value, or for query-sourced values a JSON-encoded
// string that parses into one
func asSlice(value any, kind ParamKind, path, what string) ([]any, error) {
	if items, ok := value.([]any); ok {
		return items, nil
	}
	if str, ok := value.(string); ok && kind == QueryParam {
		var items []any
		if err := json.Unmarshal([]byte(str), &items); err != nil {
			return nil, ErrBadRequestf("%s must be %s, got malformed JSON", valueLabel(path), what)
		}
		return items, nil
	}
	return nil, ErrBadRequestf("%s must be %s", valueLabel(path), what)
}

func valueLabel(path string) string {
	if path == "" {
		return "value"
	}
	return path
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
