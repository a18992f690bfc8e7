package crossbar

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ExtractArgs produces the positional argument list for a route handler, one
// slot per parameter declaration in declaration order. Extracted values
// (except context injections and raw bodies) are run through the validator;
// failures are re-wrapped with the parameter's kind and name.
func ExtractArgs(c *Context, params []*ParameterDeclaration) ([]any, error) {
	args := make([]any, 0, len(params))
	for _, param := range params {
		value, err := extractOne(c, param)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}
	return args, nil
}

func extractOne(c *Context, param *ParameterDeclaration) (any, error) {
	req := c.Request()

	switch param.Kind {
	case PathParam:
		raw, ok := req.PathParams[param.Name]
		var value any
		if ok {
			value = raw
		}
		validated, err := Validate(value, param.Schema, param.Kind, "")
		if err != nil {
			return nil, wrapParamError(param, err)
		}
		return validated, nil

	case QueryParam:
		var value any
		if param.Name == "" {
			value = queryToMap(req.Query)
		} else {
			raw, ok := req.Query[param.Name]
			if !ok || len(raw) == 0 {
				if !param.Required {
					// absent optional query values skip validation entirely
					return nil, nil
				}
				return nil, wrapParamError(param, ErrBadRequestf("%s is required", valueLabel("")))
			}
			value = raw[0]
		}
		validated, err := Validate(value, param.Schema, param.Kind, "")
		if err != nil {
			return nil, wrapParamError(param, err)
		}
		return validated, nil

	case HeaderParam:
		var value any
		if param.Name == "" {
			value = headersToMap(req)
		} else if raw := req.Headers.Get(param.Name); raw != "" {
			value = raw
		}
		validated, err := Validate(value, param.Schema, param.Kind, "")
		if err != nil {
			return nil, wrapParamError(param, err)
		}
		return validated, nil

	case BodyParam:
		parsed, err := parseBody(req)
		if err != nil {
			return nil, wrapParamError(param, err)
		}
		if param.Name != "" {
			if obj, ok := parsed.(map[string]any); ok {
				parsed = obj[param.Name]
			}
		}
		validated, err := Validate(parsed, param.Schema, param.Kind, "")
		if err != nil {
			return nil, wrapParamError(param, err)
		}
		return validated, nil

	case RawBodyParam:
		if len(req.RawBody) == 0 && param.Required {
			return nil, ErrBadRequest("request body is required")
		}
		return req.RawBody, nil

	case ContextParam:
		if param.Name == "" {
			return c, nil
		}
		value, ok := c.Lookup(param.Name)
		if !ok {
			if param.Required {
				return nil, ErrMissingInjection(param.Name)
			}
			return nil, nil
		}
		return value, nil

	case FileParam:
		return extractFiles(c, param)

	default:
		return nil, fmt.Errorf("unknown parameter kind %d", param.Kind)
	}
}

func extractFiles(c *Context, param *ParameterDeclaration) (any, error) {
	req := c.Request()
	opts := param.File
	if opts == nil {
		opts = &FileOptions{}
	}

	var matched []*UploadedFile
	for _, f := range req.Files {
		if param.Name == "" || f.FieldName == param.Name {
			matched = append(matched, f)
		}
	}

	if len(matched) == 0 {
		if param.Required {
			if param.Name != "" {
				return nil, ErrBadRequestf("missing uploaded file for field %q", param.Name)
			}
			return nil, ErrBadRequest("request has no uploaded files")
		}
		if opts.ForceArray {
			return []*UploadedFile{}, nil
		}
		return nil, nil
	}

	if opts.MaxCount > 0 && len(matched) > opts.MaxCount {
		return nil, wrapParamError(param, ErrBadRequestf("accepts at most %d files, got %d", opts.MaxCount, len(matched)))
	}
	for _, f := range matched {
		if opts.MaxSize > 0 && f.Size > opts.MaxSize {
			return nil, wrapParamError(param, ErrBadRequestf("file %q exceeds the %d byte limit", f.Name, opts.MaxSize))
		}
	}

	for _, f := range matched {
		c.markBound(f)
	}

	if len(matched) == 1 && !opts.ForceArray {
		return matched[0], nil
	}
	return matched, nil
}

// parseBody turns the raw request payload into a generic value. Form payloads
// are expanded from bracketed keys; anything else is treated as JSON.
func parseBody(req *Request) (any, error) {
	if strings.HasPrefix(req.ContentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(req.RawBody))
		if err != nil {
			return nil, ErrBadRequest("malformed form body")
		}
		return ExpandBracketKeys(values), nil
	}
	if req.FormValues != nil {
		return ExpandBracketKeys(req.FormValues), nil
	}
	if len(req.RawBody) == 0 {
		return nil, nil
	}
	var parsed any
	if err := json.Unmarshal(req.RawBody, &parsed); err != nil {
		return nil, ErrBadRequest("malformed JSON body")
	}
	return parsed, nil
}

// wrapParamError prefixes a validation failure with the parameter's kind and
// name so the client can locate the offending input
func wrapParamError(param *ParameterDeclaration, err error) error {
	name := param.Name
	if name == "" {
		name = "*"
	}
	if e, ok := err.(*Error); ok {
		return &Error{
			StatusCode: e.StatusCode,
			Kind:       e.Kind,
			Message:    fmt.Sprintf("%s parameter %q: %s", param.Kind, name, e.Message),
		}
	}
	return ErrBadRequestf("%s parameter %q: %s", param.Kind, name, err.Error())
}

func queryToMap(values url.Values) map[string]any {
	result := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			result[key] = vals[0]
			continue
		}
		list := make([]any, len(vals))
		for i, v := range vals {
			list[i] = v
		}
		result[key] = list
	}
	return result
}

func headersToMap(req *Request) map[string]any {
	result := make(map[string]any, len(req.Headers))
	for key := range req.Headers {
		result[strings.ToLower(key)] = req.Headers.Get(key)
	}
	return result
}

// ExpandBracketKeys expands bracketed form keys (e.g. "a[b][0]") into nested
// maps and slices, with best-effort scalar coercion of the values: "true" and
// "false" become booleans, "null" becomes nil, and numeric strings become
// numbers.
func ExpandBracketKeys(values url.Values) map[string]any {
	root := make(map[string]any)
	for key, vals := range values {
		segments := splitBracketKey(key)
		for _, raw := range vals {
			setNested(root, segments, coerceFormScalar(raw))
		}
	}
	return root
}

// splitBracketKey splits "a[b][0]" into ["a", "b", "0"]; an empty bracket
// pair ("tags[]") yields an empty segment meaning "append"
func splitBracketKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}
	}
	segments := []string{key[:open]}
	rest := key[open:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			// malformed trailing text; treat it as a literal segment
			segments = append(segments, rest)
			break
		}
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			segments = append(segments, rest[1:])
			break
		}
		segments = append(segments, rest[1:close])
		rest = rest[close+1:]
	}
	return segments
}

func coerceFormScalar(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if numericValueRegex.MatchString(raw) {
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n
		}
	}
	return raw
}

// setNested walks the segment chain, materializing maps and slices as needed,
// and places the value at the leaf
func setNested(node map[string]any, segments []string, value any) {
	key := segments[0]
	if len(segments) == 1 {
		node[key] = value
		return
	}

	next := segments[1]
	if idx, isIndex := sliceIndex(next); isIndex || next == "" {
		list, _ := node[key].([]any)
		node[key] = setNestedSlice(list, idx, isIndex, segments[1:], value)
		return
	}

	child, _ := node[key].(map[string]any)
	if child == nil {
		child = make(map[string]any)
		node[key] = child
	}
	setNested(child, segments[1:], value)
}

func setNestedSlice(list []any, idx int, isIndex bool, segments []string, value any) []any {
	if !isIndex {
		idx = len(list)
	}
	for len(list) <= idx {
		list = append(list, nil)
	}

	if len(segments) == 1 {
		list[idx] = value
		return list
	}

	next := segments[1]
	if nextIdx, nextIsIndex := sliceIndex(next); nextIsIndex || next == "" {
		inner, _ := list[idx].([]any)
		list[idx] = setNestedSlice(inner, nextIdx, nextIsIndex, segments[1:], value)
		return list
	}

	child, _ := list[idx].(map[string]any)
	if child == nil {
		child = make(map[string]any)
		list[idx] = child
	}
	setNested(child, segments[1:], value)
	return list
}

func sliceIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(segment)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
