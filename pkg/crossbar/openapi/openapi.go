// Package openapi generates an OpenAPI 3.1 document from the finalized
// contents of a metadata storage. It is a read-only consumer: the storage is
// never mutated.
package openapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/toyz/crossbar/pkg/crossbar"
)

// Info describes the documented API
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// Document is the root of a generated OpenAPI description
type Document struct {
	OpenAPI    string                          `json:"openapi"`
	Info       Info                            `json:"info"`
	Paths      map[string]map[string]*Operation `json:"paths"`
	Components *Components                     `json:"components,omitempty"`
}

// Components holds shared document objects
type Components struct {
	SecuritySchemes map[string]*SecurityScheme `json:"securitySchemes,omitempty"`
}

// SecurityScheme describes one named authentication requirement
type SecurityScheme struct {
	Type   string `json:"type"`
	Scheme string `json:"scheme,omitempty"`
}

// Operation describes one method+path entry
type Operation struct {
	OperationID string                `json:"operationId"`
	Tags        []string              `json:"tags,omitempty"`
	Parameters  []*Parameter          `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]*Response  `json:"responses"`
	Security    []map[string][]string `json:"security,omitempty"`
}

// Parameter describes one path, query, or header input
type Parameter struct {
	Name     string  `json:"name"`
	In       string  `json:"in"`
	Required bool    `json:"required"`
	Schema   *Schema `json:"schema,omitempty"`
}

// RequestBody describes the expected payload
type RequestBody struct {
	Required bool                  `json:"required"`
	Content  map[string]*MediaType `json:"content"`
}

// Response describes one status outcome
type Response struct {
	Description string                `json:"description"`
	Content     map[string]*MediaType `json:"content,omitempty"`
}

// MediaType pairs a content type with its schema
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema is the JSON Schema subset the generator emits
type Schema struct {
	Type       string             `json:"type,omitempty"`
	Format     string             `json:"format,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	OneOf      []*Schema          `json:"oneOf,omitempty"`
	PrefixItems []*Schema         `json:"prefixItems,omitempty"`
	MinItems   *int               `json:"minItems,omitempty"`
	MaxItems   *int               `json:"maxItems,omitempty"`
}

// Generate builds the OpenAPI document for every finalized controller in the
// storage
func Generate(storage *crossbar.MetadataStorage, info Info) *Document {
	doc := &Document{
		OpenAPI: "3.1.0",
		Info:    info,
		Paths:   make(map[string]map[string]*Operation),
	}

	schemes := make(map[string]*SecurityScheme)

	for _, decl := range storage.Controllers() {
		for _, route := range decl.Routes {
			path := templatePath(decl.BasePath + route.Path)
			if doc.Paths[path] == nil {
				doc.Paths[path] = make(map[string]*Operation)
			}
			doc.Paths[path][strings.ToLower(route.HTTPMethod)] = buildOperation(decl, route, schemes)
		}
	}

	if len(schemes) > 0 {
		doc.Components = &Components{SecuritySchemes: schemes}
	}
	return doc
}

// MarshalJSON renders the document as indented JSON
func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func buildOperation(decl *crossbar.ControllerDeclaration, route *crossbar.RouteDeclaration, schemes map[string]*SecurityScheme) *Operation {
	op := &Operation{
		OperationID: fmt.Sprintf("%s_%s", decl.Name, route.MethodName),
		Tags:        []string{decl.Name},
		Responses:   buildResponses(route),
	}

	for _, param := range route.Parameters {
		switch param.Kind {
		case crossbar.PathParam, crossbar.QueryParam, crossbar.HeaderParam:
			if param.Name == "" {
				continue
			}
			op.Parameters = append(op.Parameters, &Parameter{
				Name:     param.Name,
				In:       paramLocation(param.Kind),
				Required: param.Required,
				Schema:   convertSchema(param.Schema),
			})
		case crossbar.BodyParam:
			op.RequestBody = &RequestBody{
				Required: param.Required,
				Content: map[string]*MediaType{
					"application/json": {Schema: convertSchema(param.Schema)},
				},
			}
		case crossbar.RawBodyParam:
			op.RequestBody = &RequestBody{
				Required: param.Required,
				Content: map[string]*MediaType{
					"application/octet-stream": {Schema: &Schema{Type: "string", Format: "binary"}},
				},
			}
		case crossbar.FileParam:
			op.RequestBody = &RequestBody{
				Required: param.Required,
				Content: map[string]*MediaType{
					"multipart/form-data": {Schema: &Schema{Type: "string", Format: "binary"}},
				},
			}
		}
	}

	for _, name := range route.SecuritySchemes {
		if _, ok := schemes[name]; !ok {
			schemes[name] = &SecurityScheme{Type: "http", Scheme: "bearer"}
		}
		op.Security = append(op.Security, map[string][]string{name: {}})
	}

	return op
}

func buildResponses(route *crossbar.RouteDeclaration) map[string]*Response {
	switch route.StreamKind {
	case crossbar.StreamFile:
		return map[string]*Response{
			"200": {
				Description: "file stream",
				Content: map[string]*MediaType{
					"application/octet-stream": {Schema: &Schema{Type: "string", Format: "binary"}},
				},
			},
		}
	case crossbar.StreamData:
		return map[string]*Response{
			"200": {
				Description: "data stream",
				Content: map[string]*MediaType{
					"application/x-ndjson": {Schema: &Schema{Type: "string"}},
				},
			},
		}
	}

	returnSchema := route.ReturnSchema
	if returnSchema == nil || returnSchema.Type == crossbar.NullSchema {
		return map[string]*Response{
			"204": {Description: "no content"},
		}
	}
	return map[string]*Response{
		"200": {
			Description: "success",
			Content: map[string]*MediaType{
				"application/json": {Schema: convertSchema(returnSchema)},
			},
		},
	}
}

// convertSchema maps a crossbar schema onto its JSON Schema rendition
func convertSchema(s *crossbar.Schema) *Schema {
	if s == nil {
		return nil
	}
	switch s.Type {
	case crossbar.StringSchema:
		return &Schema{Type: "string"}
	case crossbar.NumberSchema:
		return &Schema{Type: "number"}
	case crossbar.BooleanSchema:
		return &Schema{Type: "boolean"}
	case crossbar.NullSchema:
		return &Schema{Type: "null"}
	case crossbar.FileSchema, crossbar.FileStreamSchema:
		return &Schema{Type: "string", Format: "binary"}
	case crossbar.DataStreamSchema:
		return &Schema{Type: "string"}
	case crossbar.ArraySchema:
		return &Schema{Type: "array", Items: convertSchema(s.Items)}
	case crossbar.ObjectSchema:
		props := make(map[string]*Schema, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = convertSchema(prop)
		}
		return &Schema{Type: "object", Properties: props, Required: s.Required}
	case crossbar.UnionSchema:
		options := make([]*Schema, len(s.Options))
		for i, option := range s.Options {
			options[i] = convertSchema(option)
		}
		return &Schema{OneOf: options}
	case crossbar.TupleSchema:
		elements := make([]*Schema, len(s.Elements))
		for i, element := range s.Elements {
			elements[i] = convertSchema(element)
		}
		n := len(elements)
		return &Schema{Type: "array", PrefixItems: elements, MinItems: &n, MaxItems: &n}
	default:
		return nil
	}
}

func paramLocation(kind crossbar.ParamKind) string {
	switch kind {
	case crossbar.PathParam:
		return "path"
	case crossbar.HeaderParam:
		return "header"
	default:
		return "query"
	}
}

// templatePath rewrites ":name" placeholders into "{name}" per the OpenAPI
// path template syntax
func templatePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if strings.HasPrefix(segment, ":") {
			segments[i] = "{" + segment[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}
