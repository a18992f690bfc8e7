package crossbar

import "strings"

// SchemaType identifies the shape a Schema describes
type SchemaType int

const (
	StringSchema SchemaType = iota
	NumberSchema
	BooleanSchema
	NullSchema
	FileSchema
	FileStreamSchema
	DataStreamSchema
	ArraySchema
	ObjectSchema
	UnionSchema
	TupleSchema
)

// String returns the schema type name as used in error messages and documents
func (t SchemaType) String() string {
	switch t {
	case StringSchema:
		return "string"
	case NumberSchema:
		return "number"
	case BooleanSchema:
		return "boolean"
	case NullSchema:
		return "null"
	case FileSchema:
		return "file"
	case FileStreamSchema:
		return "fileStream"
	case DataStreamSchema:
		return "dataStream"
	case ArraySchema:
		return "array"
	case ObjectSchema:
		return "object"
	case UnionSchema:
		return "union"
	case TupleSchema:
		return "tuple"
	default:
		return "unknown"
	}
}

// Schema is a structural description of an expected value shape. It drives
// both runtime validation and OpenAPI document generation. Schemas are
// immutable once constructed; build them with the constructor functions below.
type Schema struct {
	Type SchemaType

	// Items is the element schema for ArraySchema
	Items *Schema

	// Properties and Required describe ObjectSchema members
	Properties map[string]*Schema
	Required   []string

	// Options is the ordered alternative list for UnionSchema
	Options []*Schema

	// Elements is the ordered positional list for TupleSchema
	Elements []*Schema
}

// String creates a string schema
func String() *Schema { return &Schema{Type: StringSchema} }

// Number creates a number schema
func Number() *Schema { return &Schema{Type: NumberSchema} }

// Boolean creates a boolean schema
func Boolean() *Schema { return &Schema{Type: BooleanSchema} }

// Null creates a null schema
func Null() *Schema { return &Schema{Type: NullSchema} }

// File creates a file schema
func File() *Schema { return &Schema{Type: FileSchema} }

// FileStream creates a file-stream return schema
func FileStream() *Schema { return &Schema{Type: FileStreamSchema} }

// DataStream creates a data-stream return schema
func DataStream() *Schema { return &Schema{Type: DataStreamSchema} }

// Array creates an array schema with the given element schema
func Array(items *Schema) *Schema {
	return &Schema{Type: ArraySchema, Items: items}
}

// Object creates an object schema. Required lists the property names that
// must be present; every required name should also appear in properties.
func Object(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: ObjectSchema, Properties: properties, Required: required}
}

// Union creates a union schema; options are tried in declaration order
func Union(options ...*Schema) *Schema {
	return &Schema{Type: UnionSchema, Options: options}
}

// Tuple creates a tuple schema with fixed positional element schemas
func Tuple(elements ...*Schema) *Schema {
	return &Schema{Type: TupleSchema, Elements: elements}
}

// RequiresProperty reports whether the object schema marks name as required
func (s *Schema) RequiresProperty(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// Leaf descends through array item schemas and returns the innermost schema.
// Used by registration checks that constrain query and path parameter shapes.
func (s *Schema) Leaf() *Schema {
	cur := s
	for cur != nil && cur.Type == ArraySchema {
		cur = cur.Items
	}
	return cur
}

// describe renders a compact human-readable shape for error messages
func (s *Schema) describe() string {
	if s == nil {
		return "unknown"
	}
	switch s.Type {
	case ArraySchema:
		return "array<" + s.Items.describe() + ">"
	case UnionSchema:
		parts := make([]string, len(s.Options))
		for i, o := range s.Options {
			parts[i] = o.describe()
		}
		return "union<" + strings.Join(parts, "|") + ">"
	default:
		return s.Type.String()
	}
}
