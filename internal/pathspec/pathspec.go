// Package pathspec parses route path templates into literal and parameter
// segments and compares templates by matching specificity.
package pathspec

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// SegmentType represents the type of a path segment
type SegmentType int

const (
	LiteralSegment SegmentType = iota
	ParamSegment
)

// Segment is a single slash-delimited part of a route path
type Segment struct {
	Type SegmentType

	// Value is the literal text for LiteralSegment, or the parameter name
	// (without the leading colon) for ParamSegment
	Value string
}

// Template is a parsed route path
type Template struct {
	// Raw is the original path string, normalized to a leading slash
	Raw string

	Segments []Segment
}

// grammar mirrors the template syntax: "/" (segment "/")* with each segment
// either a literal or ":name"
type templateAST struct {
	Segments []*segmentAST `parser:"('/' @@?)+"`
}

type segmentAST struct {
	Param   *string `parser:"':' @Ident"`
	Literal *string `parser:"| @Ident"`
}

var (
	templateLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Slash", Pattern: `/`},
		{Name: "Colon", Pattern: `:`},
		{Name: "Ident", Pattern: `[A-Za-z0-9_.\-~]+`},
	})

	templateParser = participle.MustBuild[templateAST](
		participle.Lexer(templateLexer),
	)
)

// Normalize ensures a path starts with a single leading slash
func Normalize(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Parse parses a route path template. The path is normalized to a leading
// slash before parsing. Parameter segments use ":name" syntax.
func Parse(path string) (*Template, error) {
	path = Normalize(path)

	ast, err := templateParser.ParseString("", path)
	if err != nil {
		return nil, fmt.Errorf("invalid route path %q: %w", path, err)
	}

	tmpl := &Template{Raw: path}
	for _, seg := range ast.Segments {
		if seg == nil {
			continue
		}
		switch {
		case seg.Param != nil:
			tmpl.Segments = append(tmpl.Segments, Segment{Type: ParamSegment, Value: *seg.Param})
		case seg.Literal != nil:
			tmpl.Segments = append(tmpl.Segments, Segment{Type: LiteralSegment, Value: *seg.Literal})
		}
	}

	return tmpl, nil
}

// ParamNames returns the parameter names in declaration order
func (t *Template) ParamNames() []string {
	var names []string
	for _, seg := range t.Segments {
		if seg.Type == ParamSegment {
			names = append(names, seg.Value)
		}
	}
	return names
}

// DuplicateParam returns the first parameter name that appears more than
// once, or "" if all names are unique
func (t *Template) DuplicateParam() string {
	seen := make(map[string]bool)
	for _, seg := range t.Segments {
		if seg.Type != ParamSegment {
			continue
		}
		if seen[seg.Value] {
			return seg.Value
		}
		seen[seg.Value] = true
	}
	return ""
}

// Compare orders two templates by matching specificity. A literal segment
// sorts before a parameter segment at the same position; two literals sort
// lexicographically; on a tied prefix the template with fewer segments sorts
// first. Returns a negative value when a sorts first, positive when b sorts
// first, and zero when the relative order should be preserved.
func Compare(a, b *Template) int {
	n := len(a.Segments)
	if len(b.Segments) < n {
		n = len(b.Segments)
	}

	for i := 0; i < n; i++ {
		sa, sb := a.Segments[i], b.Segments[i]
		if sa.Type != sb.Type {
			if sa.Type == LiteralSegment {
				return -1
			}
			return 1
		}
		if sa.Type == LiteralSegment && sa.Value != sb.Value {
			if sa.Value < sb.Value {
				return -1
			}
			return 1
		}
	}

	return len(a.Segments) - len(b.Segments)
}
